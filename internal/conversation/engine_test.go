package conversation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	"github.com/wolfman30/sobrecupos-ai/internal/audit"
	"github.com/wolfman30/sobrecupos-ai/internal/intent"
	"github.com/wolfman30/sobrecupos-ai/internal/notify"
	"github.com/wolfman30/sobrecupos-ai/internal/observability/metrics"
	"github.com/wolfman30/sobrecupos-ai/internal/payments"
	"github.com/wolfman30/sobrecupos-ai/internal/selector"
	"github.com/wolfman30/sobrecupos-ai/internal/session"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

var (
	testZone = time.FixedZone("CLT", -3*60*60)
	// Tuesday 14 October 2025, 09:00 local.
	day0 = time.Date(2025, time.October, 14, 9, 0, 0, 0, testZone)
)

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Record(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) types() []audit.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recordingAudit) first(t audit.EventType) (audit.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == t {
			return e, true
		}
	}
	return audit.Event{}, false
}

type harness struct {
	engine *Engine
	ds     *appointments.MemoryDatastore
	store  *session.MemoryStore
	email  *notify.StubEmailSender
	audit  *recordingAudit
}

func clock() time.Time { return day0 }

func newHarness(t *testing.T, tweak ...func(*Deps)) *harness {
	t.Helper()
	logger := logging.Discard()
	doctors, records := appointments.DemoData(day0)
	ds := appointments.NewMemoryDatastore(doctors, records).WithClock(clock)
	store := session.NewMemoryStore(30 * time.Minute).WithClock(clock)
	email := notify.NewStubEmailSender(logger)
	rec := &recordingAudit{}

	deps := Deps{
		Store:     store,
		Datastore: ds,
		Notifier:  notify.NewService(email, ds, logger),
		Checkout:  payments.NewFakeCheckoutService("http://localhost:8080", logger),
		Audit:     rec,
		Metrics:   metrics.NewConversationMetrics(prometheus.NewRegistry()),
		Logger:    logger,
		Location:  testZone,
		PriceCLP:  29990,
	}
	for _, fn := range tweak {
		fn(&deps)
	}
	e, err := NewEngine(deps)
	require.NoError(t, err)
	e.WithClock(clock)
	return &harness{engine: e, ds: ds, store: store, email: email, audit: rec}
}

func (h *harness) send(t *testing.T, id, text string) *Response {
	t.Helper()
	resp, err := h.engine.HandleMessage(context.Background(), Inbound{SessionID: id, Text: text})
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

func (h *harness) load(t *testing.T, id string) *session.Session {
	t.Helper()
	s, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return s
}

func optionIDs(opts []OptionView) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, o.RecordID)
	}
	return out
}

func TestNewEngine_RequiresDatastore(t *testing.T) {
	_, err := NewEngine(Deps{})
	assert.Error(t, err)
}

func TestHandleMessage_GreetingReturnsWelcome(t *testing.T) {
	h := newHarness(t)
	resp := h.send(t, "s1", "Hola")

	assert.Equal(t, msgWelcome, resp.Text)
	assert.Equal(t, session.StageWelcome, resp.Stage)
	require.NotNil(t, resp.Session)
	assert.Empty(t, resp.Session.Specialty)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestHandleMessage_AssignsSessionID(t *testing.T) {
	h := newHarness(t)
	resp, err := h.engine.HandleMessage(context.Background(), Inbound{Text: "Hola"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
}

func TestHandleMessage_MigraineRoutesToNeurology(t *testing.T) {
	h := newHarness(t)
	resp := h.send(t, "s1", "Tengo dolor de cabeza desde hace 3 semanas, migraña fuerte")

	assert.Equal(t, session.StageGettingName, resp.Stage)
	require.NotNil(t, resp.Session)
	assert.Equal(t, intent.Neurologia, resp.Session.Specialty)
	assert.Equal(t, []string{"rec-neu-1", "rec-neu-2"}, optionIDs(resp.Options))
	assert.Contains(t, resp.Text, msgAskName)
}

func TestHandleMessage_FullBookingFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.send(t, "s1", "Tengo dolor de cabeza desde hace 3 semanas, migraña fuerte")
	resp := h.send(t, "s1", "Juan Pérez")
	assert.Equal(t, session.StageGettingRUT, resp.Stage)
	assert.Contains(t, resp.Text, "Juan")

	resp = h.send(t, "s1", "12.345.678-5")
	assert.Equal(t, session.StageGettingAge, resp.Stage)

	resp = h.send(t, "s1", "35 años")
	require.Equal(t, session.StageChoosing, resp.Stage)
	assert.Equal(t, []string{"rec-neu-1", "rec-neu-2"}, optionIDs(resp.Options))

	resp = h.send(t, "s1", "2")
	require.Equal(t, session.StageGettingPhone, resp.Stage)
	require.NotNil(t, resp.Session.Selected)
	assert.Equal(t, "rec-neu-2", resp.Session.Selected.ID)

	resp = h.send(t, "s1", "+56 9 1234 5678")
	require.Equal(t, session.StageGettingEmail, resp.Stage)

	resp = h.send(t, "s1", "juan@correo.cl")
	require.Equal(t, session.StagePendingPayment, resp.Stage)
	require.NotNil(t, resp.Payment)
	assert.Equal(t, 29990, resp.Payment.Amount)
	assert.Equal(t, msgPayLabel, resp.Payment.Label)
	assert.Contains(t, resp.Payment.URL, "/payments/fake/s1")
	assert.Contains(t, resp.Text, "$29.990")
	assert.True(t, strings.HasPrefix(resp.Session.Confirmation, "SC-"))

	available, err := h.ds.ListAvailable(ctx, intent.Neurologia)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-neu-1"}, selector.IDs(available))

	assert.Len(t, h.email.Sent(), 2)
	assert.Equal(t, []audit.EventType{audit.EventSlotReserved, audit.EventPaymentRequested}, h.audit.types())

	s := h.load(t, "s1")
	b, ok := session.BookingOf(s.State)
	require.True(t, ok)
	p, ok := h.ds.Patient(b.PatientID)
	require.True(t, ok)
	assert.Equal(t, "12.345.678-5", p.RUT)
	assert.Equal(t, "rec-neu-2", p.RecordID)
	assert.False(t, p.ContactOnly)

	// A message while waiting re-sends the link.
	resp = h.send(t, "s1", "¿y ahora?")
	assert.Equal(t, session.StagePendingPayment, resp.Stage)
	require.NotNil(t, resp.Payment)

	require.NoError(t, h.engine.ConfirmPayment(ctx, "s1", "fake:s1"))
	assert.Equal(t, session.StagePaymentCompleted, h.load(t, "s1").Stage())
	assert.Contains(t, h.audit.types(), audit.EventPaymentCompleted)

	err = h.engine.ConfirmPayment(ctx, "s1", "fake:s1")
	assert.ErrorIs(t, err, ErrNotPending)

	// A finished session is closed and the new message is a fresh intent.
	resp = h.send(t, "s1", "Hola")
	assert.Equal(t, msgWelcome, resp.Text)
	assert.Equal(t, session.StageWelcome, resp.Stage)
}

func TestHandleMessage_BookingWithoutCheckoutCompletes(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Checkout = nil })

	h.send(t, "s1", "necesito un neurólogo")
	h.send(t, "s1", "Juan Pérez")
	h.send(t, "s1", "12.345.678-5")
	h.send(t, "s1", "35")
	h.send(t, "s1", "la primera")
	h.send(t, "s1", "987654321")
	resp := h.send(t, "s1", "juan@correo.cl")

	assert.Equal(t, session.StageCompleted, resp.Stage)
	assert.Nil(t, resp.Payment)
	assert.Contains(t, resp.Text, msgNoPayRequired)
}

func TestStageHandlers_InvalidInputKeepsStageAndCountsAttempt(t *testing.T) {
	_, records := appointments.DemoData(day0)
	search := session.Search{Specialty: intent.Oftalmologia, Motivo: "necesito un oftalmólogo", Records: records[:4]}
	patient := session.Patient{Name: "Ana Rojas", RUT: "11.111.111-1", Age: 40}
	choosing, err := session.NewChoosing(search, patient, records[:2], nil, selector.Preferences{})
	require.NoError(t, err)
	selected := records[0]

	tests := []struct {
		name  string
		state session.State
		input string
	}{
		{"name", session.AwaitingName{Search: search}, "1234"},
		{"rut", session.AwaitingRUT{Search: search, Name: "Ana Rojas"}, "11.111.111-2"},
		{"age", session.AwaitingAge{Search: search, Name: "Ana Rojas", RUT: "11.111.111-1"}, "cuarenta"},
		{"choosing", choosing, "quizás"},
		{"confirming", session.ConfirmingOption{Search: search, Patient: patient, Option: records[0]}, "quizás"},
		{"phone", session.AwaitingPhone{Search: search, Patient: patient, Selected: &selected}, "12345"},
		{"email", session.AwaitingEmail{Search: search, Patient: patient, Selected: &selected}, "ana@"},
		{"asking contact", session.AskingContact{Search: search}, "quizás"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			s := session.New("s1", day0)
			s.State = tt.state
			s.Attempts = 1
			require.NoError(t, h.store.Set(ctx, s))

			resp := h.send(t, "s1", tt.input)

			after := h.load(t, "s1")
			assert.Equal(t, tt.state.Stage(), after.Stage())
			assert.Equal(t, 2, after.Attempts)
			assert.Equal(t, tt.state.Stage(), resp.Stage)
		})
	}
}

func TestRUTHint_AddsExampleOnThirdAttempt(t *testing.T) {
	h := newHarness(t)
	h.send(t, "s1", "necesito un neurólogo")
	h.send(t, "s1", "Juan Pérez")

	first := h.send(t, "s1", "11.111.111-2")
	second := h.send(t, "s1", "11.111.111-2")
	third := h.send(t, "s1", "11.111.111-2")

	assert.NotContains(t, first.Text, exampleRUT)
	assert.NotContains(t, second.Text, exampleRUT)
	assert.Contains(t, third.Text, exampleRUT)
	assert.Equal(t, 3, third.Session.Attempts)

	resp := h.send(t, "s1", "11.111.111-1")
	assert.Equal(t, session.StageGettingAge, resp.Stage)
	assert.Equal(t, 0, resp.Session.Attempts)
}

func TestPhoneHint_ShortNumberIsNotCalledEmail(t *testing.T) {
	h := newHarness(t)
	h.send(t, "s1", "necesito un neurólogo")
	h.send(t, "s1", "Juan Pérez")
	h.send(t, "s1", "12.345.678-5")
	h.send(t, "s1", "35")
	h.send(t, "s1", "1")

	resp := h.send(t, "s1", "12345")
	assert.Equal(t, session.StageGettingPhone, resp.Stage)
	assert.NotContains(t, strings.ToLower(resp.Text), "correo")
}

func TestFormStage_NewMedicalQueryRestarts(t *testing.T) {
	h := newHarness(t)
	h.send(t, "s1", "necesito un neurólogo")
	h.send(t, "s1", "Juan Pérez")

	resp := h.send(t, "s1", "en realidad me duele el ojo")

	assert.Equal(t, session.StageGettingName, resp.Stage)
	assert.Equal(t, intent.Oftalmologia, resp.Session.Specialty)
	assert.Empty(t, resp.Session.Collected)
}

func TestChoosing_RejectionWithMorningPreferenceSkipsShownOptions(t *testing.T) {
	h := newHarness(t)
	h.send(t, "s1", "necesito un oftalmólogo")
	h.send(t, "s1", "Ana Rojas")
	h.send(t, "s1", "11.111.111-1")
	resp := h.send(t, "s1", "40")
	require.Equal(t, session.StageChoosing, resp.Stage)
	shown := optionIDs(resp.Options)
	assert.Equal(t, []string{"rec-oft-1", "rec-oft-2"}, shown)

	resp = h.send(t, "s1", "ninguna, prefiero en la mañana")

	require.NotEmpty(t, resp.Options)
	for _, id := range optionIDs(resp.Options) {
		assert.NotContains(t, shown, id)
	}
	assert.Equal(t, session.StageConfirming, resp.Stage)
	assert.Equal(t, []string{"rec-oft-4"}, optionIDs(resp.Options))

	resp = h.send(t, "s1", "sí")
	assert.Equal(t, session.StageGettingPhone, resp.Stage)
	assert.Equal(t, "rec-oft-4", resp.Session.Selected.ID)
}

func TestChoosing_NewDayReplacesEarlierDay(t *testing.T) {
	h := newHarness(t)
	h.send(t, "s1", "me duele el ojo")
	h.send(t, "s1", "Ana Rojas")
	h.send(t, "s1", "11.111.111-1")
	resp := h.send(t, "s1", "40")
	require.Equal(t, []string{"rec-oft-1", "rec-oft-2"}, optionIDs(resp.Options))

	resp = h.send(t, "s1", "no, prefiero el viernes")
	require.Equal(t, []string{"rec-oft-4"}, optionIDs(resp.Options))

	resp = h.send(t, "s1", "no, mejor mañana")
	assert.Equal(t, []string{"rec-oft-3"}, optionIDs(resp.Options))
	assert.NotEqual(t, session.StageAskingContact, resp.Stage)
}

func TestMergePreferences(t *testing.T) {
	friday := selector.Preferences{Weekdays: []time.Weekday{time.Friday}, DayPart: selector.DayPartMorning}

	got := mergePreferences(friday, selector.Preferences{Tomorrow: true})
	assert.True(t, got.Tomorrow)
	assert.Empty(t, got.Weekdays)
	assert.Equal(t, selector.DayPartMorning, got.DayPart, "day part survives a new day")

	got = mergePreferences(friday, selector.Preferences{DayPart: selector.DayPartAfternoon})
	assert.Equal(t, []time.Weekday{time.Friday}, got.Weekdays)
	assert.Equal(t, selector.DayPartAfternoon, got.DayPart)
}

func TestChoosing_RejectionWithNothingLeftOffersContact(t *testing.T) {
	h := newHarness(t)
	h.send(t, "s1", "necesito un neurólogo")
	h.send(t, "s1", "Juan Pérez")
	h.send(t, "s1", "12.345.678-5")
	h.send(t, "s1", "35")

	resp := h.send(t, "s1", "no me sirve ninguna")
	assert.Equal(t, session.StageAskingContact, resp.Stage)
	assert.Empty(t, resp.Options)
}

func TestChoosing_PicksByTime(t *testing.T) {
	h := newHarness(t)
	h.send(t, "s1", "necesito un oftalmólogo")
	h.send(t, "s1", "Ana Rojas")
	h.send(t, "s1", "11.111.111-1")
	h.send(t, "s1", "40")

	resp := h.send(t, "s1", "la de las 09:00")
	require.Equal(t, session.StageGettingPhone, resp.Stage)
	assert.Equal(t, "rec-oft-2", resp.Session.Selected.ID)
}

func TestNoSlots_ContactOnlyFlow(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		doctors, records := appointments.DemoData(day0)
		d.Datastore = appointments.NewMemoryDatastore(doctors, records[4:6]).WithClock(clock)
	})
	ds := h.engine.datastore.(*appointments.MemoryDatastore)

	resp := h.send(t, "s1", "necesito un dermatólogo")
	require.Equal(t, session.StageAskingContact, resp.Stage)
	assert.Contains(t, resp.Text, intent.Dermatologia)

	resp = h.send(t, "s1", "sí, por favor")
	require.Equal(t, session.StageGettingName, resp.Stage)
	h.send(t, "s1", "Ana Rojas")
	h.send(t, "s1", "11.111.111-1")
	resp = h.send(t, "s1", "40")
	require.Equal(t, session.StageGettingPhone, resp.Stage)
	h.send(t, "s1", "+56987654321")
	resp = h.send(t, "s1", "ana@correo.cl")

	assert.Equal(t, session.StageCompleted, resp.Stage)
	assert.Nil(t, resp.Payment)
	ev, ok := h.audit.first(audit.EventContactRequested)
	require.True(t, ok)
	p, ok := ds.Patient(ev.PatientID)
	require.True(t, ok)
	assert.True(t, p.ContactOnly)
	assert.Equal(t, "+56987654321", p.Phone)
	assert.Empty(t, h.email.Sent())
}

func TestAskingContact_NoClosesSession(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		doctors, records := appointments.DemoData(day0)
		d.Datastore = appointments.NewMemoryDatastore(doctors, records[4:6]).WithClock(clock)
	})
	h.send(t, "s1", "necesito un dermatólogo")

	resp := h.send(t, "s1", "no, gracias")
	assert.Equal(t, msgContactNo, resp.Text)
	_, err := h.store.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestUnavailableSpecialty_FallsBackToGeneralist(t *testing.T) {
	h := newHarness(t)
	resp := h.send(t, "s1", "necesito un dermatólogo")

	assert.Equal(t, session.StageGettingName, resp.Stage)
	assert.Equal(t, []string{"rec-mg-1"}, optionIDs(resp.Options))
	assert.Contains(t, resp.Text, intent.MedicinaGeneral)

	s := h.load(t, "s1")
	search, ok := session.SearchOf(s.State)
	require.True(t, ok)
	assert.Equal(t, intent.Dermatologia, search.Specialty)
	assert.Equal(t, intent.MedicinaGeneral, search.AlternativeSpecialty)
}

func TestNamedDoctor_SearchesByDoctor(t *testing.T) {
	h := newHarness(t)
	resp := h.send(t, "s1", "Quiero hora con la Dra. Camila Muñoz")

	assert.Equal(t, session.StageGettingName, resp.Stage)
	assert.Equal(t, []string{"rec-ped-1"}, optionIDs(resp.Options))
	s := h.load(t, "s1")
	search, _ := session.SearchOf(s.State)
	assert.Equal(t, "doc-ped-1", search.DoctorID)
	assert.Equal(t, intent.Pediatria, search.Specialty)
}

func TestNamedDoctor_UnknownOffersContact(t *testing.T) {
	h := newHarness(t)
	resp := h.send(t, "s1", "Quiero hora con el Dr. Gregorio Casa")
	assert.Equal(t, session.StageAskingContact, resp.Stage)
	assert.Contains(t, resp.Text, "Gregorio Casa")
}

func TestAgeFilter_NoDoctorForAgeOffersContact(t *testing.T) {
	h := newHarness(t)
	h.send(t, "s1", "necesito un neurólogo")
	h.send(t, "s1", "Pedro Soto")
	h.send(t, "s1", "11.111.111-1")

	resp := h.send(t, "s1", "8")
	assert.Equal(t, session.StageAskingContact, resp.Stage)
	assert.Equal(t, msgNoAgeSlots, resp.Text)
}

func TestOffTopic_RedirectsWithoutSession(t *testing.T) {
	h := newHarness(t)
	resp := h.send(t, "s1", "¿quién ganó el partido ayer?")

	assert.NotEmpty(t, resp.Text)
	assert.Nil(t, resp.Session)
	_, err := h.store.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestResetKeyword_ReturnsWelcome(t *testing.T) {
	h := newHarness(t)
	h.send(t, "s1", "necesito un neurólogo")
	h.send(t, "s1", "Juan Pérez")

	resp := h.send(t, "s1", "quiero empezar de nuevo")
	assert.Equal(t, msgWelcome, resp.Text)
	assert.Equal(t, session.StageWelcome, h.load(t, "s1").Stage())
}

func TestRateLimit_RejectsWithoutTouchingSession(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Limiter = NewMemoryRateLimiter(time.Minute, 2).WithClock(clock)
	})
	h.send(t, "s1", "necesito un neurólogo")
	h.send(t, "s1", "Juan Pérez")

	resp, err := h.engine.HandleMessage(context.Background(), Inbound{SessionID: "s1", Text: "12.345.678-5"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, http.StatusTooManyRequests, resp.Status)
	assert.Equal(t, msgRateLimited, resp.Text)
	assert.Equal(t, session.StageGettingRUT, h.load(t, "s1").Stage())
}

type failingDatastore struct {
	*appointments.MemoryDatastore
	failList   bool
	failUpdate bool
}

func (f *failingDatastore) ListAvailable(ctx context.Context, specialty string) ([]appointments.Record, error) {
	if f.failList {
		return nil, errors.New("backend down")
	}
	return f.MemoryDatastore.ListAvailable(ctx, specialty)
}

func (f *failingDatastore) UpdateRecord(ctx context.Context, id string, upd appointments.RecordUpdate) error {
	if f.failUpdate {
		return errors.New("write conflict")
	}
	return f.MemoryDatastore.UpdateRecord(ctx, id, upd)
}

func TestDatastoreFailure_DegradesGracefully(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Datastore = &failingDatastore{MemoryDatastore: d.Datastore.(*appointments.MemoryDatastore), failList: true}
	})
	resp := h.send(t, "s1", "necesito un neurólogo")

	assert.Contains(t, resp.Text, msgDegraded)
	assert.Nil(t, resp.Session)
}

func TestReserveFailure_CompletesAsContact(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Datastore = &failingDatastore{MemoryDatastore: d.Datastore.(*appointments.MemoryDatastore), failUpdate: true}
	})
	h.send(t, "s1", "necesito un neurólogo")
	h.send(t, "s1", "Juan Pérez")
	h.send(t, "s1", "12.345.678-5")
	h.send(t, "s1", "35")
	h.send(t, "s1", "1")
	h.send(t, "s1", "987654321")
	resp := h.send(t, "s1", "juan@correo.cl")

	assert.Equal(t, session.StageCompleted, resp.Stage)
	assert.Equal(t, msgSlotTaken, resp.Text)
	assert.Equal(t, []audit.EventType{audit.EventReserveFailed}, h.audit.types())
	assert.Empty(t, h.email.Sent())
}

func TestReserve_SecondSessionLosesTheSlot(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"a", "b"} {
		h.send(t, id, "necesito un neurólogo")
		h.send(t, id, "Juan Pérez")
		h.send(t, id, "12.345.678-5")
		h.send(t, id, "35")
		resp := h.send(t, id, "2")
		require.Equal(t, "rec-neu-2", resp.Session.Selected.ID)
		h.send(t, id, "987654321")
	}

	resp := h.send(t, "a", "juan@correo.cl")
	require.Equal(t, session.StagePendingPayment, resp.Stage)
	codeA := resp.Session.Confirmation

	resp = h.send(t, "b", "juan@correo.cl")
	assert.Equal(t, session.StageCompleted, resp.Stage)
	assert.Equal(t, msgSlotTaken, resp.Text)
	assert.Nil(t, resp.Payment)
	assert.NotContains(t, resp.Text, codeA)

	ev, ok := h.audit.first(audit.EventReserveFailed)
	require.True(t, ok)
	assert.Equal(t, "b", ev.SessionID)
	assert.Contains(t, string(ev.Details), "slot taken")
	assert.Len(t, h.email.Sent(), 2, "only the winning booking notifies")
}

func TestHandleMessage_RecoversFromHandlerPanic(t *testing.T) {
	h := newHarness(t)
	h.engine.Handle(session.StageGettingName, func(context.Context, *Engine, *session.Session, Inbound) (*Response, bool) {
		panic("boom")
	})
	h.send(t, "s1", "necesito un neurólogo")

	resp, err := h.engine.HandleMessage(context.Background(), Inbound{SessionID: "s1", Text: "Juan Pérez"})
	require.NoError(t, err)
	assert.Equal(t, msgApology, resp.Text)
}

type stripeLikeCheckout struct{}

func (stripeLikeCheckout) CreatePaymentLink(context.Context, payments.CheckoutParams) (*payments.CheckoutResponse, error) {
	return &payments.CheckoutResponse{URL: "https://checkout.stripe.com/c/pay/cs_1", ProviderID: "cs_1"}, nil
}

func TestStripeWebhook_CompletesPendingBooking(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Checkout = stripeLikeCheckout{} })
	h.send(t, "s1", "necesito un neurólogo")
	h.send(t, "s1", "Juan Pérez")
	h.send(t, "s1", "12.345.678-5")
	h.send(t, "s1", "35")
	h.send(t, "s1", "1")
	h.send(t, "s1", "987654321")
	resp := h.send(t, "s1", "juan@correo.cl")
	require.Equal(t, session.StagePendingPayment, resp.Stage)
	require.NotNil(t, resp.Payment)
	b, ok := session.BookingOf(h.load(t, "s1").State)
	require.True(t, ok)
	require.Equal(t, "cs_1", b.Payment.ProviderID)

	webhook := payments.NewStripeWebhookHandler("", h.engine, logging.Discard())
	body := `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_intent":"pi_1","metadata":{"session_id":"s1"}}}}`
	rec := httptest.NewRecorder()
	webhook.Handle(rec, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.StagePaymentCompleted, h.load(t, "s1").Stage())
	ev, ok := h.audit.first(audit.EventPaymentCompleted)
	require.True(t, ok)
	assert.Contains(t, string(ev.Details), "cs_1")
}

func TestConfirmPayment_UnknownSession(t *testing.T) {
	h := newHarness(t)
	err := h.engine.ConfirmPayment(context.Background(), "missing", "")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestLegacyStage_TreatedAsFreshIntent(t *testing.T) {
	h := newHarness(t)
	s := session.New("s1", day0)
	s.State = session.Legacy{Name: "awaiting-insurance"}
	require.NoError(t, h.store.Set(context.Background(), s))

	resp := h.send(t, "s1", "Hola")
	assert.Equal(t, msgWelcome, resp.Text)
	assert.Equal(t, session.StageWelcome, resp.Stage)
}
