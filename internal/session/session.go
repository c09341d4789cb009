package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// Session is one conversation's progress. Only the orchestrator and stage
// handlers mutate it, and always through Machine.Advance or Reject.
type Session struct {
	ID           string
	State        State
	Attempts     int
	LastActivity time.Time
	CreatedAt    time.Time
}

// New creates a session in the welcome stage.
func New(id string, now time.Time) *Session {
	return &Session{ID: id, State: Welcome{}, LastActivity: now, CreatedAt: now}
}

// Stage returns the current stage.
func (s *Session) Stage() Stage {
	if s == nil || s.State == nil {
		return StageWelcome
	}
	return s.State.Stage()
}

// Reject records a failed input within the current stage.
func (s *Session) Reject() int {
	s.Attempts++
	return s.Attempts
}

// Machine applies stage transitions. In lenient mode an edge outside the graph
// is logged and still performed; in strict mode it is refused.
type Machine struct {
	strict   bool
	logger   *logging.Logger
	observer func(from, to Stage, allowed bool)
}

// NewMachine builds a transition checker.
func NewMachine(strict bool, logger *logging.Logger) *Machine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Machine{strict: strict, logger: logger}
}

// OnTransition registers fn to be called for every attempted transition.
func (m *Machine) OnTransition(fn func(from, to Stage, allowed bool)) {
	m.observer = fn
}

// Strict reports the enforcement mode.
func (m *Machine) Strict() bool {
	return m.strict
}

// Advance moves s to next and resets the attempt counter.
func (m *Machine) Advance(s *Session, next State) error {
	from, to := s.Stage(), next.Stage()
	allowed := CanTransition(from, to)
	if m.observer != nil {
		m.observer(from, to, allowed)
	}
	if !allowed {
		if m.strict {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		m.logger.Warn("stage transition outside graph", "session_id", s.ID, "from", string(from), "to", string(to))
	}
	s.State = next
	s.Attempts = 0
	return nil
}

type envelope struct {
	ID           string          `json:"id"`
	Stage        Stage           `json:"stage"`
	Attempts     int             `json:"attempts"`
	LastActivity time.Time       `json:"last_activity"`
	CreatedAt    time.Time       `json:"created_at"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the state as {stage, data}.
func (s *Session) MarshalJSON() ([]byte, error) {
	st := s.State
	if st == nil {
		st = Welcome{}
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("session: encode %s state: %w", st.Stage(), err)
	}
	return json.Marshal(envelope{
		ID:           s.ID,
		Stage:        st.Stage(),
		Attempts:     s.Attempts,
		LastActivity: s.LastActivity,
		CreatedAt:    s.CreatedAt,
		Data:         data,
	})
}

// UnmarshalJSON decodes the variant named by stage. Unknown stages decode to Legacy.
func (s *Session) UnmarshalJSON(b []byte) error {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("session: decode envelope: %w", err)
	}
	st, err := decodeState(env.Stage, env.Data)
	if err != nil {
		return err
	}
	*s = Session{
		ID:           env.ID,
		State:        st,
		Attempts:     env.Attempts,
		LastActivity: env.LastActivity,
		CreatedAt:    env.CreatedAt,
	}
	return nil
}

func decodeState(stage Stage, data json.RawMessage) (State, error) {
	var (
		st  State
		err error
	)
	switch stage {
	case StageWelcome, "":
		return Welcome{}, nil
	case StageGettingName:
		st, err = decodeInto[AwaitingName](data)
	case StageGettingRUT:
		st, err = decodeInto[AwaitingRUT](data)
	case StageGettingAge:
		st, err = decodeInto[AwaitingAge](data)
	case StageChoosing:
		var v ChoosingOption
		v, err = decodeInto[ChoosingOption](data)
		if err == nil && len(v.Options) == 0 {
			err = ErrEmptyOptions
		}
		st = v
	case StageConfirming:
		st, err = decodeInto[ConfirmingOption](data)
	case StageGettingPhone:
		st, err = decodeInto[AwaitingPhone](data)
	case StageGettingEmail:
		st, err = decodeInto[AwaitingEmail](data)
	case StagePendingPayment:
		st, err = decodeInto[PendingPayment](data)
	case StagePaymentCompleted:
		st, err = decodeInto[PaymentCompleted](data)
	case StageCompleted:
		st, err = decodeInto[Completed](data)
	case StageAskingContact:
		st, err = decodeInto[AskingContact](data)
	default:
		return Legacy{Name: stage}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: decode %s state: %w", stage, err)
	}
	return st, nil
}

func decodeInto[T State](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	err := json.Unmarshal(data, &v)
	return v, err
}

// Snapshot is the patient-safe view of a session returned to clients.
// Identity fields are reported as collected, never echoed.
type Snapshot struct {
	ID           string                `json:"id"`
	Stage        Stage                 `json:"stage"`
	Attempts     int                   `json:"attempts"`
	LastActivity time.Time             `json:"last_activity"`
	Specialty    string                `json:"specialty,omitempty"`
	Collected    []string              `json:"collected,omitempty"`
	Options      []appointments.Record `json:"options,omitempty"`
	Selected     *appointments.Record  `json:"selected,omitempty"`
	PaymentURL   string                `json:"payment_url,omitempty"`
	Confirmation string                `json:"confirmation_code,omitempty"`
}

// Snapshot builds the client view of s.
func (s *Session) Snapshot() *Snapshot {
	if s == nil {
		return nil
	}
	snap := &Snapshot{ID: s.ID, Stage: s.Stage(), Attempts: s.Attempts, LastActivity: s.LastActivity}
	if search, ok := SearchOf(s.State); ok {
		snap.Specialty = search.Specialty
	}
	switch v := s.State.(type) {
	case AwaitingRUT:
		snap.Collected = collected(Patient{Name: v.Name})
	case AwaitingAge:
		snap.Collected = collected(Patient{Name: v.Name, RUT: v.RUT})
	case ChoosingOption:
		snap.Collected = collected(v.Patient)
		snap.Options = v.Options
	case ConfirmingOption:
		snap.Collected = collected(v.Patient)
		opt := v.Option
		snap.Options = []appointments.Record{opt}
	case AwaitingPhone:
		snap.Collected = collected(v.Patient)
		snap.Selected = v.Selected
	case AwaitingEmail:
		snap.Collected = collected(v.Patient)
		snap.Selected = v.Selected
	}
	if b, ok := BookingOf(s.State); ok {
		snap.Specialty = b.Specialty
		snap.Collected = collected(b.Patient)
		snap.Selected = b.Slot
		snap.Confirmation = b.ConfirmationCode
		if b.Payment != nil {
			snap.PaymentURL = b.Payment.URL
		}
	}
	return snap
}

func collected(p Patient) []string {
	var out []string
	if p.Name != "" {
		out = append(out, "name")
	}
	if p.RUT != "" {
		out = append(out, "rut")
	}
	if p.Age > 0 {
		out = append(out, "age")
	}
	if p.Phone != "" {
		out = append(out, "phone")
	}
	if p.Email != "" {
		out = append(out, "email")
	}
	return out
}
