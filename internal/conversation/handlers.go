package conversation

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	"github.com/wolfman30/sobrecupos-ai/internal/selector"
	"github.com/wolfman30/sobrecupos-ai/internal/session"
	"github.com/wolfman30/sobrecupos-ai/internal/textutil"
	"github.com/wolfman30/sobrecupos-ai/internal/validate"
)

// StageHandler processes msg for the session's current stage. Returning false
// means the stage is not recognized and the message is treated as a fresh intent.
type StageHandler func(ctx context.Context, e *Engine, s *session.Session, msg Inbound) (*Response, bool)

func defaultHandlers() map[session.Stage]StageHandler {
	return map[session.Stage]StageHandler{
		session.StageGettingName:    handleName,
		session.StageGettingRUT:     handleRUT,
		session.StageGettingAge:     handleAge,
		session.StageChoosing:       handleChoosing,
		session.StageConfirming:     handleConfirming,
		session.StageGettingPhone:   handlePhone,
		session.StageGettingEmail:   handleEmail,
		session.StagePendingPayment: handlePendingPayment,
		session.StageAskingContact:  handleAskingContact,
	}
}

var (
	ageDigits  = regexp.MustCompile(`^(\d{1,3})(?:\s*(?:anos|ano|years))?$`)
	nameLength = [2]int{2, 60}
)

// acceptsField reports whether text would pass the validator of a form stage.
func acceptsField(stage session.Stage, text string) bool {
	switch stage {
	case session.StageGettingName:
		_, ok := parseName(text)
		return ok
	case session.StageGettingRUT:
		return validate.IsValidRUT(text)
	case session.StageGettingAge:
		_, ok := parseAge(text)
		return ok
	case session.StageGettingPhone:
		return validate.IsValidPhone(text)
	case session.StageGettingEmail:
		return validate.IsValidEmail(text)
	}
	return false
}

// parseName accepts letters, spaces, apostrophes and hyphens, with at least
// two letters and no digits. Whitespace is collapsed.
func parseName(text string) (string, bool) {
	name := strings.Join(strings.Fields(text), " ")
	n := len([]rune(name))
	if n < nameLength[0] || n > nameLength[1] {
		return "", false
	}
	letters := 0
	for _, r := range name {
		switch {
		case unicode.IsLetter(r):
			letters++
		case r == ' ' || r == '\'' || r == '-' || r == '.':
		default:
			return "", false
		}
	}
	if letters < 2 {
		return "", false
	}
	return name, true
}

// parseAge accepts "35" or "35 años", bounded to 0..120.
func parseAge(text string) (int, bool) {
	m := ageDigits.FindStringSubmatch(textutil.Normalize(text))
	if m == nil {
		return 0, false
	}
	age, err := strconv.Atoi(m[1])
	if err != nil || age < 0 || age > 120 {
		return 0, false
	}
	return age, true
}

func handleName(ctx context.Context, e *Engine, s *session.Session, msg Inbound) (*Response, bool) {
	st, ok := s.State.(session.AwaitingName)
	if !ok {
		return nil, false
	}
	if e.rules.KnowledgeBase().MentionsMedicalTopic(textutil.Normalize(msg.Text)) {
		return nil, false
	}
	name, valid := parseName(msg.Text)
	if !valid {
		return e.retry(ctx, s, msgNameHint, exampleName), true
	}
	if err := e.advance(ctx, s, session.AwaitingRUT{Search: st.Search, Name: name}); err != nil {
		return e.reply(s, msgApology), true
	}
	return e.reply(s, askRUT(name)), true
}

func handleRUT(ctx context.Context, e *Engine, s *session.Session, msg Inbound) (*Response, bool) {
	st, ok := s.State.(session.AwaitingRUT)
	if !ok {
		return nil, false
	}
	if !validate.IsValidRUT(msg.Text) {
		return e.retry(ctx, s, msgRUTHint+" "+validate.ExplainLikelyMistake(msg.Text, validate.KindRUT), exampleRUT), true
	}
	next := session.AwaitingAge{Search: st.Search, Name: st.Name, RUT: validate.FormatRUT(msg.Text)}
	if err := e.advance(ctx, s, next); err != nil {
		return e.reply(s, msgApology), true
	}
	return e.reply(s, msgAskAge), true
}

func handleAge(ctx context.Context, e *Engine, s *session.Session, msg Inbound) (*Response, bool) {
	st, ok := s.State.(session.AwaitingAge)
	if !ok {
		return nil, false
	}
	age, valid := parseAge(msg.Text)
	if !valid {
		return e.retry(ctx, s, msgAgeHint, exampleAge), true
	}
	patient := session.Patient{Name: st.Name, RUT: st.RUT, Age: age}

	if st.Search.ContactOnly {
		if err := e.advance(ctx, s, session.AwaitingPhone{Search: st.Search, Patient: patient}); err != nil {
			return e.reply(s, msgApology), true
		}
		return e.reply(s, msgAskPhone), true
	}

	search := st.Search
	doctors := appointments.DoctorsFor(ctx, e.datastore, search.Records)
	pool := selector.FilterByAge(search.Records, doctors, age)
	if len(pool) == 0 {
		search.Records = nil
		return e.offerContactFrom(ctx, s, search, msgNoAgeSlots), true
	}
	pool = selector.FilterByInterest(pool, doctors, search.Motivo, search.SubArea)
	search.Records = pool
	return e.present(ctx, s, search, patient, nil, selector.Preferences{}, selector.SelectOptions(pool, e.hint(search)), ""), true
}

// present moves to choosing or confirming depending on how many options
// there are, or to the contact branch when there are none.
func (e *Engine) present(ctx context.Context, s *session.Session, search session.Search, patient session.Patient, rejected []string, prefs selector.Preferences, options []appointments.Record, lead string) *Response {
	switch len(options) {
	case 0:
		return e.offerContactFrom(ctx, s, search, joinParagraphs(lead, msgNoMatchingSlot))
	case 1:
		next := session.ConfirmingOption{Search: search, Patient: patient, Option: options[0], Rejected: rejected, Preferences: prefs}
		if err := e.advance(ctx, s, next); err != nil {
			return e.reply(s, msgApology)
		}
		return e.replyWithOptions(s, joinParagraphs(lead, describeOptions(options, e.loc), msgConfirmHint), options)
	}
	next, err := session.NewChoosing(search, patient, options, rejected, prefs)
	if err != nil {
		return e.reply(s, msgApology)
	}
	if err := e.advance(ctx, s, next); err != nil {
		return e.reply(s, msgApology)
	}
	return e.replyWithOptions(s, joinParagraphs(lead, describeOptions(options, e.loc), msgChooseHint), options)
}

func (e *Engine) offerContactFrom(ctx context.Context, s *session.Session, search session.Search, text string) *Response {
	search.Records = nil
	if err := e.advance(ctx, s, session.AskingContact{Search: search}); err != nil {
		return e.reply(s, msgApology)
	}
	return e.reply(s, text)
}

func handleChoosing(ctx context.Context, e *Engine, s *session.Session, msg Inbound) (*Response, bool) {
	st, ok := s.State.(session.ChoosingOption)
	if !ok {
		return nil, false
	}
	prefs := selector.ExtractPreferences(msg.Text)
	if !isRejection(msg.Text) {
		if picked, found := pickOption(msg.Text, st.Options, prefs, e.today()); found {
			return e.selectSlot(ctx, s, st.Search, st.Patient, picked), true
		}
	}
	if isRejection(msg.Text) || !prefs.IsZero() {
		return e.reject(ctx, s, st.Search, st.Patient, st.Options, st.Rejected, st.Preferences, prefs), true
	}
	return e.retry(ctx, s, msgChooseHint, "1"), true
}

func handleConfirming(ctx context.Context, e *Engine, s *session.Session, msg Inbound) (*Response, bool) {
	st, ok := s.State.(session.ConfirmingOption)
	if !ok {
		return nil, false
	}
	norm := textutil.Normalize(msg.Text)
	prefs := selector.ExtractPreferences(msg.Text)
	switch {
	case isNegative(norm) || isRejection(msg.Text):
		return e.reject(ctx, s, st.Search, st.Patient, []appointments.Record{st.Option}, st.Rejected, st.Preferences, prefs), true
	case isAffirmative(norm):
		return e.selectSlot(ctx, s, st.Search, st.Patient, st.Option), true
	case !prefs.IsZero():
		return e.reject(ctx, s, st.Search, st.Patient, []appointments.Record{st.Option}, st.Rejected, st.Preferences, prefs), true
	}
	return e.retry(ctx, s, msgConfirmHint, "sí"), true
}

func (e *Engine) selectSlot(ctx context.Context, s *session.Session, search session.Search, patient session.Patient, slot appointments.Record) *Response {
	selected := slot
	if err := e.advance(ctx, s, session.AwaitingPhone{Search: search, Patient: patient, Selected: &selected}); err != nil {
		return e.reply(s, msgApology)
	}
	return e.reply(s, joinParagraphs("Excelente, elegiste: "+describeSlot(slot, e.loc)+".", msgAskPhone))
}

// reject runs the rejection loop: everything shown so far is excluded, the
// new preferences narrow the pool and selection runs again.
func (e *Engine) reject(ctx context.Context, s *session.Session, search session.Search, patient session.Patient, shown []appointments.Record, rejected []string, prior, prefs selector.Preferences) *Response {
	merged := mergePreferences(prior, prefs)
	allRejected := append(append([]string(nil), rejected...), selector.IDs(shown)...)
	rc := selector.RejectContext{Today: e.today(), Shown: shown}
	next := selector.Reselect(search.Records, allRejected, merged, rc, e.hint(search))
	if len(next) == 0 && !prefs.IsZero() {
		// Older constraints emptied the pool; the current message wins alone.
		merged = prefs
		next = selector.Reselect(search.Records, allRejected, merged, rc, e.hint(search))
	}
	return e.present(ctx, s, search, patient, allRejected, merged, next, "Sin problema, busquemos otra hora.")
}

// mergePreferences lets the latest message override earlier constraints of
// the same kind while keeping the rest. Day constraints (tomorrow, weekdays,
// weekend, later) are one kind: naming a new day replaces all of them.
func mergePreferences(prior, latest selector.Preferences) selector.Preferences {
	out := prior
	if latest.DayPart != selector.DayPartAny {
		out.DayPart = latest.DayPart
	}
	if latest.Tomorrow || latest.Weekend || latest.Later || len(latest.Weekdays) > 0 {
		out.Tomorrow = latest.Tomorrow
		out.Weekend = latest.Weekend
		out.Later = latest.Later
		out.Weekdays = latest.Weekdays
	}
	if latest.RawText != "" {
		out.RawText = latest.RawText
	}
	return out
}

func handlePhone(ctx context.Context, e *Engine, s *session.Session, msg Inbound) (*Response, bool) {
	st, ok := s.State.(session.AwaitingPhone)
	if !ok {
		return nil, false
	}
	if !validate.IsValidPhone(msg.Text) {
		return e.retry(ctx, s, msgPhoneHint+" "+validate.ExplainLikelyMistake(msg.Text, validate.KindPhone), examplePhone), true
	}
	patient := st.Patient
	patient.Phone = validate.NormalizePhone(msg.Text)
	if err := e.advance(ctx, s, session.AwaitingEmail{Search: st.Search, Patient: patient, Selected: st.Selected}); err != nil {
		return e.reply(s, msgApology), true
	}
	return e.reply(s, msgAskEmail), true
}

func handleEmail(ctx context.Context, e *Engine, s *session.Session, msg Inbound) (*Response, bool) {
	st, ok := s.State.(session.AwaitingEmail)
	if !ok {
		return nil, false
	}
	if !validate.IsValidEmail(msg.Text) {
		return e.retry(ctx, s, msgEmailHint+" "+validate.ExplainLikelyMistake(msg.Text, validate.KindEmail), exampleEmail), true
	}
	patient := st.Patient
	patient.Email = validate.NormalizeEmail(msg.Text)
	if st.Search.ContactOnly || st.Selected == nil {
		return e.completeContact(ctx, s, st.Search, patient), true
	}
	return e.completeBooking(ctx, s, st.Search, patient, *st.Selected), true
}

func handlePendingPayment(ctx context.Context, e *Engine, s *session.Session, _ Inbound) (*Response, bool) {
	st, ok := s.State.(session.PendingPayment)
	if !ok {
		return nil, false
	}
	return e.resendPayment(ctx, s, st.Booking), true
}

func handleAskingContact(ctx context.Context, e *Engine, s *session.Session, msg Inbound) (*Response, bool) {
	st, ok := s.State.(session.AskingContact)
	if !ok {
		return nil, false
	}
	norm := textutil.Normalize(msg.Text)
	switch {
	case isAffirmative(norm):
		search := st.Search
		search.ContactOnly = true
		if err := e.advance(ctx, s, session.AwaitingName{Search: search}); err != nil {
			return e.reply(s, msgApology), true
		}
		return e.reply(s, msgContactYes), true
	case isNegative(norm):
		e.discard(ctx, s.ID)
		return e.closed(s.ID, msgContactNo), true
	case e.rules.KnowledgeBase().MentionsMedicalTopic(norm):
		return nil, false
	}
	return e.retry(ctx, s, msgContactHint, "sí"), true
}
