package conversation

import (
	"time"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	"github.com/wolfman30/sobrecupos-ai/internal/session"
	"github.com/wolfman30/sobrecupos-ai/internal/textutil"
)

// Inbound is one patient message.
type Inbound struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Channel   string `json:"channel,omitempty"`
}

// Response is the single structured reply produced for every inbound message.
type Response struct {
	SessionID string            `json:"session_id"`
	Text      string            `json:"text"`
	Stage     session.Stage     `json:"stage"`
	Session   *session.Snapshot `json:"session,omitempty"`
	Payment   *PaymentAction    `json:"payment,omitempty"`
	Options   []OptionView      `json:"options,omitempty"`
	Status    int               `json:"-"`
}

// PaymentAction is the checkout handoff shown to the patient.
type PaymentAction struct {
	Label  string `json:"label"`
	URL    string `json:"url"`
	Amount int    `json:"amount"`
}

// OptionView is a presented slot, rendered for display.
type OptionView struct {
	Index     int    `json:"index"`
	RecordID  string `json:"record_id"`
	Doctor    string `json:"doctor,omitempty"`
	Specialty string `json:"specialty"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Label     string `json:"label"`
	Clinic    string `json:"clinic"`
	Address   string `json:"address,omitempty"`
}

func optionViews(records []appointments.Record, loc *time.Location) []OptionView {
	if len(records) == 0 {
		return nil
	}
	out := make([]OptionView, 0, len(records))
	for i, r := range records {
		out = append(out, OptionView{
			Index:     i + 1,
			RecordID:  r.ID,
			Doctor:    r.DoctorName,
			Specialty: r.Specialty,
			Date:      r.Date,
			Time:      r.Time,
			Label:     slotLabel(r, loc),
			Clinic:    r.Clinic,
			Address:   r.Address,
		})
	}
	return out
}

// slotLabel renders "martes 14 de octubre, 10:30", or the raw fields when
// the record's date cannot be parsed.
func slotLabel(r appointments.Record, loc *time.Location) string {
	start, ok := r.Start(loc)
	if !ok {
		return r.Date + " " + r.Time
	}
	return textutil.SpanishDateTime(start)
}

func paymentAction(st session.State) *PaymentAction {
	b, ok := session.BookingOf(st)
	if !ok || b.Payment == nil {
		return nil
	}
	return &PaymentAction{Label: b.Payment.Label, URL: b.Payment.URL, Amount: b.Payment.Amount}
}
