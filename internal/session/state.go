package session

import (
	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	"github.com/wolfman30/sobrecupos-ai/internal/selector"
)

// State is the closed set of per-stage variants. Each variant carries exactly
// the fields its stage needs, so a stage can never be entered without them.
type State interface {
	Stage() Stage
	isState()
}

// Search is what intent classification established before any form field.
type Search struct {
	Specialty            string                `json:"specialty,omitempty"`
	AlternativeSpecialty string                `json:"alternative_specialty,omitempty"`
	Motivo               string                `json:"motivo,omitempty"`
	SubArea              string                `json:"sub_area,omitempty"`
	Urgency              string                `json:"urgency,omitempty"`
	DoctorID             string                `json:"doctor_id,omitempty"`
	DoctorName           string                `json:"doctor_name,omitempty"`
	Records              []appointments.Record `json:"records,omitempty"`
	ContactOnly          bool                  `json:"contact_only,omitempty"`
}

// Patient holds validated identity fields.
type Patient struct {
	Name  string `json:"name"`
	RUT   string `json:"rut,omitempty"`
	Age   int    `json:"age"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Payment is the checkout handoff for a reserved slot.
type Payment struct {
	Label      string `json:"label"`
	URL        string `json:"url"`
	Amount     int    `json:"amount"`
	ProviderID string `json:"provider_id,omitempty"`
}

// Booking is the outcome of a completed form.
type Booking struct {
	Specialty        string               `json:"specialty,omitempty"`
	Motivo           string               `json:"motivo,omitempty"`
	Patient          Patient              `json:"patient"`
	PatientID        string               `json:"patient_id,omitempty"`
	Slot             *appointments.Record `json:"slot,omitempty"`
	ConfirmationCode string               `json:"confirmation_code,omitempty"`
	Payment          *Payment             `json:"payment,omitempty"`
	ContactOnly      bool                 `json:"contact_only,omitempty"`
}

// Welcome is a session that has been greeted but has no search yet.
type Welcome struct{}

// AwaitingName waits for the patient's full name.
type AwaitingName struct {
	Search Search `json:"search"`
}

// AwaitingRUT waits for the national id.
type AwaitingRUT struct {
	Search Search `json:"search"`
	Name   string `json:"name"`
}

// AwaitingAge waits for the patient's age.
type AwaitingAge struct {
	Search Search `json:"search"`
	Name   string `json:"name"`
	RUT    string `json:"rut"`
}

// ChoosingOption presents up to two slots. Build it with NewChoosing.
type ChoosingOption struct {
	Search      Search                `json:"search"`
	Patient     Patient               `json:"patient"`
	Options     []appointments.Record `json:"options"`
	Rejected    []string              `json:"rejected,omitempty"`
	Preferences selector.Preferences  `json:"preferences"`
}

// NewChoosing returns ErrEmptyOptions when options is empty.
func NewChoosing(search Search, patient Patient, options []appointments.Record, rejected []string, prefs selector.Preferences) (ChoosingOption, error) {
	if len(options) == 0 {
		return ChoosingOption{}, ErrEmptyOptions
	}
	return ChoosingOption{Search: search, Patient: patient, Options: options, Rejected: rejected, Preferences: prefs}, nil
}

// ConfirmingOption asks a yes/no question about a single slot.
type ConfirmingOption struct {
	Search      Search               `json:"search"`
	Patient     Patient              `json:"patient"`
	Option      appointments.Record  `json:"option"`
	Rejected    []string             `json:"rejected,omitempty"`
	Preferences selector.Preferences `json:"preferences"`
}

// AwaitingPhone waits for a contact phone. Selected is nil in contact-only mode.
type AwaitingPhone struct {
	Search   Search               `json:"search"`
	Patient  Patient              `json:"patient"`
	Selected *appointments.Record `json:"selected,omitempty"`
}

// AwaitingEmail waits for a contact email; Patient.Phone is set.
type AwaitingEmail struct {
	Search   Search               `json:"search"`
	Patient  Patient              `json:"patient"`
	Selected *appointments.Record `json:"selected,omitempty"`
}

// PendingPayment has a reserved slot and a checkout link.
type PendingPayment struct {
	Booking Booking `json:"booking"`
}

// PaymentCompleted is terminal: the checkout was confirmed.
type PaymentCompleted struct {
	Booking Booking `json:"booking"`
}

// Completed is terminal: contact data was stored or the booking was closed.
type Completed struct {
	Booking Booking `json:"booking"`
}

// AskingContact offers to collect data for later outreach when no slot fits.
type AskingContact struct {
	Search Search `json:"search"`
}

// Legacy wraps a stage name from an older graph. Handlers treat it as a no-op.
type Legacy struct {
	Name Stage `json:"name"`
}

func (Welcome) Stage() Stage          { return StageWelcome }
func (AwaitingName) Stage() Stage     { return StageGettingName }
func (AwaitingRUT) Stage() Stage      { return StageGettingRUT }
func (AwaitingAge) Stage() Stage      { return StageGettingAge }
func (ChoosingOption) Stage() Stage   { return StageChoosing }
func (ConfirmingOption) Stage() Stage { return StageConfirming }
func (AwaitingPhone) Stage() Stage    { return StageGettingPhone }
func (AwaitingEmail) Stage() Stage    { return StageGettingEmail }
func (PendingPayment) Stage() Stage   { return StagePendingPayment }
func (PaymentCompleted) Stage() Stage { return StagePaymentCompleted }
func (Completed) Stage() Stage        { return StageCompleted }
func (AskingContact) Stage() Stage    { return StageAskingContact }
func (l Legacy) Stage() Stage         { return l.Name }

func (Welcome) isState()          {}
func (AwaitingName) isState()     {}
func (AwaitingRUT) isState()      {}
func (AwaitingAge) isState()      {}
func (ChoosingOption) isState()   {}
func (ConfirmingOption) isState() {}
func (AwaitingPhone) isState()    {}
func (AwaitingEmail) isState()    {}
func (PendingPayment) isState()   {}
func (PaymentCompleted) isState() {}
func (Completed) isState()        {}
func (AskingContact) isState()    {}
func (Legacy) isState()           {}

// SearchOf returns the search carried by st, if any.
func SearchOf(st State) (Search, bool) {
	switch v := st.(type) {
	case AwaitingName:
		return v.Search, true
	case AwaitingRUT:
		return v.Search, true
	case AwaitingAge:
		return v.Search, true
	case ChoosingOption:
		return v.Search, true
	case ConfirmingOption:
		return v.Search, true
	case AwaitingPhone:
		return v.Search, true
	case AwaitingEmail:
		return v.Search, true
	case AskingContact:
		return v.Search, true
	}
	return Search{}, false
}

// BookingOf returns the booking carried by terminal and payment states.
func BookingOf(st State) (Booking, bool) {
	switch v := st.(type) {
	case PendingPayment:
		return v.Booking, true
	case PaymentCompleted:
		return v.Booking, true
	case Completed:
		return v.Booking, true
	}
	return Booking{}, false
}
