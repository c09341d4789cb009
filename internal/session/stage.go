// Package session holds per-conversation booking state: the stage graph,
// the per-stage state variants and the stores that keep them between messages.
package session

import "errors"

// Stage names one step of the conversation graph.
type Stage string

const (
	StageWelcome          Stage = "welcome"
	StageGettingName      Stage = "getting-name"
	StageGettingRUT       Stage = "getting-rut"
	StageGettingAge       Stage = "getting-age"
	StageChoosing         Stage = "choosing-from-options"
	StageConfirming       Stage = "confirming-appointment"
	StageGettingPhone     Stage = "getting-phone"
	StageGettingEmail     Stage = "getting-email"
	StagePendingPayment   Stage = "pending-payment"
	StagePaymentCompleted Stage = "payment-completed"
	StageCompleted        Stage = "completed"
	StageAskingContact    Stage = "asking-for-contact-data"
)

var (
	// ErrNotFound is returned by stores for absent or expired sessions.
	ErrNotFound = errors.New("session: not found")
	// ErrInvalidTransition is returned in strict mode for edges outside the graph.
	ErrInvalidTransition = errors.New("session: invalid stage transition")
	// ErrEmptyOptions guards the choosing stage against an empty presentation.
	ErrEmptyOptions = errors.New("session: choosing stage requires at least one option")
)

var transitions = map[Stage][]Stage{
	StageWelcome:        {StageGettingName, StageAskingContact},
	StageGettingName:    {StageGettingRUT},
	StageGettingRUT:     {StageGettingAge},
	StageGettingAge:     {StageChoosing, StageConfirming, StageAskingContact, StageGettingPhone},
	StageChoosing:       {StageChoosing, StageConfirming, StageGettingPhone, StageAskingContact},
	StageConfirming:     {StageGettingPhone, StageChoosing, StageConfirming, StageAskingContact},
	StageGettingPhone:   {StageGettingEmail},
	StageGettingEmail:   {StagePendingPayment, StageCompleted},
	StagePendingPayment: {StagePaymentCompleted, StageCompleted},
	StageAskingContact:  {StageGettingName},
}

// CanTransition reports whether from -> to is an edge of the stage graph.
func CanTransition(from, to Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no edge leaves s.
func IsTerminal(s Stage) bool {
	return len(transitions[s]) == 0
}

// IsFormStage reports whether s collects a strictly validated identity field.
func IsFormStage(s Stage) bool {
	switch s {
	case StageGettingRUT, StageGettingAge, StageGettingPhone, StageGettingEmail:
		return true
	}
	return false
}

// Known reports whether s belongs to the current stage graph.
func Known(s Stage) bool {
	switch s {
	case StageWelcome, StageGettingName, StageGettingRUT, StageGettingAge, StageChoosing,
		StageConfirming, StageGettingPhone, StageGettingEmail, StagePendingPayment,
		StagePaymentCompleted, StageCompleted, StageAskingContact:
		return true
	}
	return false
}
