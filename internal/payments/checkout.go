// Package payments hands a confirmed booking off to a checkout provider and
// turns the provider's completion callback into a session update.
package payments

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned when no checkout provider is wired.
var ErrNotConfigured = errors.New("payments: checkout provider not configured")

// CheckoutParams describes one sobrecupo payment.
type CheckoutParams struct {
	SessionID        string
	ConfirmationCode string
	AmountCLP        int64
	Description      string
	SuccessURL       string
	CancelURL        string
	ScheduledFor     *time.Time
}

type CheckoutResponse struct {
	URL        string
	ProviderID string
}

// CheckoutProvider creates a hosted payment page.
type CheckoutProvider interface {
	CreatePaymentLink(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error)
}

// Confirmer marks the session's payment as completed.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, sessionID, providerID string) error
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, sessionID, providerID string) error

// ConfirmPayment calls f.
func (f ConfirmerFunc) ConfirmPayment(ctx context.Context, sessionID, providerID string) error {
	return f(ctx, sessionID, providerID)
}
