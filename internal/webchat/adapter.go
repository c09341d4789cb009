package webchat

import (
	"context"
	"time"

	"github.com/wolfman30/sobrecupos-ai/internal/payments"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

const msgPaymentReceived = "¡Recibimos tu pago! Tu sobrecupo está confirmado. Te esperamos."

// PaymentPusher wraps a payments.Confirmer and, once a payment is confirmed,
// tells the visitor's open chat about it.
type PaymentPusher struct {
	next    payments.Confirmer
	handler *Handler
	logger  *logging.Logger
}

// NewPaymentPusher creates a confirmer that also notifies the widget.
func NewPaymentPusher(next payments.Confirmer, handler *Handler, logger *logging.Logger) *PaymentPusher {
	if logger == nil {
		logger = logging.Default()
	}
	return &PaymentPusher{next: next, handler: handler, logger: logger}
}

// ConfirmPayment implements payments.Confirmer.
func (p *PaymentPusher) ConfirmPayment(ctx context.Context, sessionID, providerID string) error {
	if err := p.next.ConfirmPayment(ctx, sessionID, providerID); err != nil {
		return err
	}
	pushed := p.handler.SendToSession(sessionID, OutboundMessage{
		Type:      "payment",
		SessionID: sessionID,
		Text:      msgPaymentReceived,
		Stage:     "payment-completed",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	p.logger.Debug("webchat: payment confirmation", "session_id", sessionID, "pushed", pushed)
	return nil
}
