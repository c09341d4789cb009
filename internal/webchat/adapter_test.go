package webchat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/sobrecupos-ai/internal/payments"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

func TestPaymentPusher_PushesAfterConfirm(t *testing.T) {
	h := NewHandler(&stubMessenger{}, []string{"*"}, logging.Discard())
	conn := dial(t, h, "?session="+testSessionID)
	read(t, conn)

	var got []string
	next := payments.ConfirmerFunc(func(_ context.Context, sessionID, providerID string) error {
		got = append(got, sessionID, providerID)
		return nil
	})
	p := NewPaymentPusher(next, h, logging.Discard())

	require.NoError(t, p.ConfirmPayment(context.Background(), testSessionID, "cs_123"))
	assert.Equal(t, []string{testSessionID, "cs_123"}, got)

	msg := read(t, conn)
	assert.Equal(t, "payment", msg.Type)
	assert.Equal(t, msgPaymentReceived, msg.Text)
}

func TestPaymentPusher_PropagatesError(t *testing.T) {
	h := NewHandler(&stubMessenger{}, nil, logging.Discard())
	boom := errors.New("not pending")
	p := NewPaymentPusher(payments.ConfirmerFunc(func(context.Context, string, string) error { return boom }), h, nil)

	assert.ErrorIs(t, p.ConfirmPayment(context.Background(), testSessionID, ""), boom)
}
