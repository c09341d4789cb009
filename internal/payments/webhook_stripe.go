package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

const stripeSignatureTolerance = 5 * time.Minute

// StripeWebhookHandler confirms sessions when Stripe reports a completed
// checkout.
type StripeWebhookHandler struct {
	webhookSecret string
	confirmer     Confirmer
	logger        *logging.Logger
	now           func() time.Time
}

// NewStripeWebhookHandler creates a new handler for Stripe webhooks. An empty
// secret disables signature verification.
func NewStripeWebhookHandler(webhookSecret string, confirmer Confirmer, logger *logging.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeWebhookHandler{webhookSecret: webhookSecret, confirmer: confirmer, logger: logger, now: time.Now}
}

// Handle processes incoming Stripe webhook events.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if !verifyStripeSignature(h.webhookSecret, payload, r.Header.Get("Stripe-Signature"), h.now()) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var evt stripeWebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode stripe event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}
	if evt.Type != "checkout.session.completed" {
		w.WriteHeader(http.StatusOK)
		return
	}

	obj := evt.Data.Object
	sessionID := firstNonEmpty(obj.Metadata["session_id"], obj.ClientReferenceID)
	if sessionID == "" {
		h.logger.Warn("stripe webhook missing session id", "event_id", evt.ID)
		w.WriteHeader(http.StatusOK)
		return
	}
	// The checkout session id is what StripeCheckout issued with the link.
	if err := h.confirmer.ConfirmPayment(r.Context(), sessionID, obj.ID); err != nil {
		// Acknowledge anyway: the session may have expired and retries will not help.
		h.logger.Warn("stripe payment could not be applied", "event_id", evt.ID, "session_id", sessionID,
			"checkout_session", obj.ID, "payment_intent", obj.PaymentIntent, "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object stripeSessionObject `json:"object"`
	} `json:"data"`
}

// stripeSessionObject is the checkout.session object from the webhook.
type stripeSessionObject struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentIntent     string            `json:"payment_intent"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
	Status            string            `json:"status"`
}

// verifyStripeSignature checks the Stripe-Signature header: HMAC-SHA256 over
// "timestamp.payload", within a five minute tolerance.
func verifyStripeSignature(secret string, payload []byte, header string, now time.Time) bool {
	if secret == "" {
		return true
	}
	if header == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if d := now.Sub(time.Unix(ts, 0)); d > stripeSignatureTolerance || d < -stripeSignatureTolerance {
		return false
	}

	expected := signStripePayload(secret, timestamp, payload)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

func signStripePayload(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", timestamp, payload)
	return hex.EncodeToString(mac.Sum(nil))
}
