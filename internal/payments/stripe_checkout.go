package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

var stripeTracer = otel.Tracer("sobrecupos.internal.payments.stripe")

// StripeCheckoutService creates Stripe Checkout Sessions for sobrecupo
// payments. CLP is a zero-decimal currency, so amounts are sent as pesos.
type StripeCheckoutService struct {
	secretKey  string
	successURL string
	cancelURL  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
	dryRun     bool
}

// NewStripeCheckoutService creates a new Stripe checkout service.
func NewStripeCheckoutService(secretKey, successURL, cancelURL string, logger *logging.Logger) *StripeCheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeCheckoutService{
		secretKey:  secretKey,
		successURL: successURL,
		cancelURL:  cancelURL,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (s *StripeCheckoutService) WithBaseURL(baseURL string) *StripeCheckoutService {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// WithDryRun returns fake URLs without calling Stripe.
func (s *StripeCheckoutService) WithDryRun(enabled bool) *StripeCheckoutService {
	s.dryRun = enabled
	return s
}

// CreatePaymentLink implements CheckoutProvider.
func (s *StripeCheckoutService) CreatePaymentLink(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("sobrecupos.session_id", params.SessionID),
		attribute.String("sobrecupos.confirmation_code", params.ConfirmationCode),
		attribute.Int64("sobrecupos.amount_clp", params.AmountCLP),
	)

	if params.AmountCLP <= 0 {
		return nil, fmt.Errorf("payments: stripe amount must be positive")
	}
	if s.dryRun {
		fakeID := "cs_dryrun_" + uuid.New().String()[:8]
		s.logger.Info("stripe dry run: skipping checkout session creation", "session_id", params.SessionID, "amount_clp", params.AmountCLP)
		return &CheckoutResponse{URL: "https://checkout.stripe.com/dry-run/" + fakeID, ProviderID: fakeID}, nil
	}
	if strings.TrimSpace(s.secretKey) == "" {
		return nil, ErrNotConfigured
	}

	successURL := firstNonEmpty(params.SuccessURL, s.successURL)
	cancelURL := firstNonEmpty(params.CancelURL, s.cancelURL)
	description := firstNonEmpty(strings.TrimSpace(params.Description), "Sobrecupo médico")

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", "clp")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.AmountCLP, 10))
	form.Set("line_items[0][price_data][product_data][name]", description)
	form.Set("line_items[0][quantity]", "1")
	if successURL != "" {
		form.Set("success_url", successURL)
	}
	if cancelURL != "" {
		form.Set("cancel_url", cancelURL)
	}
	form.Set("client_reference_id", params.SessionID)
	form.Set("metadata[session_id]", params.SessionID)
	form.Set("metadata[confirmation_code]", params.ConfirmationCode)
	if params.ScheduledFor != nil {
		form.Set("metadata[scheduled_for]", params.ScheduledFor.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Stripe-Version", s.apiVersion)
	req.Header.Set("Idempotency-Key", "sobrecupo-"+params.ConfirmationCode)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stripe http")
		return nil, fmt.Errorf("payments: stripe http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr stripeErrorResponse
		body, _ := io.ReadAll(resp.Body)
		msg := string(body)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		span.SetStatus(codes.Error, "stripe status")
		return nil, fmt.Errorf("payments: stripe api status %d: %s", resp.StatusCode, msg)
	}

	var parsed stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("payments: stripe decode: %w", err)
	}
	if parsed.URL == "" {
		return nil, fmt.Errorf("payments: stripe response missing checkout url")
	}
	return &CheckoutResponse{URL: parsed.URL, ProviderID: parsed.ID}, nil
}

// stripeCheckoutSession is the subset of Stripe's Checkout Session we need.
type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
