package payments

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// FakeCheckoutService is a dev/demo checkout provider that points at the
// built-in fake payment page. Never enable it in production.
type FakeCheckoutService struct {
	publicBaseURL string
	logger        *logging.Logger
}

func NewFakeCheckoutService(publicBaseURL string, logger *logging.Logger) *FakeCheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeCheckoutService{
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		logger:        logger,
	}
}

// CreatePaymentLink implements CheckoutProvider.
func (s *FakeCheckoutService) CreatePaymentLink(_ context.Context, params CheckoutParams) (*CheckoutResponse, error) {
	if strings.TrimSpace(params.SessionID) == "" {
		return nil, fmt.Errorf("payments: fake checkout requires a session id")
	}
	if s.publicBaseURL == "" {
		return nil, fmt.Errorf("payments: fake checkout requires PUBLIC_BASE_URL")
	}
	if !isValidBaseURL(s.publicBaseURL) {
		return nil, fmt.Errorf("payments: fake checkout PUBLIC_BASE_URL must be an absolute http(s) URL")
	}

	q := url.Values{}
	q.Set("amount", fmt.Sprint(params.AmountCLP))
	if params.ConfirmationCode != "" {
		q.Set("code", params.ConfirmationCode)
	}
	checkoutURL := fmt.Sprintf("%s/payments/fake/%s?%s", s.publicBaseURL, url.PathEscape(params.SessionID), q.Encode())
	s.logger.Debug("fake checkout link created", "session_id", params.SessionID)
	return &CheckoutResponse{URL: checkoutURL, ProviderID: "fake:" + params.SessionID}, nil
}

func isValidBaseURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
