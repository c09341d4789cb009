package bootstrap

import (
	"strings"

	appconfig "github.com/wolfman30/sobrecupos-ai/internal/config"
	"github.com/wolfman30/sobrecupos-ai/internal/payments"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// BuildCheckout returns the checkout provider and whether it is the fake
// one. PAYMENT_PROVIDER=none disables the payment step entirely.
func BuildCheckout(cfg *appconfig.Config, logger *logging.Logger) (payments.CheckoutProvider, bool) {
	switch cfg.PaymentProvider {
	case "stripe":
		if cfg.StripeSecretKey == "" && !cfg.StripeDryRun {
			logger.Warn("stripe selected without STRIPE_SECRET_KEY; payments disabled")
			return nil, false
		}
		logger.Info("using stripe checkout", "dry_run", cfg.StripeDryRun)
		return payments.NewStripeCheckoutService(cfg.StripeSecretKey, cfg.PaymentSuccessURL, cfg.PaymentCancelURL, logger).
			WithDryRun(cfg.StripeDryRun), false
	case "none", "":
		logger.Info("payments disabled; bookings complete without checkout")
		return nil, false
	default:
		base := strings.TrimRight(cfg.PublicBaseURL, "/")
		if base == "" {
			base = "http://localhost:" + cfg.Port
		}
		logger.Warn("using fake checkout; no real payments are taken", "base_url", base)
		return payments.NewFakeCheckoutService(base, logger), true
	}
}
