package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/sobrecupos-ai/internal/audit"
	"github.com/wolfman30/sobrecupos-ai/internal/conversation"
	httpmiddleware "github.com/wolfman30/sobrecupos-ai/internal/http/middleware"
	"github.com/wolfman30/sobrecupos-ai/internal/observability/metrics"
	"github.com/wolfman30/sobrecupos-ai/internal/payments"
	"github.com/wolfman30/sobrecupos-ai/internal/webchat"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

const readyTimeout = 2 * time.Second

// Config holds router configuration
type Config struct {
	Logger      *logging.Logger
	HTTPMetrics *metrics.HTTPMetrics
	IPLimiter   *httpmiddleware.IPLimiter

	ConversationHandler *conversation.Handler
	WebChat             *webchat.Handler
	StripeWebhook       *payments.StripeWebhookHandler
	FakePayments        *payments.FakePaymentsHandler
	AuditHandler        *audit.Handler

	AdminJWTSecret     string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Ready reports whether backing services answer. Nil means always ready.
	Ready func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger, cfg.HTTPMetrics))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", health)
	r.Get("/ready", ready(cfg.Ready))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Patient-facing routes share the per-IP flood guard.
	r.Group(func(public chi.Router) {
		if cfg.IPLimiter != nil {
			public.Use(httpmiddleware.RateLimit(cfg.IPLimiter, cfg.HTTPMetrics))
		}
		if cfg.ConversationHandler != nil {
			public.Route("/v1", func(v1 chi.Router) {
				cfg.ConversationHandler.Register(v1)
			})
		}
		if cfg.WebChat != nil {
			public.Get("/ws/chat", cfg.WebChat.HandleWebSocket)
			public.Get("/chat/widget.js", cfg.WebChat.HandleWidgetJS)
		}
		if cfg.FakePayments != nil {
			public.Mount("/payments/fake", cfg.FakePayments.Routes())
		}
	})

	// Provider callbacks are signed; no IP limit.
	if cfg.StripeWebhook != nil {
		r.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
	}

	if cfg.AuditHandler != nil && cfg.AdminJWTSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminJWTSecret))
			admin.Get("/audit", cfg.AuditHandler.List)
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func ready(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
