package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/sobrecupos-ai/internal/api/router"
	"github.com/wolfman30/sobrecupos-ai/internal/app/bootstrap"
	"github.com/wolfman30/sobrecupos-ai/internal/audit"
	appconfig "github.com/wolfman30/sobrecupos-ai/internal/config"
	"github.com/wolfman30/sobrecupos-ai/internal/conversation"
	httpmiddleware "github.com/wolfman30/sobrecupos-ai/internal/http/middleware"
	"github.com/wolfman30/sobrecupos-ai/internal/observability/metrics"
	"github.com/wolfman30/sobrecupos-ai/internal/payments"
	"github.com/wolfman30/sobrecupos-ai/internal/session"
	"github.com/wolfman30/sobrecupos-ai/internal/webchat"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting sobrecupos API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := bootstrap.Build(ctx, cfg, reg, logger)
	if err != nil {
		logger.Error("failed to wire application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go session.RunSweeper(ctx, app.Store, cfg.SessionSweepInterval, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           buildHandler(cfg, app, reg, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "error", err)
		app.Close()
		os.Exit(1)
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		app.Close()
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildHandler mounts the HTTP surface over a wired app. Payment
// confirmations pass through the web chat so an open widget hears about them.
func buildHandler(cfg *appconfig.Config, app *bootstrap.App, reg *prometheus.Registry, logger *logging.Logger) http.Handler {
	chat := webchat.NewHandler(app.Engine, cfg.CORSAllowedOrigins, logger)
	confirmer := webchat.NewPaymentPusher(app.Engine, chat, logger)

	routerCfg := &router.Config{
		Logger:              logger,
		HTTPMetrics:         metrics.NewHTTPMetrics(reg),
		IPLimiter:           httpmiddleware.NewIPLimiter(cfg.IPRateLimitPerSecond, cfg.IPRateLimitBurst),
		ConversationHandler: conversation.NewHandler(app.Engine, app.FakePayments, logger),
		WebChat:             chat,
		AuditHandler:        audit.NewHandler(app.Audit, logger),
		AdminJWTSecret:      cfg.AdminJWTSecret,
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		Ready:               app.Ready,
	}
	if app.FakePayments {
		routerCfg.FakePayments = payments.NewFakePaymentsHandler(confirmer, logger)
	}
	if cfg.PaymentProvider == "stripe" {
		routerCfg.StripeWebhook = payments.NewStripeWebhookHandler(cfg.StripeWebhookSecret, confirmer, logger)
	}
	return router.New(routerCfg)
}
