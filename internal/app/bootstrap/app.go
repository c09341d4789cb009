// Package bootstrap assembles the booking engine and its collaborators from
// configuration. Both the API server and the operator CLI start here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/sobrecupos-ai/internal/audit"
	appconfig "github.com/wolfman30/sobrecupos-ai/internal/config"
	"github.com/wolfman30/sobrecupos-ai/internal/conversation"
	"github.com/wolfman30/sobrecupos-ai/internal/notify"
	"github.com/wolfman30/sobrecupos-ai/internal/observability/metrics"
	"github.com/wolfman30/sobrecupos-ai/internal/session"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// App is a wired engine plus the handles callers need around it.
type App struct {
	Engine       *conversation.Engine
	Store        session.Store
	Redis        *redis.Client
	Audit        AuditLog
	Archiver     *audit.Archiver
	FakePayments bool
	Location     *time.Location
	Metrics      *metrics.ConversationMetrics

	closers []func()
}

// Build wires every collaborator named by cfg. reg may be nil, in which case
// metrics go to a private registry.
func Build(ctx context.Context, cfg *appconfig.Config, reg prometheus.Registerer, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("unknown timezone; using UTC", "timezone", cfg.Timezone, "error", err)
		loc = time.UTC
	}

	app := &App{Location: loc, Metrics: metrics.NewConversationMetrics(reg)}
	fail := func(err error) (*App, error) {
		app.Close()
		return nil, err
	}

	var awsCfg *aws.Config
	if needsAWS(cfg) {
		c, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return fail(fmt.Errorf("bootstrap: load aws config: %w", err))
		}
		awsCfg = &c
	}

	if cfg.SessionBackend == "redis" {
		app.Redis = BuildRedisClient(ctx, cfg, logger, true)
		if app.Redis != nil {
			app.closers = append(app.closers, func() { _ = app.Redis.Close() })
		}
	}
	app.Store = BuildSessionStore(cfg, app.Redis, logger)

	ds, closeDS, err := BuildDatastore(ctx, cfg, loc, logger)
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, closeDS)
	ds.OnStale(func(op string) { app.Metrics.ObserveDegraded("datastore_stale_" + op) })

	comp, closeComp, err := BuildCompletionService(ctx, cfg, awsCfg, logger)
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, func() { _ = closeComp() })
	comp.OnDegraded(func(op string) { app.Metrics.ObserveDegraded("completion_" + op) })

	auditLog, closeAudit, err := BuildAuditLog(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, closeAudit)
	app.Audit = auditLog
	app.Archiver = BuildArchiver(cfg, auditLog, awsCfg, logger)

	checkout, fake := BuildCheckout(cfg, logger)
	app.FakePayments = fake

	engine, err := conversation.NewEngine(conversation.Deps{
		Store:      app.Store,
		Machine:    session.NewMachine(cfg.StrictTransitions, logger),
		Datastore:  ds,
		Completion: comp,
		Notifier:   notify.NewService(BuildEmailSender(cfg, awsCfg, logger), ds, logger),
		Checkout:   checkout,
		Audit:      auditLog,
		Limiter:    BuildRateLimiter(cfg, app.Redis, logger),
		Metrics:    app.Metrics,
		Logger:     logger,
		Location:   loc,
		PriceCLP:   cfg.AppointmentPriceCLP,
	})
	if err != nil {
		return fail(err)
	}
	app.Engine = engine
	return app, nil
}

// Ready pings Redis when the session store depends on it.
func (a *App) Ready(ctx context.Context) error {
	if a.Redis == nil {
		return nil
	}
	return a.Redis.Ping(ctx).Err()
}

// Close releases pools and clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
