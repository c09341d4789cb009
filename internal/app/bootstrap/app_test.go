package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/sobrecupos-ai/internal/audit"
	appconfig "github.com/wolfman30/sobrecupos-ai/internal/config"
	"github.com/wolfman30/sobrecupos-ai/internal/conversation"
	"github.com/wolfman30/sobrecupos-ai/internal/payments"
	"github.com/wolfman30/sobrecupos-ai/internal/session"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

func demoConfig() *appconfig.Config {
	return &appconfig.Config{
		Port:                "8080",
		Timezone:            "America/Santiago",
		SessionBackend:      "memory",
		SessionIdleTimeout:  session.DefaultIdleTimeout,
		RateLimitWindow:     conversation.DefaultRateWindow,
		RateLimitMax:        conversation.DefaultRateMax,
		DatastoreBackend:    "memory",
		CompletionProvider:  "none",
		EmailProvider:       "stub",
		PaymentProvider:     "fake",
		AppointmentPriceCLP: 29990,
		AuditBackend:        "memory",
	}
}

func TestBuild_Demo(t *testing.T) {
	app, err := Build(context.Background(), demoConfig(), prometheus.NewRegistry(), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	assert.True(t, app.FakePayments)
	assert.IsType(t, &session.MemoryStore{}, app.Store)
	assert.IsType(t, &audit.MemoryLog{}, app.Audit)
	assert.False(t, app.Archiver.Enabled())
	assert.NoError(t, app.Ready(context.Background()))

	resp, err := app.Engine.HandleMessage(context.Background(), conversation.Inbound{SessionID: "b-1", Text: "necesito un oftalmólogo"})
	require.NoError(t, err)
	assert.Equal(t, session.StageGettingName, resp.Stage)
}

func TestBuild_RedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := demoConfig()
	cfg.SessionBackend = "redis"
	cfg.RedisAddr = mr.Addr()

	app, err := Build(context.Background(), cfg, nil, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	assert.IsType(t, &session.RedisStore{}, app.Store)
	require.NoError(t, app.Ready(context.Background()))

	_, err = app.Engine.HandleMessage(context.Background(), conversation.Inbound{SessionID: "b-2", Text: "necesito un neurólogo"})
	require.NoError(t, err)
	assert.True(t, mr.Exists("sobrecupos:session:b-2"))
}

func TestBuild_RedisUnavailableFallsBackToMemory(t *testing.T) {
	cfg := demoConfig()
	cfg.SessionBackend = "redis"
	cfg.RedisAddr = "127.0.0.1:1"

	app, err := Build(context.Background(), cfg, nil, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(app.Close)
	assert.IsType(t, &session.MemoryStore{}, app.Store)
}

func TestBuild_MisconfiguredBackends(t *testing.T) {
	for name, mutate := range map[string]func(*appconfig.Config){
		"airtable without key": func(c *appconfig.Config) { c.DatastoreBackend = "airtable" },
		"postgres without url": func(c *appconfig.Config) { c.DatastoreBackend = "postgres" },
		"gemini without key":   func(c *appconfig.Config) { c.CompletionProvider = "gemini" },
		"audit without url":    func(c *appconfig.Config) { c.AuditBackend = "postgres" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := demoConfig()
			mutate(cfg)
			_, err := Build(context.Background(), cfg, nil, logging.Discard())
			assert.Error(t, err)
		})
	}
}

func TestBuildCheckout(t *testing.T) {
	logger := logging.Discard()
	cfg := demoConfig()

	p, fake := BuildCheckout(cfg, logger)
	assert.True(t, fake)
	assert.IsType(t, &payments.FakeCheckoutService{}, p)

	cfg.PaymentProvider = "none"
	p, fake = BuildCheckout(cfg, logger)
	assert.Nil(t, p)
	assert.False(t, fake)

	cfg.PaymentProvider = "stripe"
	p, _ = BuildCheckout(cfg, logger)
	assert.Nil(t, p, "stripe without a key is disabled")

	cfg.StripeSecretKey = "sk_test_123"
	p, fake = BuildCheckout(cfg, logger)
	assert.IsType(t, &payments.StripeCheckoutService{}, p)
	assert.False(t, fake)
}

func TestBuildEmailSenderFallsBackToStub(t *testing.T) {
	cfg := demoConfig()
	cfg.EmailProvider = "sendgrid"
	assert.NotNil(t, BuildEmailSender(cfg, nil, logging.Discard()))

	cfg.EmailProvider = "ses"
	assert.NotNil(t, BuildEmailSender(cfg, nil, logging.Discard()))
}
