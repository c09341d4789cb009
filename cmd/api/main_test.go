package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/sobrecupos-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/sobrecupos-ai/internal/config"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

func testConfig(t *testing.T) *appconfig.Config {
	t.Helper()
	for _, key := range []string{"SESSION_BACKEND", "DATASTORE_BACKEND", "COMPLETION_PROVIDER", "EMAIL_PROVIDER", "PAYMENT_PROVIDER", "AUDIT_BACKEND", "ADMIN_JWT_SECRET"} {
		t.Setenv(key, "")
	}
	return appconfig.Load()
}

func newServer(t *testing.T, cfg *appconfig.Config) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	logger := logging.Discard()
	app, err := bootstrap.Build(context.Background(), cfg, reg, logger)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return buildHandler(cfg, app, reg, logger)
}

func TestBuildHandler_DemoStack(t *testing.T) {
	h := newServer(t, testConfig(t))

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"session_id":"m-1","text":"me duele la cabeza hace días"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "getting-name")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sobrecupos_conversation_messages_total")
	assert.Contains(t, rec.Body.String(), "sobrecupos_http_requests_total")
}

func TestBuildHandler_FakePaymentRoutesFollowProvider(t *testing.T) {
	cfg := testConfig(t)
	h := newServer(t, cfg)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/fake/x?amount=1000", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	cfg.PaymentProvider = "none"
	h = newServer(t, cfg)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/fake/x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/payments/confirm", strings.NewReader(`{"session_id":"x"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
