package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	"github.com/wolfman30/sobrecupos-ai/internal/audit"
	"github.com/wolfman30/sobrecupos-ai/internal/conversation"
	httpmiddleware "github.com/wolfman30/sobrecupos-ai/internal/http/middleware"
	"github.com/wolfman30/sobrecupos-ai/internal/observability/metrics"
	"github.com/wolfman30/sobrecupos-ai/internal/payments"
	"github.com/wolfman30/sobrecupos-ai/internal/webchat"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

const adminSecret = "router-test-secret"

func newTestRouter(t *testing.T, mutate ...func(*Config)) http.Handler {
	t.Helper()
	logger := logging.Discard()
	reg := prometheus.NewRegistry()

	doctors, records := appointments.DemoData(time.Now())
	engine, err := conversation.NewEngine(conversation.Deps{
		Datastore: appointments.NewMemoryDatastore(doctors, records),
		Checkout:  payments.NewFakeCheckoutService("http://localhost:8080", logger),
		Metrics:   metrics.NewConversationMetrics(reg),
		Logger:    logger,
	})
	require.NoError(t, err)

	log := audit.NewMemoryLog()
	require.NoError(t, log.Record(context.Background(), audit.Event{Type: audit.EventSlotReserved, SessionID: "s1"}))

	cfg := &Config{
		Logger:              logger,
		HTTPMetrics:         metrics.NewHTTPMetrics(reg),
		ConversationHandler: conversation.NewHandler(engine, true, logger),
		WebChat:             webchat.NewHandler(engine, []string{"*"}, logger),
		FakePayments:        payments.NewFakePaymentsHandler(engine, logger),
		StripeWebhook:       payments.NewStripeWebhookHandler("whsec_test", engine, logger),
		AuditHandler:        audit.NewHandler(log, logger),
		AdminJWTSecret:      adminSecret,
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  []string{"https://sobrecupos.cl"},
	}
	for _, m := range mutate {
		m(cfg)
	}
	return New(cfg)
}

func do(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthEndpoint(t *testing.T) {
	rec := do(newTestRouter(t), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRouterReadyEndpoint(t *testing.T) {
	router := newTestRouter(t, func(c *Config) {
		c.Ready = func(context.Context) error { return errors.New("redis down") }
	})
	rec := do(router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "redis")

	rec = do(newTestRouter(t), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterConversationRoutes(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodPost, "/v1/messages", `{"session_id":"r-1","text":"hola"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"session_id":"r-1"`)

	rec = do(router, http.MethodGet, "/v1/sessions/r-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"welcome"`)

	rec = do(router, http.MethodPost, "/v1/payments/confirm", `{"session_id":"r-1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "session exists but is not waiting for payment")

	rec = do(router, http.MethodPost, "/v1/payments/confirm", `{"session_id":"r-unknown"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	do(router, http.MethodGet, "/health", "")

	rec := do(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sobrecupos_http_requests_total")
}

func TestRouterWidgetAndFakePayments(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodGet, "/chat/widget.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))

	rec = do(router, http.MethodGet, "/payments/fake/s1?amount=29990&code=SC-TEST", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SC-TEST")
}

func TestRouterStripeWebhookRequiresSignature(t *testing.T) {
	rec := do(newTestRouter(t), http.MethodPost, "/webhooks/stripe", `{"id":"evt_1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouterAdminAudit(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodGet, "/admin/audit", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, httpmiddleware.AdminClaims{
		Role: httpmiddleware.AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops@sobrecupos.cl",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(adminSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/audit?session_id=s1", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"count":1`)
}

func TestRouterAdminDisabledWithoutSecret(t *testing.T) {
	router := newTestRouter(t, func(c *Config) { c.AdminJWTSecret = "" })
	rec := do(router, http.MethodGet, "/admin/audit", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterIPRateLimit(t *testing.T) {
	router := newTestRouter(t, func(c *Config) {
		c.IPLimiter = httpmiddleware.NewIPLimiter(0, 1)
	})
	first := do(router, http.MethodGet, "/chat/widget.js", "")
	assert.Equal(t, http.StatusOK, first.Code)
	second := do(router, http.MethodGet, "/chat/widget.js", "")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// health stays outside the limiter
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", "").Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/messages", nil)
	req.Header.Set("Origin", "https://sobrecupos.cl")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://sobrecupos.cl", rec.Header().Get("Access-Control-Allow-Origin"))
}
