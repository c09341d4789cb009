package payments

import (
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// FakePaymentsHandler serves a tiny demo page to "complete" a sobrecupo
// payment. Only mount it when PAYMENT_PROVIDER=fake.
type FakePaymentsHandler struct {
	confirmer Confirmer
	logger    *logging.Logger
}

func NewFakePaymentsHandler(confirmer Confirmer, logger *logging.Logger) *FakePaymentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakePaymentsHandler{confirmer: confirmer, logger: logger}
}

func (h *FakePaymentsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{sessionID}", h.HandleCheckout)
	r.Post("/{sessionID}/complete", h.HandleComplete)
	r.Get("/{sessionID}/success", h.HandleSuccess)
	return r
}

func (h *FakePaymentsHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		http.Error(w, "missing session", http.StatusBadRequest)
		return
	}
	amount, _ := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	code := r.URL.Query().Get("code")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html lang="es">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Pago de prueba</title>
    <style>
      body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,sans-serif;max-width:680px;margin:40px auto;padding:0 16px;}
      .card{border:1px solid #e5e7eb;border-radius:12px;padding:18px;}
      .btn{background:#0f766e;color:#fff;padding:12px 16px;border-radius:10px;border:0;cursor:pointer;}
      .muted{color:#6b7280;font-size:14px;}
    </style>
  </head>
  <body>
    <h1>Pago de prueba</h1>
    <div class="card">
      <p><strong>Monto:</strong> %s</p>
      <p><strong>Código:</strong> %s</p>
      <p class="muted">Página de demostración: no se procesa ningún pago real.</p>
      <form method="POST" action="%s/complete">
        <button class="btn" type="submit">Pagar</button>
      </form>
    </div>
  </body>
</html>`, FormatCLP(amount), html.EscapeString(code), html.EscapeString(url.PathEscape(sessionID)))
}

func (h *FakePaymentsHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" || h.confirmer == nil {
		http.Error(w, "payments unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := h.confirmer.ConfirmPayment(r.Context(), sessionID, "fake:"+sessionID); err != nil {
		h.logger.Error("fake payment completion failed", "error", err, "session_id", sessionID)
		http.Error(w, "no se pudo completar el pago", http.StatusConflict)
		return
	}
	http.Redirect(w, r, "success", http.StatusSeeOther)
}

func (h *FakePaymentsHandler) HandleSuccess(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!doctype html>
<html lang="es">
  <head><meta charset="utf-8" /><title>Pago recibido</title></head>
  <body><h1>¡Pago recibido!</h1><p>Tu sobrecupo quedó confirmado. Puedes volver al chat.</p></body>
</html>`)
}

// FormatCLP renders pesos with dot thousands separators: "$29.990".
func FormatCLP(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}
