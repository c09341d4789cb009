package conversation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/sobrecupos-ai/internal/session"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

const maxMessageBytes = 16 << 10

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Channel   string `json:"channel,omitempty"`
}

// ConfirmRequest is the body of POST /v1/payments/confirm.
type ConfirmRequest struct {
	SessionID  string `json:"session_id"`
	ProviderID string `json:"provider_id,omitempty"`
}

// Handler wires HTTP requests to the conversation engine.
type Handler struct {
	engine       *Engine
	allowConfirm bool
	logger       *logging.Logger
}

// NewHandler creates a conversation handler. allowConfirm exposes the
// unauthenticated payment confirmation route and is meant for the fake
// payment provider only.
func NewHandler(engine *Engine, allowConfirm bool, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, allowConfirm: allowConfirm, logger: logger}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/messages", h.Message)
	r.Get("/sessions/{sessionID}", h.GetSession)
	r.Delete("/sessions/{sessionID}", h.DeleteSession)
	if h.allowConfirm {
		r.Post("/payments/confirm", h.ConfirmPayment)
	}
}

// Message handles POST /v1/messages.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode message request", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.engine.HandleMessage(r.Context(), Inbound{
		SessionID: strings.TrimSpace(req.SessionID),
		Text:      req.Text,
		Channel:   req.Channel,
	})
	if err != nil && !errors.Is(err, ErrRateLimited) {
		h.logger.Error("failed to process message", "error", err)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	h.writeJSON(w, status, resp)
}

// GetSession handles GET /v1/sessions/{sessionID}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	snap, err := h.engine.Session(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load session", "session_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// DeleteSession handles DELETE /v1/sessions/{sessionID}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.engine.Reset(r.Context(), id); err != nil {
		h.logger.Error("failed to delete session", "session_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConfirmPayment handles POST /v1/payments/confirm.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageBytes)).Decode(&req); err != nil || req.SessionID == "" {
		h.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	err := h.engine.ConfirmPayment(r.Context(), req.SessionID, req.ProviderID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, ErrNotPending):
		h.writeError(w, http.StatusConflict, "session is not pending payment")
		return
	case err != nil:
		h.logger.Error("failed to confirm payment", "session_id", req.SessionID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to confirm payment")
		return
	}
	snap, _ := h.engine.Session(r.Context(), req.SessionID)
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
