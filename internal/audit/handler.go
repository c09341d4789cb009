package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// Handler serves the audit trail to operators. Mount it behind admin auth.
type Handler struct {
	source Querier
	logger *logging.Logger
}

// NewHandler serves events from source.
func NewHandler(source Querier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{source: source, logger: logger}
}

type listResponse struct {
	Events []Event `json:"events"`
	Count  int     `json:"count"`
}

// List handles GET /audit?session_id=&type=&since=&limit=. since is RFC 3339.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{
		SessionID: strings.TrimSpace(q.Get("session_id")),
		Type:      EventType(strings.TrimSpace(q.Get("type"))),
		Limit:     defaultQueryLimit,
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC 3339"})
			return
		}
		f.Since = since
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		f.Limit = min(n, maxQueryLimit)
	}

	events, err := h.source.Query(r.Context(), f)
	if err != nil {
		h.logger.Error("audit query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "audit query failed"})
		return
	}
	if events == nil {
		events = []Event{}
	}
	writeJSON(w, http.StatusOK, listResponse{Events: events, Count: len(events)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
