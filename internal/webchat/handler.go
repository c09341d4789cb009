// Package webchat carries the conversation over a WebSocket for the embeddable
// chat widget.
package webchat

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wolfman30/sobrecupos-ai/internal/conversation"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

//go:embed widget.js
var widgetJS []byte

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Messenger answers one chat message.
type Messenger interface {
	HandleMessage(ctx context.Context, msg conversation.Inbound) (*conversation.Response, error)
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string                      `json:"type"` // "session", "typing", "message", "payment", "pong", "error"
	SessionID string                      `json:"session_id,omitempty"`
	Text      string                      `json:"text,omitempty"`
	Stage     string                      `json:"stage,omitempty"`
	Options   []conversation.OptionView   `json:"options,omitempty"`
	Payment   *conversation.PaymentAction `json:"payment,omitempty"`
	Timestamp string                      `json:"timestamp,omitempty"`
}

// Handler manages widget connections. One socket per session id; a newer
// connection for the same session replaces the older one.
type Handler struct {
	engine   Messenger
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*wsConn
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) send(msg OutboundMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// NewHandler creates a web chat handler. allowedOrigins follows the CORS
// list: "*" accepts any origin, an empty list accepts same-origin only.
func NewHandler(engine Messenger, allowedOrigins []string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		engine:   engine,
		logger:   logger,
		sessions: make(map[string]*wsConn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	allow := map[string]struct{}{}
	allowAny := false
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		switch o {
		case "":
		case "*":
			allowAny = true
		default:
			allow[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAny {
			return true
		}
		if _, ok := allow[origin]; ok {
			return true
		}
		return strings.EqualFold(strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://"), r.Host)
	}
}

// HandleWebSocket upgrades to WebSocket and serves the chat until the widget
// disconnects. The session id comes from ?session= or is generated.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("webchat: upgrade failed", "error", err)
		return
	}
	h.serve(r.Context(), &wsConn{conn: ws}, resumeSessionID(r.URL.Query().Get("session")))
}

// resumeSessionID accepts only ids this handler could have issued (UUIDs), so
// a client cannot attach to a guessable session name. Anything else starts a
// new session.
func resumeSessionID(requested string) string {
	id, err := uuid.Parse(strings.TrimSpace(requested))
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (h *Handler) serve(ctx context.Context, c *wsConn, sessionID string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.register(sessionID, c)
	defer func() {
		h.unregister(sessionID, c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go h.keepAlive(ctx, c)

	if err := c.send(OutboundMessage{Type: "session", SessionID: sessionID}); err != nil {
		return
	}
	h.logger.Info("webchat: connection opened", "session_id", sessionID)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("webchat: connection lost", "session_id", sessionID, "error", err)
			}
			return
		}
		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.send(OutboundMessage{Type: "error", Text: "mensaje inválido"})
			continue
		}
		switch msg.Type {
		case "ping":
			_ = c.send(OutboundMessage{Type: "pong"})
			continue
		case "message":
		default:
			continue
		}
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		if err := h.processMessage(ctx, c, sessionID, msg.Text); err != nil {
			return
		}
	}
}

func (h *Handler) processMessage(ctx context.Context, c *wsConn, sessionID, text string) error {
	if err := c.send(OutboundMessage{Type: "typing"}); err != nil {
		return err
	}
	resp, err := h.engine.HandleMessage(ctx, conversation.Inbound{SessionID: sessionID, Text: text, Channel: "webchat"})
	if err != nil && !errors.Is(err, conversation.ErrRateLimited) {
		h.logger.Error("webchat: failed to process message", "session_id", sessionID, "error", err)
	}
	if resp == nil {
		return c.send(OutboundMessage{Type: "error", Text: "No pude procesar tu mensaje. Intenta nuevamente."})
	}
	return c.send(OutboundMessage{
		Type:      "message",
		SessionID: resp.SessionID,
		Text:      resp.Text,
		Stage:     string(resp.Stage),
		Options:   resp.Options,
		Payment:   resp.Payment,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) keepAlive(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) register(sessionID string, c *wsConn) {
	h.mu.Lock()
	prev := h.sessions[sessionID]
	h.sessions[sessionID] = c
	h.mu.Unlock()
	if prev != nil {
		_ = prev.conn.Close()
	}
}

func (h *Handler) unregister(sessionID string, c *wsConn) {
	h.mu.Lock()
	if h.sessions[sessionID] == c {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()
}

// SendToSession pushes msg to the session's open socket, if any.
func (h *Handler) SendToSession(sessionID string, msg OutboundMessage) bool {
	h.mu.RLock()
	c, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if err := c.send(msg); err != nil {
		h.logger.Debug("webchat: push failed", "session_id", sessionID, "error", err)
		return false
	}
	return true
}

// Connections returns the number of open sockets.
func (h *Handler) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HandleWidgetJS serves the embeddable widget script.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(widgetJS)
}
