// Package conversation is the booking orchestrator: it rate limits inbound
// messages, loads the session, dispatches to the stage handler for the
// current stage or to intent classification, and returns one response.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	"github.com/wolfman30/sobrecupos-ai/internal/audit"
	"github.com/wolfman30/sobrecupos-ai/internal/completion"
	"github.com/wolfman30/sobrecupos-ai/internal/intent"
	"github.com/wolfman30/sobrecupos-ai/internal/notify"
	"github.com/wolfman30/sobrecupos-ai/internal/observability/metrics"
	"github.com/wolfman30/sobrecupos-ai/internal/payments"
	"github.com/wolfman30/sobrecupos-ai/internal/session"
	"github.com/wolfman30/sobrecupos-ai/internal/textutil"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// ErrNotPending is returned by ConfirmPayment for sessions that are not
// waiting for a payment.
var ErrNotPending = errors.New("conversation: session is not pending payment")

var resetPhrases = []string{"reiniciar", "empezar de nuevo", "comenzar de nuevo", "cancelar"}

// Deps are the engine's collaborators. Datastore is required; everything
// else has a working default.
type Deps struct {
	Store      session.Store
	Machine    *session.Machine
	Datastore  appointments.Datastore
	Rules      *intent.Rules
	Classifier intent.Classifier
	Completion *completion.Service
	Notifier   *notify.Service
	Checkout   payments.CheckoutProvider
	Audit      audit.Recorder
	Limiter    RateLimiter
	Metrics    *metrics.ConversationMetrics
	Logger     *logging.Logger

	Location   *time.Location
	PriceCLP   int
	Generalist string
}

// Engine handles one inbound message at a time per session. There is no
// per-session lock: two concurrent messages for the same session race on the
// stored record and the last write wins.
type Engine struct {
	store      session.Store
	machine    *session.Machine
	datastore  appointments.Datastore
	rules      *intent.Rules
	classifier intent.Classifier
	completion *completion.Service
	notifier   *notify.Service
	checkout   payments.CheckoutProvider
	audit      audit.Recorder
	limiter    RateLimiter
	metrics    *metrics.ConversationMetrics
	logger     *logging.Logger

	loc        *time.Location
	price      int
	generalist string
	handlers   map[session.Stage]StageHandler

	now   func() time.Time
	newID func() string
}

// NewEngine wires the orchestrator.
func NewEngine(d Deps) (*Engine, error) {
	if d.Datastore == nil {
		return nil, errors.New("conversation: datastore is required")
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		store:      d.Store,
		machine:    d.Machine,
		datastore:  d.Datastore,
		rules:      d.Rules,
		classifier: d.Classifier,
		completion: d.Completion,
		notifier:   d.Notifier,
		checkout:   d.Checkout,
		audit:      d.Audit,
		limiter:    d.Limiter,
		metrics:    d.Metrics,
		logger:     logger,
		loc:        d.Location,
		price:      d.PriceCLP,
		generalist: d.Generalist,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	if e.store == nil {
		e.store = session.NewMemoryStore(session.DefaultIdleTimeout)
	}
	if e.machine == nil {
		e.machine = session.NewMachine(false, logger)
	}
	if e.rules == nil {
		e.rules = intent.NewRules(nil)
	}
	if e.completion == nil {
		e.completion = completion.NewService(nil, "", logger)
	}
	if e.classifier == nil {
		var remote intent.Classifier
		if e.completion.Configured() {
			remote = intent.NewRemote(e.completion, e.generalist)
		}
		e.classifier = intent.NewFallback(e.rules, remote, logger)
	}
	if e.audit == nil {
		e.audit = audit.Nop{}
	}
	if e.limiter == nil {
		e.limiter = NewMemoryRateLimiter(DefaultRateWindow, DefaultRateMax)
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.generalist == "" {
		e.generalist = intent.MedicinaGeneral
	}
	e.handlers = defaultHandlers()
	e.machine.OnTransition(func(from, to session.Stage, allowed bool) {
		e.metrics.ObserveTransition(string(from), string(to))
		if !allowed {
			e.metrics.ObserveDegraded("transition_outside_graph")
		}
	})
	return e, nil
}

// WithClock overrides the time source used for "today" and session stamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Handle registers h for stage, replacing the default handler.
func (e *Engine) Handle(stage session.Stage, h StageHandler) {
	e.handlers[stage] = h
}

// HandleMessage processes one inbound message and always returns a response.
// The error is ErrRateLimited when the message was throttled; in that case the
// session was not touched.
func (e *Engine) HandleMessage(ctx context.Context, msg Inbound) (resp *Response, err error) {
	start := time.Now()
	if msg.SessionID == "" {
		msg.SessionID = e.newID()
	}
	stage, outcome := session.Stage(""), "ok"
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("conversation handler panicked",
				"session_id", msg.SessionID,
				"stage", string(stage),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			resp = &Response{SessionID: msg.SessionID, Text: msgApology, Stage: stage, Status: http.StatusOK}
			err = nil
			outcome = "panic"
		}
		e.metrics.ObserveMessage(string(stage), outcome, time.Since(start).Seconds())
	}()

	allowed, lerr := e.limiter.Allow(ctx, msg.SessionID)
	if lerr != nil {
		e.logger.Warn("rate limiter unavailable", "session_id", msg.SessionID, "error", lerr)
		allowed = true
	}
	if !allowed {
		outcome = "rate_limited"
		return &Response{SessionID: msg.SessionID, Text: msgRateLimited, Status: http.StatusTooManyRequests}, ErrRateLimited
	}

	s, err := e.store.Get(ctx, msg.SessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		s = nil
	case err != nil:
		e.logger.Error("failed to load session", "session_id", msg.SessionID, "error", err)
		e.metrics.ObserveCollaboratorError("session_store", "get")
		s = nil
	}
	if s != nil {
		stage = s.Stage()
	}

	text := strings.TrimSpace(msg.Text)
	msg.Text = text
	norm := textutil.Normalize(text)

	switch {
	case text == "":
		outcome = "empty"
		if s == nil {
			return &Response{SessionID: msg.SessionID, Text: msgEmpty, Stage: session.StageWelcome, Status: http.StatusOK}, nil
		}
		return e.reply(s, msgEmpty), nil
	case textutil.ContainsAny(norm, resetPhrases):
		outcome = "reset"
		e.discard(ctx, msg.SessionID)
		fresh := session.New(msg.SessionID, e.now())
		e.save(ctx, fresh)
		return e.reply(fresh, msgWelcome), nil
	}

	if s == nil || s.Stage() == session.StageWelcome {
		return e.startFromIntent(ctx, msg), nil
	}

	if e.changedTopic(s.Stage(), text, norm) {
		outcome = "topic_change"
		e.logger.Info("new medical query during form, restarting", "session_id", s.ID, "stage", string(s.Stage()))
		e.discard(ctx, s.ID)
		return e.startFromIntent(ctx, msg), nil
	}

	h, ok := e.handlers[s.Stage()]
	if !ok {
		outcome = "unhandled_stage"
		e.discard(ctx, s.ID)
		return e.startFromIntent(ctx, msg), nil
	}
	resp, handled := h(ctx, e, s, msg)
	if !handled {
		outcome = "unhandled_stage"
		e.discard(ctx, s.ID)
		return e.startFromIntent(ctx, msg), nil
	}
	return resp, nil
}

// changedTopic reports a form stage receiving something that is not the
// expected field but names a specialty or symptom.
func (e *Engine) changedTopic(stage session.Stage, text, norm string) bool {
	if !session.IsFormStage(stage) {
		return false
	}
	if acceptsField(stage, text) {
		return false
	}
	return e.rules.KnowledgeBase().MentionsMedicalTopic(norm)
}

// Session returns the patient-safe view of id.
func (e *Engine) Session(ctx context.Context, id string) (*session.Snapshot, error) {
	s, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// Reset deletes id. Deleting an unknown session is not an error.
func (e *Engine) Reset(ctx context.Context, id string) error {
	return e.store.Delete(ctx, id)
}

// advance moves s to next and persists it.
func (e *Engine) advance(ctx context.Context, s *session.Session, next session.State) error {
	if err := e.machine.Advance(s, next); err != nil {
		e.logger.Error("stage transition refused", "session_id", s.ID, "from", string(s.Stage()), "to", string(next.Stage()), "error", err)
		return err
	}
	e.save(ctx, s)
	return nil
}

// retry records a failed input, keeps the stage and re-prompts.
func (e *Engine) retry(ctx context.Context, s *session.Session, hint, example string) *Response {
	n := s.Reject()
	e.save(ctx, s)
	return e.reply(s, withExample(hint, example, n))
}

func (e *Engine) save(ctx context.Context, s *session.Session) {
	if err := e.store.Set(ctx, s); err != nil {
		e.logger.Error("failed to save session", "session_id", s.ID, "error", err)
		e.metrics.ObserveCollaboratorError("session_store", "set")
	}
}

func (e *Engine) discard(ctx context.Context, id string) {
	if err := e.store.Delete(ctx, id); err != nil {
		e.logger.Warn("failed to delete session", "session_id", id, "error", err)
		e.metrics.ObserveCollaboratorError("session_store", "delete")
	}
}

func (e *Engine) reply(s *session.Session, text string) *Response {
	return &Response{
		SessionID: s.ID,
		Text:      text,
		Stage:     s.Stage(),
		Session:   s.Snapshot(),
		Payment:   paymentAction(s.State),
		Status:    http.StatusOK,
	}
}

func (e *Engine) replyWithOptions(s *session.Session, text string, options []appointments.Record) *Response {
	resp := e.reply(s, text)
	resp.Options = optionViews(options, e.loc)
	return resp
}

// closed replies without keeping any session.
func (e *Engine) closed(id, text string) *Response {
	return &Response{SessionID: id, Text: text, Stage: session.StageWelcome, Status: http.StatusOK}
}

func (e *Engine) today() time.Time {
	return e.now().In(e.loc)
}
