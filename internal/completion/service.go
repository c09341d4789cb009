package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/sobrecupos-ai/internal/textutil"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// MaxEmpathyLines bounds every empathic opener.
const MaxEmpathyLines = 3

const (
	medicalPrompt = `Eres un clasificador para un servicio chileno de reserva de horas médicas.
Responde únicamente "SI" si el mensaje describe un síntoma, una dolencia o la necesidad de ver a un médico.
En cualquier otro caso responde únicamente "NO".`

	specialtyPrompt = `Eres un asistente de triage. Elige la especialidad médica más adecuada para el mensaje del paciente.
Responde solo con el nombre exacto de una especialidad de esta lista, sin explicación:
%s`

	empathyPrompt = `Eres un asistente amable de una plataforma chilena de sobrecupos médicos.
Escribe una frase breve y empática (máximo 3 líneas) para alguien que consulta por el motivo indicado.
No des diagnósticos ni indicaciones médicas. No saludes. Usa español de Chile y tutea.`

	redirectPrompt = `Eres un asistente de una plataforma chilena de sobrecupos médicos.
El usuario escribió algo que no es una consulta médica. Responde con empatía en máximo 3 líneas,
sin responder el contenido de su mensaje, e invítalo a contarte sus síntomas o la especialidad que necesita.`
)

// Service asks the configured model the booking flow's questions and falls
// back to canned replies for phrasing. It satisfies intent.Judge.
type Service struct {
	client     LLMClient
	model      string
	canned     *Canned
	logger     *logging.Logger
	onDegraded func(op string)
}

// NewService builds a service over client. A nil client is allowed: the
// judgment calls then return ErrNotConfigured and phrasing uses canned text.
func NewService(client LLMClient, model string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{client: client, model: model, canned: NewCanned(), logger: logger}
}

// WithCanned replaces the canned responder.
func (s *Service) WithCanned(c *Canned) *Service {
	s.canned = c
	return s
}

// OnDegraded registers fn to be called whenever a canned reply replaces a
// model answer.
func (s *Service) OnDegraded(fn func(op string)) {
	s.onDegraded = fn
}

// Configured reports whether a model client is wired.
func (s *Service) Configured() bool {
	return s != nil && s.client != nil
}

// IsMedicalQuery asks for a yes/no judgment on text.
func (s *Service) IsMedicalQuery(ctx context.Context, text string) (bool, error) {
	answer, err := s.ask(ctx, medicalPrompt, text, 5)
	if err != nil {
		return false, fmt.Errorf("completion: medical judgment: %w", err)
	}
	first := textutil.Words(textutil.Normalize(answer))
	if len(first) == 0 {
		return false, nil
	}
	switch first[0] {
	case "si", "yes":
		return true, nil
	}
	return false, nil
}

// PickSpecialty asks which of options fits text. The raw answer is returned;
// callers constrain it to options.
func (s *Service) PickSpecialty(ctx context.Context, text string, options []string) (string, error) {
	if len(options) == 0 {
		return "", nil
	}
	prompt := fmt.Sprintf(specialtyPrompt, "- "+strings.Join(options, "\n- "))
	answer, err := s.ask(ctx, prompt, text, 20)
	if err != nil {
		return "", fmt.Errorf("completion: specialty pick: %w", err)
	}
	answer = ClampLines(answer, 1)
	return strings.Trim(answer, " \t\"'.-*"), nil
}

// Empathize returns a short opener for a medical reason for consultation.
// It never fails.
func (s *Service) Empathize(ctx context.Context, motivo string, urgent bool) string {
	if strings.TrimSpace(motivo) != "" && s.Configured() {
		answer, err := s.ask(ctx, empathyPrompt, motivo, 80)
		if err == nil {
			if out := ClampLines(answer, MaxEmpathyLines); out != "" {
				return out
			}
		} else {
			s.logger.Warn("empathy completion failed", "error", err)
		}
		s.degraded("empathize")
	}
	return s.canned.Empathy(urgent)
}

// Redirect returns a short reply steering an off-topic message back to
// booking. It never fails.
func (s *Service) Redirect(ctx context.Context, text string) string {
	if s.Configured() {
		answer, err := s.ask(ctx, redirectPrompt, text, 80)
		if err == nil {
			if out := ClampLines(answer, MaxEmpathyLines); out != "" {
				return out
			}
		} else {
			s.logger.Warn("redirect completion failed", "error", err)
		}
		s.degraded("redirect")
	}
	return s.canned.Redirect()
}

func (s *Service) ask(ctx context.Context, system, text string, maxTokens int32) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	resp, err := s.client.Complete(ctx, Request{
		Model:       s.model,
		System:      []string{system},
		Messages:    []Message{{Role: RoleUser, Content: text}},
		MaxTokens:   maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (s *Service) degraded(op string) {
	if s.onDegraded != nil {
		s.onDegraded(op)
	}
}
