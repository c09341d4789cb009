package completion

import (
	"math/rand/v2"
	"strings"
)

var (
	cannedEmpathy = []string{
		"Lamento que estés pasando por esto. Vamos a buscarte una hora lo antes posible.",
		"Entiendo tu preocupación. Te ayudo a encontrar atención pronto.",
		"Gracias por contarme. Revisemos qué horas hay disponibles para ti.",
	}
	cannedUrgent = []string{
		"Lamento mucho lo que sientes. Busquemos la hora más próxima.\nSi los síntomas empeoran, acude a un servicio de urgencia.",
		"Tu malestar suena importante, así que priorizaré las horas de hoy.\nSi empeora, no esperes y acude a urgencias.",
	}
	cannedRedirect = []string{
		"Entiendo, pero solo puedo ayudarte a agendar horas médicas. ¿Tienes algún síntoma o necesitas alguna especialidad?",
		"Me encantaría ayudarte, aunque mi especialidad es encontrar sobrecupos médicos. Cuéntame qué síntomas tienes o con qué médico quieres atenderte.",
		"Eso se escapa de lo que puedo hacer. Si me cuentas tus síntomas, te busco una hora con el especialista adecuado.",
	}
)

// Canned picks replies from fixed Spanish sets. It backs the Service whenever
// no model is configured or the model call fails.
type Canned struct {
	pick func(n int) int
}

// NewCanned returns a responder that picks at random.
func NewCanned() *Canned {
	return &Canned{pick: rand.IntN}
}

// Empathy returns an opener for a medical message.
func (c *Canned) Empathy(urgent bool) string {
	if urgent {
		return c.choose(cannedUrgent)
	}
	return c.choose(cannedEmpathy)
}

// Redirect steers an off-topic message back to booking.
func (c *Canned) Redirect() string {
	return c.choose(cannedRedirect)
}

func (c *Canned) choose(set []string) string {
	if c == nil || c.pick == nil {
		return set[0]
	}
	return set[c.pick(len(set))]
}

// ClampLines keeps at most limit non-empty lines of text.
func ClampLines(text string, limit int) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kept = append(kept, line)
		if len(kept) == limit {
			break
		}
	}
	return strings.Join(kept, "\n")
}
