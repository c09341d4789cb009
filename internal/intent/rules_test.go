package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/sobrecupos-ai/internal/textutil"
)

func TestRulesEvaluate(t *testing.T) {
	r := NewRules(nil)

	tests := []struct {
		name        string
		input       string
		greeting    bool
		medical     bool
		specialty   string
		severity    Severity
		urgency     Urgency
		subArea     string
		namedDoctor string
	}{
		{name: "plain greeting", input: "Hola", greeting: true, urgency: UrgencyNormal},
		{name: "greeting with punctuation", input: "Buenas tardes!!", greeting: true, urgency: UrgencyNormal},
		{
			name:      "chronic migraine escalates to neurology",
			input:     "Tengo dolor de cabeza desde hace 3 semanas, migraña fuerte",
			medical:   true,
			specialty: Neurologia,
			severity:  SeveritySevere,
			urgency:   UrgencyNormal,
			subArea:   "Cefaleas",
		},
		{
			name:      "mild headache stays with the generalist",
			input:     "me duele la cabeza",
			medical:   true,
			specialty: MedicinaGeneral,
			severity:  SeverityMild,
			urgency:   UrgencyNormal,
		},
		{
			name:      "direct specialty",
			input:     "Necesito un oftalmólogo",
			medical:   true,
			specialty: Oftalmologia,
			urgency:   UrgencyNormal,
		},
		{
			name:      "table order breaks specialty ties",
			input:     "busco neurólogo u oftalmólogo",
			medical:   true,
			specialty: Oftalmologia,
			urgency:   UrgencyNormal,
		},
		{
			name:      "vision loss is critical",
			input:     "Perdí la visión del ojo derecho",
			medical:   true,
			specialty: Oftalmologia,
			urgency:   UrgencyCritical,
		},
		{
			name:      "flashes are high urgency",
			input:     "veo destellos en la vista",
			medical:   true,
			specialty: Oftalmologia,
			urgency:   UrgencyHigh,
			subArea:   "Retina",
		},
		{
			name:      "red eye is moderate",
			input:     "tengo el ojo rojo desde ayer",
			medical:   true,
			specialty: Oftalmologia,
			urgency:   UrgencyModerate,
		},
		{
			name:      "greeting with a symptom is medical",
			input:     "Hola, tengo dolor de espalda",
			medical:   true,
			specialty: Traumatologia,
			urgency:   UrgencyNormal,
			subArea:   "Columna",
		},
		{
			name:        "named doctor",
			input:       "Quiero hora con la Dra. María José Soto",
			urgency:     UrgencyNormal,
			namedDoctor: "María José Soto",
		},
		{
			name:      "symptom table order",
			input:     "mi hijo tiene fiebre",
			medical:   true,
			specialty: MedicinaGeneral,
			urgency:   UrgencyNormal,
		},
		{name: "off topic", input: "¿dónde queda el estacionamiento?", urgency: UrgencyNormal},
		{name: "word that starts like a greeting", input: "holanda", urgency: UrgencyNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Evaluate(tt.input)
			assert.Equal(t, tt.greeting, got.IsGreeting, "greeting")
			assert.Equal(t, tt.medical, got.IsMedical, "medical")
			assert.Equal(t, tt.specialty, got.Specialty, "specialty")
			assert.Equal(t, tt.severity, got.Severity, "severity")
			assert.Equal(t, tt.urgency, got.Urgency, "urgency")
			assert.Equal(t, tt.subArea, got.SubArea, "sub-area")
			assert.Equal(t, tt.namedDoctor, got.NamedDoctor, "doctor")
			assert.Equal(t, SourceRules, got.Source)
		})
	}
}

func TestRulesEvaluate_Confidence(t *testing.T) {
	r := NewRules(nil)

	assert.InDelta(t, 0.5, r.Evaluate("Hola").Confidence, 1e-9)
	assert.InDelta(t, 0.8, r.Evaluate("ojo rojo").Confidence, 1e-9)
	assert.InDelta(t, 0.9, r.Evaluate("ojo rojo y me duele").Confidence, 1e-9)
	assert.InDelta(t, 1.0, r.Evaluate("Tengo dolor de cabeza desde hace 3 semanas, migraña fuerte").Confidence, 1e-9)
}

func TestConfidenceIsCapped(t *testing.T) {
	assert.InDelta(t, 0.5, confidence(false, false, false), 1e-9)
	assert.InDelta(t, 0.6, confidence(false, true, false), 1e-9)
	assert.InDelta(t, 1.0, confidence(true, true, true), 1e-9)
	assert.LessOrEqual(t, confidence(true, true, true), 1.0)
}

func TestRulesClassify_NeverErrors(t *testing.T) {
	got, err := NewRules(nil).Classify(context.Background(), Request{Text: ""})
	require.NoError(t, err)
	assert.False(t, got.Conclusive())
	assert.Equal(t, UrgencyNormal, got.Urgency)
}

func TestDoctorName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Quiero hora con el Dr. Juan Pérez", "Juan Pérez"},
		{"doctora Ana para mañana", "Ana"},
		{"con el Dr Ramírez", "Ramírez"},
		{"DRA. Núñez por favor", "Núñez"},
		{"dr soto", ""},
		{"necesito un doctor", ""},
		{"Pedro González", ""},
		{"Andrea Dra", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, DoctorName(tt.input))
		})
	}
}

func TestKnowledgeBase_PhrasesAreNormalized(t *testing.T) {
	kb := DefaultKnowledgeBase()
	check := func(label string, phrases []string) {
		for _, p := range phrases {
			assert.Equal(t, textutil.Normalize(p), p, "%s phrase %q", label, p)
		}
	}

	check("greeting", kb.Greetings)
	check("medical", kb.MedicalWords)
	check("pain", kb.PainWords)
	check("critical", kb.Urgency.Critical)
	check("high", kb.Urgency.High)
	check("moderate", kb.Urgency.Moderate)
	for _, sp := range kb.Specialties {
		check(sp.Name, sp.Keywords)
		for _, sa := range sp.SubAreas {
			check(sp.Name+"/"+sa.Name, sa.Keywords)
		}
	}
	for _, fam := range kb.Symptoms {
		check(fam.Name, fam.Phrases)
		check(fam.Name+" escalation", fam.Escalation)
	}
}

func TestKnowledgeBase_SymptomsRouteToKnownSpecialties(t *testing.T) {
	kb := DefaultKnowledgeBase()
	known := map[string]bool{}
	for _, sp := range kb.Specialties {
		known[sp.Name] = true
	}
	for _, fam := range kb.Symptoms {
		assert.True(t, known[fam.Specialty], "family %s routes to unknown %q", fam.Name, fam.Specialty)
		if fam.EscalateTo != "" {
			assert.True(t, known[fam.EscalateTo], "family %s escalates to unknown %q", fam.Name, fam.EscalateTo)
		}
	}
	assert.True(t, known[kb.Generalist])
}

func TestKnowledgeBase_RankUrgency(t *testing.T) {
	kb := DefaultKnowledgeBase()
	tests := []struct {
		input string
		want  Urgency
	}{
		{"me cayo cloro en el ojo", UrgencyCritical},
		{"veo como una cortina negra", UrgencyCritical},
		{"dolor intenso en el ojo", UrgencyHigh},
		{"tengo vision doble", UrgencyHigh},
		{"el ojo esta hinchado", UrgencyModerate},
		{"control de lentes", UrgencyNormal},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, kb.RankUrgency(tt.input))
		})
	}
	assert.True(t, UrgencyCritical.IsUrgent())
	assert.True(t, UrgencyHigh.IsUrgent())
	assert.False(t, UrgencyModerate.IsUrgent())
	assert.False(t, UrgencyNormal.IsUrgent())
}

func TestKnowledgeBase_MentionsMedicalTopic(t *testing.T) {
	kb := DefaultKnowledgeBase()
	assert.True(t, kb.MentionsMedicalTopic("ahora me duele la cabeza"))
	assert.True(t, kb.MentionsMedicalTopic("mejor un dermatologo"))
	assert.False(t, kb.MentionsMedicalTopic("12.345.678-5"))
	assert.False(t, kb.MentionsMedicalTopic("juan.perez@correo.cl"))
	assert.False(t, kb.MentionsMedicalTopic("35 anos"))
}
