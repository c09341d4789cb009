package intent

import (
	"context"
	"regexp"
	"strings"

	"github.com/wolfman30/sobrecupos-ai/internal/textutil"
)

// doctorPattern matches an honorific followed by one or more capitalized words.
// It runs on the raw text so capitalization is preserved.
var doctorPattern = regexp.MustCompile(`(?:^|[^\p{L}])(?i:doctora?|dra?)\.?\s+(\p{Lu}[\p{Ll}\p{Lu}'-]*(?:\s+\p{Lu}[\p{Ll}\p{Lu}'-]*)*)`)

const longInputRunes = 30

// Rules is the local, side-effect-free classifier.
type Rules struct {
	kb *KnowledgeBase
}

// NewRules builds a rule classifier; a nil knowledge base selects the default tables.
func NewRules(kb *KnowledgeBase) *Rules {
	if kb == nil {
		kb = DefaultKnowledgeBase()
	}
	return &Rules{kb: kb}
}

// KnowledgeBase exposes the tables the classifier runs on.
func (r *Rules) KnowledgeBase() *KnowledgeBase {
	return r.kb
}

// Classify implements Classifier. It never returns an error.
func (r *Rules) Classify(_ context.Context, req Request) (Intent, error) {
	return r.Evaluate(req.Text), nil
}

// Evaluate runs the rule pipeline on text.
func (r *Rules) Evaluate(text string) Intent {
	norm := textutil.Normalize(text)
	out := Intent{Urgency: UrgencyNormal, Source: SourceRules}
	if norm == "" {
		out.Confidence = 0.5
		return out
	}

	out.IsGreeting = r.kb.IsGreeting(norm)

	matchedMedical := false
	if name, kw, ok := r.kb.MatchSpecialty(norm); ok {
		out.Specialty = name
		out.Matched = append(out.Matched, kw)
		matchedMedical = true
	}
	if fam, phrase, ok := r.kb.MatchSymptom(norm); ok {
		out.Symptom = fam.Name
		out.Matched = append(out.Matched, phrase)
		matchedMedical = true
		if out.Specialty == "" {
			out.Specialty, out.Severity = r.kb.Route(fam, norm)
		}
		if fam.RankUrgency {
			out.Urgency = r.kb.RankUrgency(norm)
		}
	}
	if out.Specialty != "" {
		out.SubArea = r.kb.SubAreaOf(out.Specialty, norm)
	}

	out.NamedDoctor = DoctorName(text)

	mentionsPain := textutil.ContainsAny(norm, r.kb.PainWords)
	out.IsMedical = matchedMedical || textutil.ContainsAny(norm, r.kb.MedicalWords)

	// A greeting that carries a medical question is routed as medical.
	if out.IsGreeting && (out.IsMedical || out.NamedDoctor != "") {
		out.IsGreeting = false
	}

	out.Confidence = confidence(matchedMedical, len([]rune(norm)) > longInputRunes, mentionsPain)
	return out
}

// DoctorName extracts "Juan Pérez" from "quiero hora con el Dr. Juan Pérez".
func DoctorName(text string) string {
	m := doctorPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func confidence(medical, long, pain bool) float64 {
	c := 0.5
	if medical {
		c += 0.3
	}
	if long {
		c += 0.1
	}
	if pain {
		c += 0.1
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}
