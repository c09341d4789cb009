// Package intent maps free patient text to a routing decision: greeting,
// medical query, named doctor, specialty, severity and urgency. It never
// produces a diagnosis; the output only selects which specialty to search.
package intent

import "context"

// Urgency is a coarse ranking used to prioritize same-day slots.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyModerate Urgency = "moderate"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// IsUrgent reports whether same-day slots should be preferred.
func (u Urgency) IsUrgent() bool {
	return u == UrgencyHigh || u == UrgencyCritical
}

// Severity records whether escalation words were found for a symptom family.
type Severity string

const (
	SeverityNone   Severity = ""
	SeverityMild   Severity = "mild"
	SeveritySevere Severity = "severe"
)

// Source identifies which classifier produced an Intent.
type Source string

const (
	SourceRules      Source = "rules"
	SourceCompletion Source = "completion"
)

// Intent is the classifier output.
type Intent struct {
	IsGreeting  bool     `json:"is_greeting"`
	IsMedical   bool     `json:"is_medical"`
	NamedDoctor string   `json:"named_doctor,omitempty"`
	Specialty   string   `json:"specialty,omitempty"`
	SubArea     string   `json:"sub_area,omitempty"`
	Symptom     string   `json:"symptom,omitempty"`
	Severity    Severity `json:"severity,omitempty"`
	Urgency     Urgency  `json:"urgency"`
	Confidence  float64  `json:"confidence"`
	Matched     []string `json:"matched,omitempty"`
	Source      Source   `json:"source"`
}

// Conclusive reports whether local rules decided the routing on their own.
func (i Intent) Conclusive() bool {
	return i.IsGreeting || i.NamedDoctor != "" || i.Specialty != ""
}

// Request carries the text plus the specialties that currently have availability,
// which bounds what a remote classifier may answer.
type Request struct {
	Text                 string
	AvailableSpecialties []string
}

// Classifier maps a request to an Intent. Implementations must not block the
// conversation on failure: an error means "no opinion", never a fatal condition.
type Classifier interface {
	Classify(ctx context.Context, req Request) (Intent, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, req Request) (Intent, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, req Request) (Intent, error) {
	return f(ctx, req)
}
