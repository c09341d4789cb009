package intent

import (
	"context"
	"fmt"

	"github.com/wolfman30/sobrecupos-ai/internal/textutil"
)

// Judge is the subset of the completion service the remote classifier needs.
type Judge interface {
	IsMedicalQuery(ctx context.Context, text string) (bool, error)
	PickSpecialty(ctx context.Context, text string, options []string) (string, error)
}

// Remote asks the completion service whether the text is medical and, if so,
// which of the available specialties fits best.
type Remote struct {
	judge      Judge
	generalist string
}

// NewRemote builds a completion-assisted classifier. The generalist is used
// whenever the model answers outside the supplied specialty list.
func NewRemote(judge Judge, generalist string) *Remote {
	if generalist == "" {
		generalist = MedicinaGeneral
	}
	return &Remote{judge: judge, generalist: generalist}
}

// Classify implements Classifier. On error the returned Intent still carries the
// degraded answer: "not medical" if the first call failed, "medical without
// specialty" if the second one did.
func (r *Remote) Classify(ctx context.Context, req Request) (Intent, error) {
	out := Intent{Urgency: UrgencyNormal, Source: SourceCompletion, Confidence: 0.5}
	if r == nil || r.judge == nil {
		return out, nil
	}

	medical, err := r.judge.IsMedicalQuery(ctx, req.Text)
	if err != nil {
		return out, fmt.Errorf("intent: medical judgment: %w", err)
	}
	if !medical {
		return out, nil
	}
	out.IsMedical = true
	out.Confidence = 0.8

	answer, err := r.judge.PickSpecialty(ctx, req.Text, req.AvailableSpecialties)
	if err != nil {
		return out, fmt.Errorf("intent: specialty pick: %w", err)
	}
	out.Specialty = ConstrainSpecialty(answer, req.AvailableSpecialties, r.generalist)
	return out, nil
}

// ConstrainSpecialty maps answer onto options, ignoring case and accents.
// Anything not in options becomes the generalist.
func ConstrainSpecialty(answer string, options []string, generalist string) string {
	want := textutil.Normalize(answer)
	if want != "" {
		for _, opt := range options {
			if textutil.Normalize(opt) == want {
				return opt
			}
		}
		for _, opt := range options {
			if textutil.ContainsPhrase(want, textutil.Normalize(opt)) {
				return opt
			}
		}
	}
	return generalist
}
