package intent

import (
	"context"

	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// Fallback consults secondary only when primary is inconclusive.
type Fallback struct {
	primary   Classifier
	secondary Classifier
	logger    *logging.Logger
}

// NewFallback composes two classifiers. secondary may be nil.
func NewFallback(primary, secondary Classifier, logger *logging.Logger) *Fallback {
	if logger == nil {
		logger = logging.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

// Classify implements Classifier and never returns an error: a failing
// secondary degrades to whatever it could answer before failing.
func (f *Fallback) Classify(ctx context.Context, req Request) (Intent, error) {
	local, err := f.primary.Classify(ctx, req)
	if err != nil {
		f.logger.Warn("primary classifier failed", "error", err)
		local = Intent{Urgency: UrgencyNormal, Source: SourceRules, Confidence: 0.5}
	} else if local.Conclusive() {
		return local, nil
	}
	if f.secondary == nil {
		return local, nil
	}

	remote, err := f.secondary.Classify(ctx, req)
	if err != nil {
		f.logger.Warn("remote classifier degraded", "error", err)
		remote.IsMedical = remote.IsMedical || local.IsMedical
	}
	if remote.Urgency == "" {
		remote.Urgency = local.Urgency
	}
	remote.Matched = local.Matched
	if local.Confidence > remote.Confidence {
		remote.Confidence = local.Confidence
	}
	return remote, nil
}
