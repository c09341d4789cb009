package session

import (
	"context"
	"time"

	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// DefaultSweepInterval is how often RunSweeper purges idle sessions.
const DefaultSweepInterval = 10 * time.Minute

// RunSweeper calls store.Sweep every interval until ctx is done.
func RunSweeper(ctx context.Context, store Store, interval time.Duration, logger *logging.Logger) {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Sweep(ctx)
			if err != nil {
				logger.Warn("session sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Debug("swept idle sessions", "removed", removed)
			}
		}
	}
}
