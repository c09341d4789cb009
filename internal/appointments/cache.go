package appointments

import (
	"context"
	"sync"

	"github.com/wolfman30/sobrecupos-ai/internal/textutil"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// CachingDatastore remembers the last successful availability answers and
// serves them when the backend fails. Writes always go to the backend.
type CachingDatastore struct {
	Datastore
	logger *logging.Logger

	mu          sync.RWMutex
	available   map[string][]Record
	specialties []string
	onStale     func(op string)
}

// NewCachingDatastore wraps next.
func NewCachingDatastore(next Datastore, logger *logging.Logger) *CachingDatastore {
	if logger == nil {
		logger = logging.Default()
	}
	return &CachingDatastore{Datastore: next, logger: logger, available: make(map[string][]Record)}
}

// OnStale registers fn to be called whenever a cached answer is served.
func (c *CachingDatastore) OnStale(fn func(op string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStale = fn
}

// ListAvailable implements Datastore.
func (c *CachingDatastore) ListAvailable(ctx context.Context, specialty string) ([]Record, error) {
	records, err := c.Datastore.ListAvailable(ctx, specialty)
	key := textutil.Normalize(specialty)
	if err == nil {
		c.mu.Lock()
		c.available[key] = append([]Record(nil), records...)
		c.mu.Unlock()
		return records, nil
	}

	c.mu.RLock()
	cached, ok := c.available[key]
	c.mu.RUnlock()
	if !ok {
		return nil, err
	}
	c.logger.Warn("serving cached availability", "specialty", specialty, "error", err)
	c.stale("list_available")
	return append([]Record(nil), cached...), nil
}

// ListSpecialties implements Datastore.
func (c *CachingDatastore) ListSpecialties(ctx context.Context) ([]string, error) {
	specialties, err := c.Datastore.ListSpecialties(ctx)
	if err == nil {
		c.mu.Lock()
		c.specialties = append([]string(nil), specialties...)
		c.mu.Unlock()
		return specialties, nil
	}

	c.mu.RLock()
	cached := c.specialties
	c.mu.RUnlock()
	if cached == nil {
		return nil, err
	}
	c.logger.Warn("serving cached specialties", "error", err)
	c.stale("list_specialties")
	return append([]string(nil), cached...), nil
}

func (c *CachingDatastore) stale(op string) {
	c.mu.RLock()
	fn := c.onStale
	c.mu.RUnlock()
	if fn != nil {
		fn(op)
	}
}
