package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DefaultIdleTimeout is how long a session survives without activity.
const DefaultIdleTimeout = 30 * time.Minute

// Store keeps sessions between messages. Get returns ErrNotFound for absent
// and expired sessions; Delete is idempotent.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	Sweep(ctx context.Context) (int, error)
}

type memoryEntry struct {
	data         []byte
	lastActivity time.Time
}

// MemoryStore is a process-local Store. Entries are kept encoded so callers
// never share mutable state with the store.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]memoryEntry
}

// NewMemoryStore creates an in-memory store with the given idle timeout.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultIdleTimeout
	}
	return &MemoryStore{ttl: ttl, now: time.Now, items: make(map[string]memoryEntry)}
}

// WithClock overrides the time source. Intended for tests.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// Get loads a session and refreshes its activity timestamp.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := m.now()
	if now.Sub(e.lastActivity) > m.ttl {
		delete(m.items, id)
		return nil, ErrNotFound
	}

	var s Session
	if err := json.Unmarshal(e.data, &s); err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	s.LastActivity = now
	e.lastActivity = now
	m.items[id] = e
	return &s, nil
}

// Set stores s and stamps its activity time.
func (m *MemoryStore) Set(_ context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("session: cannot store session without id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s.LastActivity = now
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: store %s: %w", s.ID, err)
	}
	m.items[s.ID] = memoryEntry{data: data, lastActivity: now}
	return nil
}

// Delete removes id. Missing ids are not an error.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// Sweep removes every session idle past the timeout and returns how many.
func (m *MemoryStore) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, e := range m.items {
		if now.Sub(e.lastActivity) > m.ttl {
			delete(m.items, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
