package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const redisKeyPrefix = "sobrecupos:session:"

// RedisStore keeps sessions in Redis with a sliding TTL, so expiry is
// enforced by Redis and Sweep has nothing to do.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultIdleTimeout
	}
	if tracer == nil {
		tracer = otel.Tracer("sobrecupos.internal.session.redis")
	}
	return &RedisStore{client: client, ttl: ttl, tracer: tracer, now: time.Now}
}

func sessionKey(id string) string {
	return redisKeyPrefix + id
}

// Get loads a session and slides its TTL.
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	ctx, span := r.tracer.Start(ctx, "session.get")
	defer span.End()

	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: decode %s: %w", id, err)
	}
	if err := r.write(ctx, &s); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &s, nil
}

// Set stores s with a fresh TTL.
func (r *RedisStore) Set(ctx context.Context, s *Session) error {
	ctx, span := r.tracer.Start(ctx, "session.set")
	defer span.End()

	if s == nil || s.ID == "" {
		return fmt.Errorf("session: cannot store session without id")
	}
	if err := r.write(ctx, s); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (r *RedisStore) write(ctx context.Context, s *Session) error {
	now := r.now()
	s.LastActivity = now
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", s.ID, err)
	}
	if err := r.client.Set(ctx, sessionKey(s.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: persist %s: %w", s.ID, err)
	}
	return nil
}

// Delete removes id. Missing keys are not an error.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "session.delete")
	defer span.End()

	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	return nil
}

// Sweep is a no-op; Redis expires keys on its own.
func (r *RedisStore) Sweep(context.Context) (int, error) {
	return 0, nil
}
