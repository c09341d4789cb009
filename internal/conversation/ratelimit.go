package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// ErrRateLimited is returned with a 429 response when a session sends too
// many messages inside the window.
var ErrRateLimited = errors.New("conversation: rate limited")

const (
	DefaultRateWindow = time.Minute
	DefaultRateMax    = 20
)

// RateLimiter decides whether key may send one more message. A rejected call
// must not count against the window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryRateLimiter is a process-local sliding window.
type MemoryRateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	max       int
	now       func() time.Time
	hits      map[string][]time.Time
	lastSweep time.Time
}

// NewMemoryRateLimiter allows max messages per key in any window-long span.
func NewMemoryRateLimiter(window time.Duration, max int) *MemoryRateLimiter {
	if window <= 0 {
		window = DefaultRateWindow
	}
	if max <= 0 {
		max = DefaultRateMax
	}
	return &MemoryRateLimiter{window: window, max: max, now: time.Now, hits: make(map[string][]time.Time)}
}

// WithClock overrides the time source.
func (l *MemoryRateLimiter) WithClock(now func() time.Time) *MemoryRateLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

// Allow implements RateLimiter. Keys whose window has emptied are swept
// at most once per window.
func (l *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(cutoff)
		l.lastSweep = now
	}
	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false, nil
	}
	l.hits[key] = append(kept, now)
	return true, nil
}

func (l *MemoryRateLimiter) sweep(cutoff time.Time) {
	for k, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hits, k)
		}
	}
}

// Len returns the number of keys currently tracked.
func (l *MemoryRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// Forget drops the window for key.
func (l *MemoryRateLimiter) Forget(key string) {
	l.mu.Lock()
	delete(l.hits, key)
	l.mu.Unlock()
}

var rateTracer = otel.Tracer("sobrecupos.internal.conversation.ratelimit")

// RedisRateLimiter keeps the sliding window in a sorted set per key so that
// several API instances share one budget. Redis errors fail open.
type RedisRateLimiter struct {
	client *redis.Client
	window time.Duration
	max    int
	now    func() time.Time
	tracer trace.Tracer
	logger *logging.Logger
}

// NewRedisRateLimiter builds a shared limiter.
func NewRedisRateLimiter(client *redis.Client, window time.Duration, max int, logger *logging.Logger) *RedisRateLimiter {
	if window <= 0 {
		window = DefaultRateWindow
	}
	if max <= 0 {
		max = DefaultRateMax
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisRateLimiter{client: client, window: window, max: max, now: time.Now, tracer: rateTracer, logger: logger}
}

// WithClock overrides the time source used for window scores.
func (l *RedisRateLimiter) WithClock(now func() time.Time) *RedisRateLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

func rateKey(key string) string {
	return fmt.Sprintf("sobrecupos:ratelimit:%s", key)
}

// Allow implements RateLimiter. Rejected calls are not recorded.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ctx, span := l.tracer.Start(ctx, "ratelimit.allow")
	defer span.End()

	count, err := l.count(ctx, key)
	if err != nil {
		l.logger.Error("rate limit check failed", "error", err, "session_id", key)
		span.SetAttributes(attribute.Bool("ratelimit.fail_open", true))
		return true, nil
	}
	if count >= int64(l.max) {
		span.SetAttributes(attribute.Bool("ratelimit.exceeded", true))
		return false, nil
	}

	now := l.now()
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()[:8]
	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, rateKey(key), redis.Z{Score: float64(now.UnixMilli()), Member: member})
	pipe.PExpire(ctx, rateKey(key), l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Error("rate limit record failed", "error", err, "session_id", key)
	}
	return true, nil
}

// count trims entries older than the window and returns what is left.
func (l *RedisRateLimiter) count(ctx context.Context, key string) (int64, error) {
	cutoff := l.now().Add(-l.window).UnixMilli()
	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rateKey(key), "-inf", strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, rateKey(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}
