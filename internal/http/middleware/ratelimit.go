package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/wolfman30/sobrecupos-ai/internal/observability/metrics"
)

const (
	bucketIdle    = 10 * time.Minute
	sweepInterval = 5 * time.Minute
)

// IPLimiter is a per-client token bucket in front of the public routes. It
// guards against floods that rotate session ids; the per-session budget is
// enforced by the conversation engine.
type IPLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      float64 // tokens per second
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

// NewIPLimiter allows rate requests per second with the given burst per client.
func NewIPLimiter(rate float64, burst int) *IPLimiter {
	if burst < 1 {
		burst = 1
	}
	return &IPLimiter{buckets: make(map[string]*bucket), rate: rate, burst: burst, now: time.Now}
}

// WithClock overrides the time source.
func (l *IPLimiter) WithClock(now func() time.Time) *IPLimiter {
	l.now = now
	return l
}

// Allow spends one token for ip.
func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= sweepInterval {
		l.sweep(now)
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastTime: now}
		l.buckets[ip] = b
	}
	b.tokens += now.Sub(b.lastTime).Seconds() * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastTime = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops idle buckets. Called with mu held.
func (l *IPLimiter) sweep(now time.Time) {
	cutoff := now.Add(-bucketIdle)
	for ip, b := range l.buckets {
		if b.lastTime.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
	l.lastSweep = now
}

// Len returns the number of tracked clients.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit rejects requests over the limiter's budget with 429. The client
// key is chi's X-Real-Ip when RealIP ran, else the remote host.
func RateLimit(l *IPLimiter, m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientIP(r)) {
				m.ObserveRateLimited()
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
