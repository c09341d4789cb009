package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/sobrecupos-ai/internal/config"
	"github.com/wolfman30/sobrecupos-ai/internal/conversation"
	"github.com/wolfman30/sobrecupos-ai/internal/session"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore picks the session backend. SESSION_BACKEND=redis without
// a reachable Redis falls back to memory.
func BuildSessionStore(cfg *appconfig.Config, client *redis.Client, logger *logging.Logger) session.Store {
	if cfg.SessionBackend == "redis" {
		if client != nil {
			logger.Info("using redis session store", "idle_timeout", cfg.SessionIdleTimeout.String())
			return session.NewRedisStore(client, cfg.SessionIdleTimeout, nil)
		}
		logger.Warn("redis session backend requested but redis unavailable; using memory")
	}
	return session.NewMemoryStore(cfg.SessionIdleTimeout)
}

// BuildRateLimiter shares the per-session budget through Redis when it is
// available so several API replicas count together.
func BuildRateLimiter(cfg *appconfig.Config, client *redis.Client, logger *logging.Logger) conversation.RateLimiter {
	if client != nil {
		return conversation.NewRedisRateLimiter(client, cfg.RateLimitWindow, cfg.RateLimitMax, logger)
	}
	return conversation.NewMemoryRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
}
