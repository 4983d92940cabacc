package ratelimit

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// ModuleConfig configures the rate limiting module.
type ModuleConfig struct {
	// RedisAddr selects the Redis sliding window limiter when set.
	RedisAddr     string
	RedisPassword string
	// KeyPrefix is the prefix for all rate limit keys in Redis.
	KeyPrefix string
	// Gateway limits POST requests per client.
	Gateway Config
	// PushPerSecond and PushBurst limit sends on one push connection.
	PushPerSecond float64
	PushBurst     int
}

// DefaultModuleConfig returns in-process limits.
func DefaultModuleConfig() ModuleConfig {
	return ModuleConfig{
		KeyPrefix:     "chat-relay:ratelimit:",
		Gateway:       DefaultConfig(),
		PushPerSecond: 10,
		PushBurst:     20,
	}
}

// Module provides the gateway limiter and per-connection push buckets.
type Module struct {
	cfg        ModuleConfig
	client     *redis.Client
	limiter    Limiter
	middleware *Middleware
	logger     types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new rate limiting module.
func NewModule(cfg ModuleConfig, logger types.Logger) *Module {
	defaults := DefaultModuleConfig()
	if cfg.Gateway.RequestsPerWindow <= 0 || cfg.Gateway.WindowSize <= 0 {
		cfg.Gateway = defaults.Gateway
	}
	if cfg.PushPerSecond <= 0 {
		cfg.PushPerSecond = defaults.PushPerSecond
	}
	if cfg.PushBurst <= 0 {
		cfg.PushBurst = defaults.PushBurst
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	return &Module{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "ratelimit"
}

// Start connects to Redis when configured, otherwise uses local buckets.
func (m *Module) Start(ctx context.Context) error {
	if m.cfg.RedisAddr != "" {
		m.client = redis.NewClient(&redis.Options{
			Addr:     m.cfg.RedisAddr,
			Password: m.cfg.RedisPassword,
		})
		if err := m.client.Ping(ctx).Err(); err != nil {
			_ = m.client.Close()
			m.client = nil
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		m.limiter = NewSlidingWindowLimiter(m.client, m.cfg.Gateway, m.cfg.KeyPrefix+"gateway:")
		m.logger.Info("Rate limiter connected to Redis", "addr", m.cfg.RedisAddr)
	} else {
		m.limiter = NewLocalLimiter(m.cfg.Gateway)
		m.logger.Info("Rate limiter using in-process buckets")
	}

	m.middleware = NewMiddleware(m.limiter, m.cfg.Gateway.RequestsPerWindow, m.logger)
	m.logger.Info("Rate limit module started",
		"requests", m.cfg.Gateway.RequestsPerWindow,
		"window", m.cfg.Gateway.WindowSize,
		"pushPerSecond", m.cfg.PushPerSecond,
		"pushBurst", m.cfg.PushBurst)
	return nil
}

// Stop closes the limiter and the Redis connection.
func (m *Module) Stop(_ context.Context) error {
	if m.limiter != nil {
		_ = m.limiter.Close()
	}
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			m.logger.Warn("Error closing Redis connection", "error", err)
		}
		m.client = nil
	}
	m.logger.Info("Rate limit module stopped")
	return nil
}

// Health pings Redis when it backs the limiter.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.limiter == nil {
		return mono.HealthStatus{Healthy: false, Message: "rate limiter not initialized"}
	}
	if m.client == nil {
		return mono.HealthStatus{
			Healthy: true,
			Message: "operational",
			Details: map[string]any{"backend": "local"},
		}
	}
	if err := m.client.Ping(ctx).Err(); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("redis ping failed: %v", err),
			Details: map[string]any{"backend": "redis"},
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"backend": "redis"},
	}
}

// Middleware returns the gateway middleware. It is nil before Start.
func (m *Module) Middleware() *Middleware {
	return m.middleware
}

// NewConnLimiter returns a fresh token bucket for one push connection.
func (m *Module) NewConnLimiter() *TokenBucket {
	return NewTokenBucket(m.cfg.PushBurst, m.cfg.PushPerSecond)
}
