package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/example/chat-relay/modules/api"
	"github.com/example/chat-relay/modules/ratelimit"
	"github.com/example/chat-relay/modules/relay"
	"github.com/example/chat-relay/modules/store"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port           string `env:"PORT,default=3000"`
	AllowedOrigins string `env:"CORS_ALLOWED_ORIGINS"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`

	StoreDriver  string        `env:"STORE_DRIVER,default=memory"`
	SQLitePath   string        `env:"SQLITE_PATH,default=chat.db"`
	DatabaseURL  string        `env:"DATABASE_URL"`
	BadgerPath   string        `env:"BADGER_PATH,default=./data/badger"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT,default=5s"`
	RetryAfter   time.Duration `env:"RETRY_AFTER,default=2s"`

	SendBuffer        int           `env:"SEND_BUFFER,default=64"`
	RoomIdleTTL       time.Duration `env:"ROOM_IDLE_TTL,default=10m"`
	RoomSweepInterval time.Duration `env:"ROOM_SWEEP_INTERVAL,default=1m"`

	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS,default=60"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
	WSMessagesPerSec  float64       `env:"WS_MESSAGES_PER_SECOND,default=10"`
	WSBurst           int           `env:"WS_BURST,default=20"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`
}

// LoadConfig reads Config from the environment and validates it.
func LoadConfig() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case store.DriverMemory, store.DriverSQLite, store.DriverBadger:
	case store.DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	positive := map[string]time.Duration{
		"STORE_TIMEOUT":       c.StoreTimeout,
		"RETRY_AFTER":         c.RetryAfter,
		"ROOM_IDLE_TTL":       c.RoomIdleTTL,
		"ROOM_SWEEP_INTERVAL": c.RoomSweepInterval,
		"RATE_LIMIT_WINDOW":   c.RateLimitWindow,
		"SHUTDOWN_TIMEOUT":    c.ShutdownTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("SEND_BUFFER must be positive, got %d", c.SendBuffer))
	}
	if c.RateLimitRequests <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimitRequests))
	}
	if c.WSMessagesPerSec <= 0 || c.WSBurst <= 0 {
		errs = append(errs, errors.New("WS_MESSAGES_PER_SECOND and WS_BURST must be positive"))
	}

	return errors.Join(errs...)
}

func (c Config) addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func (c Config) storeConfig() store.Config {
	return store.Config{
		Driver:      c.StoreDriver,
		SQLitePath:  c.SQLitePath,
		DatabaseURL: c.DatabaseURL,
		BadgerPath:  c.BadgerPath,
	}
}

func (c Config) relayConfig() relay.Config {
	return relay.Config{
		SendBuffer:    c.SendBuffer,
		RoomIdleTTL:   c.RoomIdleTTL,
		SweepInterval: c.RoomSweepInterval,
		StoreTimeout:  c.StoreTimeout,
	}
}

func (c Config) rateLimitConfig() ratelimit.ModuleConfig {
	cfg := ratelimit.DefaultModuleConfig()
	cfg.RedisAddr = c.RedisAddr
	cfg.RedisPassword = c.RedisPassword
	cfg.Gateway = ratelimit.Config{
		RequestsPerWindow: c.RateLimitRequests,
		WindowSize:        c.RateLimitWindow,
	}
	cfg.PushPerSecond = c.WSMessagesPerSec
	cfg.PushBurst = c.WSBurst
	return cfg
}

func (c Config) apiConfig() api.Config {
	return api.Config{
		Addr:           c.addr(),
		AllowedOrigins: c.AllowedOrigins,
		RetryAfter:     c.RetryAfter,
	}
}
