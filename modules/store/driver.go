package store

import (
	"context"
	"fmt"
	"time"

	"github.com/example/chat-relay/domain/chat"
)

// Supported driver names.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Driver is a MessageStore backend owned by the store module.
type Driver interface {
	chat.MessageStore
	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
	BadgerPath  string
}

// Open creates the driver named in cfg.
func Open(ctx context.Context, cfg Config) (Driver, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQLite(cfg.SQLitePath)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.DatabaseURL)
	case DriverBadger:
		return OpenBadger(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// unavailable wraps a driver failure as a retryable store error.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", chat.ErrStoreUnavailable, op, err)
}

func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
