package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/chat-relay/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module owns the message store driver and exposes it as services.
type Module struct {
	cfg    Config
	driver Driver
	logger types.Logger
}

// Compile-time interface checks.
var (
	_ chat.MessageStore          = (*Module)(nil)
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a store module for the given driver configuration.
func NewModule(cfg Config, logger types.Logger) *Module {
	return &Module{
		cfg:    cfg,
		logger: logger,
	}
}

// NewModuleWithDriver creates a store module around an already opened driver.
func NewModuleWithDriver(driver Driver, logger types.Logger) *Module {
	return &Module{
		cfg:    Config{Driver: driver.Name()},
		driver: driver,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "store"
}

// RegisterServices registers request-reply services in the service container.
// The framework prefixes them, so "append" becomes "services.store.append".
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceAppend, json.Unmarshal, json.Marshal, m.handleAppend,
	); err != nil {
		return fmt.Errorf("failed to register append service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceList, json.Unmarshal, json.Marshal, m.handleList,
	); err != nil {
		return fmt.Errorf("failed to register list service: %w", err)
	}

	m.logger.Info("Registered store services", "services", []string{ServiceAppend, ServiceList})
	return nil
}

// Start opens the configured driver.
func (m *Module) Start(ctx context.Context) error {
	if m.driver != nil {
		m.logger.Info("Store module started with injected driver", "driver", m.driver.Name())
		return nil
	}

	driver, err := Open(ctx, m.cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", m.cfg.Driver, err)
	}
	m.driver = driver

	m.logger.Info("Store module started", "driver", driver.Name())
	return nil
}

// Stop closes the driver.
func (m *Module) Stop(_ context.Context) error {
	if m.driver == nil {
		return nil
	}
	if err := m.driver.Close(); err != nil {
		return fmt.Errorf("failed to close %s store: %w", m.driver.Name(), err)
	}
	m.logger.Info("Store module stopped", "driver", m.driver.Name())
	return nil
}

// Health pings the driver.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.driver == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "store not initialized",
		}
	}

	if err := m.driver.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("store ping failed: %v", err),
			Details: map[string]any{"driver": m.driver.Name()},
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"driver": m.driver.Name()},
	}
}

// Driver returns the open driver, or nil before Start.
func (m *Module) Driver() Driver {
	return m.driver
}

// Append writes through the open driver. In-process callers use it instead
// of the append service so large payloads never cross the bus.
func (m *Module) Append(ctx context.Context, msg chat.NewMessage) (*chat.Message, error) {
	if m.driver == nil {
		return nil, fmt.Errorf("%w: store not started", chat.ErrStoreUnavailable)
	}
	return m.driver.Append(ctx, msg)
}

// ListAll reads through the open driver.
func (m *Module) ListAll(ctx context.Context, roomID string) ([]*chat.Message, error) {
	if m.driver == nil {
		return nil, fmt.Errorf("%w: store not started", chat.ErrStoreUnavailable)
	}
	return m.driver.ListAll(ctx, roomID)
}
