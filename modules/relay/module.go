package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/chat-relay/domain/chat"
	"github.com/example/chat-relay/events"
	"github.com/example/chat-relay/modules/store"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module hosts the room registry and the relay coordinator.
type Module struct {
	cfg         Config
	registry    *Registry
	coordinator *Coordinator
	logger      types.Logger

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the relay module. The message store is either injected
// with SetStore or resolved from the store module's services before Start.
func NewModule(cfg Config, logger types.Logger) *Module {
	defaults := DefaultConfig()
	if cfg.RoomIdleTTL <= 0 {
		cfg.RoomIdleTTL = defaults.RoomIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}

	registry := NewRegistry(logger)
	return &Module{
		cfg:         cfg,
		registry:    registry,
		coordinator: NewCoordinator(registry, nil, cfg, logger),
		logger:      logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "relay"
}

// Dependencies returns the modules the relay depends on.
func (m *Module) Dependencies() []string {
	return []string{"store"}
}

// SetDependencyServiceContainer receives the store module's services. They
// back the coordinator only when no store was injected with SetStore.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "store" && m.coordinator.messageStore() == nil {
		m.coordinator.SetStore(store.NewAdapter(container))
	}
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.coordinator.SetEventBus(bus)
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessagePostedV1.ToBase(),
		events.UserJoinedV1.ToBase(),
		events.UserLeftV1.ToBase(),
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServicePost, json.Unmarshal, json.Marshal, m.handlePost,
	); err != nil {
		return fmt.Errorf("failed to register post service: %w", err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceHistory, json.Unmarshal, json.Marshal, m.handleHistory,
	); err != nil {
		return fmt.Errorf("failed to register history service: %w", err)
	}

	m.logger.Info("Registered relay services", "services", []string{ServicePost, ServiceHistory})
	return nil
}

// Start starts the idle room janitor.
func (m *Module) Start(_ context.Context) error {
	if m.coordinator.messageStore() == nil {
		return fmt.Errorf("store dependency not set")
	}

	m.stopChan = make(chan struct{})
	m.doneChan = make(chan struct{})
	m.stopOnce = sync.Once{}
	go m.runJanitor()

	m.logger.Info("Relay module started",
		"roomIdleTTL", m.cfg.RoomIdleTTL,
		"sweepInterval", m.cfg.SweepInterval)
	return nil
}

// runJanitor removes idle empty rooms until Stop is called.
func (m *Module) runJanitor() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	defer close(m.doneChan)

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			if removed := m.registry.Sweep(m.cfg.RoomIdleTTL); len(removed) > 0 {
				m.logger.Debug("Removed idle rooms", "count", len(removed), "rooms", removed)
			}
		}
	}
}

// Stop stops the janitor and disconnects every subscriber.
func (m *Module) Stop(ctx context.Context) error {
	if m.stopChan != nil {
		m.stopOnce.Do(func() {
			close(m.stopChan)
		})

		select {
		case <-m.doneChan:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.registry.CloseAll()
	m.logger.Info("Relay module stopped")
	return nil
}

// Health reports live rooms and subscribers.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	stats := m.coordinator.Stats()
	if m.coordinator.messageStore() == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "store dependency not set",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"rooms":       stats.Rooms,
			"subscribers": stats.Subscribers,
			"clients":     stats.Clients,
		},
	}
}

// Coordinator returns the relay coordinator.
func (m *Module) Coordinator() *Coordinator {
	return m.coordinator
}

// SetStore injects the message store directly (called from main.go with the
// store module), bypassing the request-reply services.
func (m *Module) SetStore(st chat.MessageStore) {
	m.coordinator.SetStore(st)
}
