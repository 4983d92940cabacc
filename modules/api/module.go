package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/example/chat-relay/domain/chat"
	"github.com/example/chat-relay/modules/ratelimit"
	"github.com/example/chat-relay/modules/relay"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// MessageService is the poll gateway's view of the relay.
type MessageService interface {
	Post(ctx context.Context, msg chat.NewMessage, source string) (*chat.Message, error)
	History(ctx context.Context, roomID string) ([]*chat.Message, error)
}

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string
	// AllowedOrigins is the comma separated CORS origin list.
	AllowedOrigins string
	// RetryAfter is advertised on 503 responses.
	RetryAfter time.Duration
}

// Module serves the poll gateway and the push transport over Fiber.
type Module struct {
	cfg         Config
	app         *fiber.App
	messages    MessageService
	coordinator *relay.Coordinator
	rateLimiter *ratelimit.Module
	logger      types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the API module.
func NewModule(cfg Config, logger types.Logger) *Module {
	if cfg.Addr == "" {
		cfg.Addr = ":3000"
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 2 * time.Second
	}
	return &Module{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"relay"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
// Without an in-process coordinator the poll gateway falls back to the relay
// services and the push transport is not served.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "relay" && m.messages == nil {
		m.messages = relay.NewAdapter(container)
	}
}

// SetCoordinator sets the relay coordinator (called from main.go). It serves
// both the push transport and the poll gateway.
func (m *Module) SetCoordinator(coordinator *relay.Coordinator) {
	m.coordinator = coordinator
	m.messages = coordinator
}

// SetMessageService overrides the poll gateway backend.
func (m *Module) SetMessageService(messages MessageService) {
	m.messages = messages
}

// SetRateLimiter sets the rate limit module (called from main.go).
func (m *Module) SetRateLimiter(limiter *ratelimit.Module) {
	m.rateLimiter = limiter
}

// Start builds the Fiber app and starts listening.
func (m *Module) Start(_ context.Context) error {
	if m.coordinator == nil && m.messages == nil {
		return fmt.Errorf("relay coordinator not set")
	}

	m.app = m.buildApp()

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.cfg.Addr); err != nil {
			errCh <- err
		}
	}()

	// Wait briefly to catch immediate startup errors
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "addr", m.cfg.Addr)
	return nil
}

// Stop disconnects push clients and shuts the server down.
func (m *Module) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	if m.coordinator != nil {
		m.coordinator.DisconnectAll()
	}
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{"addr": m.cfg.Addr}
	if m.coordinator != nil {
		details["connected_clients"] = m.coordinator.Stats().Clients
	}
	if m.app == nil {
		return mono.HealthStatus{Healthy: false, Message: "server not started", Details: details}
	}
	return mono.HealthStatus{Healthy: true, Message: "operational", Details: details}
}

// buildApp creates the Fiber app with middleware and routes.
func (m *Module) buildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		Next: func(c *fiber.Ctx) bool {
			return c.Get("Upgrade") == "websocket"
		},
	}))

	allowedOrigins := m.cfg.AllowedOrigins
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:8080"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.setupRoutes(app)
	return app
}

// errorHandler handles errors that escape route handlers.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ErrorResponse{
			Error:   "http_error",
			Message: fe.Message,
		})
	}
	return m.writeError(c, err)
}

// writeError maps the relay error taxonomy to HTTP responses.
func (m *Module) writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, chat.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   chat.CodeInvalidRequest,
			Message: err.Error(),
		})
	case errors.Is(err, chat.ErrStoreUnavailable):
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(m.cfg.RetryAfter.Seconds())))
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   chat.CodeStoreUnavailable,
			Message: "message store is temporarily unavailable, retry later",
		})
	default:
		m.logger.Error("Unhandled request error", "method", c.Method(), "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   chat.CodeInternal,
			Message: "Internal Server Error",
		})
	}
}
