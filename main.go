package main

import (
	"context"
	"log"
	"os"

	"github.com/example/chat-relay/modules/activity"
	"github.com/example/chat-relay/modules/api"
	"github.com/example/chat-relay/modules/ratelimit"
	"github.com/example/chat-relay/modules/relay"
	"github.com/example/chat-relay/modules/store"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/joho/godotenv"
)

func main() {
	log.Println("=== Chat Relay - Fiber WebSocket + Poll Gateway ===")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logLevel := mono.WithLogLevel(mono.LogLevelInfo)
	if cfg.LogLevel == "error" {
		logLevel = mono.WithLogLevel(mono.LogLevelError)
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		logLevel,
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	mods := newModules(cfg, app.Logger())

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - store: message store driver (ServiceProviderModule)
	// - ratelimit: gateway and push limiters
	// - activity: per-room counters (EventConsumerModule)
	// - relay: registry + coordinator (depends on store, emits relay events)
	// - api: Fiber HTTP/WebSocket server (depends on relay)
	for _, mod := range mods.all() {
		app.Register(mod)
	}

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

// modules holds the wired application modules.
type modules struct {
	store     *store.Module
	ratelimit *ratelimit.Module
	activity  *activity.Module
	relay     *relay.Module
	api       *api.Module
}

// newModules creates the modules and injects the in-process dependencies the
// service container does not carry. Room history can exceed the bus payload
// limit, so the relay reads the store and the gateway reads the relay
// directly; the request-reply services remain for other modules.
func newModules(cfg Config, logger types.Logger) *modules {
	mods := &modules{
		store:     store.NewModule(cfg.storeConfig(), logger),
		ratelimit: ratelimit.NewModule(cfg.rateLimitConfig(), logger),
		activity:  activity.NewModule(logger),
		relay:     relay.NewModule(cfg.relayConfig(), logger),
		api:       api.NewModule(cfg.apiConfig(), logger),
	}

	mods.relay.SetStore(mods.store)
	mods.api.SetCoordinator(mods.relay.Coordinator())
	mods.api.SetRateLimiter(mods.ratelimit)
	return mods
}

func (m *modules) all() []mono.Module {
	return []mono.Module{m.store, m.ratelimit, m.activity, m.relay, m.api}
}

func printStartupInfo(cfg Config) {
	limiter := "in-process token bucket"
	if cfg.RedisAddr != "" {
		limiter = "redis sliding window (" + cfg.RedisAddr + ")"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Printf("  - Store driver: %s", cfg.StoreDriver)
	log.Printf("  - Rate limiter: %s", limiter)
	log.Printf("  - Idle rooms removed after %s", cfg.RoomIdleTTL)
	log.Println("")
	log.Printf("Poll Gateway (http://localhost%s):", cfg.addr())
	log.Println("  GET    /health                   - Health check")
	log.Println("  GET    /rooms                    - List live rooms")
	log.Println("  GET    /rooms/:roomId/messages   - Full room history")
	log.Println("  POST   /rooms/:roomId/messages   - Post a message")
	log.Println("")
	log.Printf("Push Transport (ws://localhost%s/ws?username=yourname):", cfg.addr())
	log.Println("  Frame types: join, leave, message, history")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
