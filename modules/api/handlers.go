package api

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/example/chat-relay/domain/chat"
	"github.com/example/chat-relay/modules/relay"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

// setupRoutes configures all HTTP routes.
func (m *Module) setupRoutes(app *fiber.App) {
	app.Get("/health", m.healthHandler)

	// Poll gateway
	app.Get("/rooms/:roomId/messages", m.listMessages)
	app.Post("/rooms/:roomId/messages", m.rateLimit(), m.postMessage)

	if m.coordinator == nil {
		return
	}

	// WebSocket endpoint
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(m.handleWebSocket))

	app.Get("/rooms", m.listRooms)
}

// rateLimit applies the gateway limiter once the rate limit module has
// started. Without one, requests pass through.
func (m *Module) rateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.rateLimiter == nil {
			return c.Next()
		}
		mw := m.rateLimiter.Middleware()
		if mw == nil {
			return c.Next()
		}
		return mw.ByIP()(c)
	}
}

// healthHandler handles GET /health.
func (m *Module) healthHandler(c *fiber.Ctx) error {
	details := map[string]any{"module": "api"}
	if m.coordinator != nil {
		stats := m.coordinator.Stats()
		details["rooms"] = stats.Rooms
		details["subscribers"] = stats.Subscribers
		details["connected_clients"] = stats.Clients
	}
	return c.JSON(HealthResponse{
		Status:  "healthy",
		Details: details,
	})
}

// listRooms handles GET /rooms.
func (m *Module) listRooms(c *fiber.Ctx) error {
	rooms := lo.Map(m.coordinator.Rooms(), toRoomResponse)
	return c.JSON(RoomListResponse{
		Rooms: rooms,
		Total: len(rooms),
	})
}

// listMessages handles GET /rooms/:roomId/messages. It always returns the
// full history of the room in store order.
func (m *Module) listMessages(c *fiber.Ctx) error {
	roomID, err := roomParam(c)
	if err != nil {
		return m.writeError(c, err)
	}

	messages, err := m.messages.History(c.UserContext(), roomID)
	if err != nil {
		return m.writeError(c, err)
	}
	return c.JSON(lo.Map(messages, toMessageResponse))
}

// postMessage handles POST /rooms/:roomId/messages.
func (m *Module) postMessage(c *fiber.Ctx) error {
	roomID, err := roomParam(c)
	if err != nil {
		return m.writeError(c, err)
	}

	var req PostMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   chat.CodeInvalidRequest,
			Message: "Invalid request body",
		})
	}

	msg, err := m.messages.Post(c.UserContext(), chat.NewMessage{
		RoomID:   roomID,
		UserID:   req.UserID,
		Username: req.Username,
		Body:     req.Message,
	}, relay.SourcePoll)
	if err != nil {
		return m.writeError(c, err)
	}
	return c.JSON(toMessageResponse(msg, 0))
}

// roomParam returns the unescaped, trimmed room id of the route.
func roomParam(c *fiber.Ctx) (string, error) {
	roomID, err := url.PathUnescape(c.Params("roomId"))
	if err != nil {
		return "", fmt.Errorf("%w: malformed room id", chat.ErrInvalidRequest)
	}
	roomID = strings.TrimSpace(roomID)
	if err := chat.ValidateRoomID(roomID); err != nil {
		return "", err
	}
	return roomID, nil
}
