package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/chat-relay/domain/chat"
	"github.com/example/chat-relay/modules/ratelimit"
	"github.com/example/chat-relay/modules/relay"
	"github.com/gofiber/contrib/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 16 * 1024
)

// Push error codes in addition to the chat error codes.
const (
	codeRateLimit = "rate_limited"
	codeNotInRoom = "not_in_room"
	codeBadFrame  = "invalid_frame"
)

// handleWebSocket handles WebSocket connections at /ws.
func (m *Module) handleWebSocket(c *websocket.Conn) {
	sub := m.coordinator.Connect(c.Query("userId"), c.Query("username", chat.DefaultUsername))

	var limiter *ratelimit.TokenBucket
	if m.rateLimiter != nil {
		limiter = m.rateLimiter.NewConnLimiter()
	}

	writerDone := make(chan struct{})
	go m.writePump(c, sub, writerDone)
	defer func() {
		m.coordinator.Disconnect(sub)
		<-writerDone
		m.logger.Info("WebSocket client disconnected", "subscriber", sub.ID, "username", sub.Username())
	}()

	m.logger.Info("WebSocket client connected", "subscriber", sub.ID, "username", sub.Username())
	sub.Enqueue(relay.Encode(relay.ControlEvent{Type: relay.EventConnected, SubscriberID: sub.ID}))

	c.SetReadLimit(maxFrameSize)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				m.logger.Warn("WebSocket read error", "subscriber", sub.ID, "error", err)
			}
			return
		}
		_ = c.SetReadDeadline(time.Now().Add(pongWait))

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			sendError(sub, codeBadFrame, "Invalid message format")
			continue
		}
		m.handleFrame(sub, limiter, frame)
	}
}

// writePump is the only writer of the socket. It drains the subscriber's
// queue, keeps the connection alive with pings and closes the socket once
// the subscriber is closed.
func (m *Module) writePump(c *websocket.Conn, sub *relay.Subscriber, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
		close(done)
	}()

	for {
		select {
		case data := <-sub.Outbound():
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				m.logger.Debug("WebSocket write failed", "subscriber", sub.ID, "error", err)
				sub.Close()
				return
			}
		case <-ticker.C:
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				sub.Close()
				return
			}
		case <-sub.Done():
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (m *Module) handleFrame(sub *relay.Subscriber, limiter *ratelimit.TokenBucket, frame ClientFrame) {
	switch frame.Type {
	case FrameJoin:
		m.handleJoin(sub, frame)
	case FrameLeave:
		m.handleLeave(sub)
	case FrameMessage:
		if limiter != nil && !limiter.Allow() {
			sendError(sub, codeRateLimit, "Rate limit exceeded, please slow down")
			return
		}
		m.handleMessage(sub, frame)
	case FrameHistory:
		m.handleHistory(sub, frame)
	default:
		sendError(sub, codeBadFrame, "Unknown message type: "+frame.Type)
	}
}

func (m *Module) handleJoin(sub *relay.Subscriber, frame ClientFrame) {
	if err := m.coordinator.Join(sub, frame.RoomID, frame.Username); err != nil {
		sendError(sub, chat.ErrorCode(err), err.Error())
		return
	}
	sub.Enqueue(relay.Encode(relay.ControlEvent{
		Type:         relay.EventJoined,
		RoomID:       sub.RoomID(),
		SubscriberID: sub.ID,
	}))
}

func (m *Module) handleLeave(sub *relay.Subscriber) {
	roomID := m.coordinator.Leave(sub, relay.ReasonLeave)
	if roomID == "" {
		sendError(sub, codeNotInRoom, "Not in a room")
		return
	}
	sub.Enqueue(relay.Encode(relay.ControlEvent{
		Type:         relay.EventLeft,
		RoomID:       roomID,
		SubscriberID: sub.ID,
	}))
}

// handleMessage stores a push-originated message. The sender sees it
// through the regular fan-out of its room.
func (m *Module) handleMessage(sub *relay.Subscriber, frame ClientFrame) {
	roomID := frame.RoomID
	if roomID == "" {
		roomID = sub.RoomID()
	}
	if roomID == "" {
		sendError(sub, codeNotInRoom, "Join a room first")
		return
	}
	username := frame.Username
	if username == "" {
		username = sub.Username()
	}

	_, err := m.coordinator.Post(context.Background(), chat.NewMessage{
		RoomID:   roomID,
		UserID:   sub.UserID,
		Username: username,
		Body:     frame.Message,
	}, relay.SourcePush)
	if err != nil {
		sendError(sub, chat.ErrorCode(err), err.Error())
	}
}

func (m *Module) handleHistory(sub *relay.Subscriber, frame ClientFrame) {
	roomID := frame.RoomID
	if roomID == "" {
		roomID = sub.RoomID()
	}
	if roomID == "" {
		sendError(sub, codeNotInRoom, "Room ID is required")
		return
	}

	messages, err := m.coordinator.History(context.Background(), roomID)
	if err != nil {
		sendError(sub, chat.ErrorCode(err), err.Error())
		return
	}
	sub.Enqueue(relay.Encode(relay.HistoryEvent{
		Type:     relay.EventHistory,
		RoomID:   roomID,
		Messages: messages,
	}))
}

func sendError(sub *relay.Subscriber, code, message string) {
	sub.Enqueue(relay.Encode(relay.ControlEvent{
		Type:  relay.EventError,
		Code:  code,
		Error: message,
	}))
}
