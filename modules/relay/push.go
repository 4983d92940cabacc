package relay

import (
	"encoding/json"
	"time"

	"github.com/example/chat-relay/domain/chat"
)

// Push event types sent to subscribers.
const (
	EventConnected = "connected"
	EventJoined    = "joined"
	EventLeft      = "left"
	EventPresence  = "presence"
	EventMessage   = "message"
	EventHistory   = "history"
	EventError     = "error"
)

// MessageEvent carries a stored message to push subscribers.
type MessageEvent struct {
	Type      string    `json:"type"`
	ID        int64     `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// PresenceEvent announces a join or leave to the other subscribers of a room.
type PresenceEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// HistoryEvent answers a history request over the push channel.
type HistoryEvent struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"roomId"`
	Messages []*chat.Message `json:"messages"`
}

// ControlEvent acknowledges connection and membership changes, or reports an error.
type ControlEvent struct {
	Type         string `json:"type"`
	RoomID       string `json:"roomId,omitempty"`
	SubscriberID string `json:"subscriberId,omitempty"`
	Code         string `json:"code,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewMessageEvent builds the push form of a stored message.
func NewMessageEvent(msg *chat.Message) MessageEvent {
	return MessageEvent{
		Type:      EventMessage,
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		Message:   msg.Body,
		CreatedAt: msg.CreatedAt,
	}
}

func presenceJoined(roomID, username string) []byte {
	return Encode(PresenceEvent{Type: EventPresence, RoomID: roomID, Text: username + " joined"})
}

func presenceLeft(roomID, username string) []byte {
	return Encode(PresenceEvent{Type: EventPresence, RoomID: roomID, Text: username + " left"})
}

// Encode marshals a push event into a text frame payload.
func Encode(event any) []byte {
	data, err := json.Marshal(event)
	if err != nil {
		data, _ = json.Marshal(ControlEvent{Type: EventError, Code: chat.CodeInternal, Error: "failed to encode event"})
	}
	return data
}
