package relay

import (
	"time"

	"github.com/example/chat-relay/domain/chat"
)

// Service names registered by the relay module.
const (
	ServicePost    = "post"
	ServiceHistory = "history"
)

// Config holds the relay tunables.
type Config struct {
	// SendBuffer is the outbound queue size of each subscriber.
	SendBuffer int
	// RoomIdleTTL is how long an empty room is kept after its last activity.
	RoomIdleTTL time.Duration
	// SweepInterval is how often idle rooms are collected.
	SweepInterval time.Duration
	// StoreTimeout bounds each store call.
	StoreTimeout time.Duration
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		SendBuffer:    DefaultSendBuffer,
		RoomIdleTTL:   10 * time.Minute,
		SweepInterval: time.Minute,
		StoreTimeout:  DefaultStoreTimeout,
	}
}

// PostRequest is the request for the post service.
type PostRequest struct {
	Message chat.NewMessage `json:"message"`
	Source  string          `json:"source,omitempty"`
}

// PostResponse is the response for the post service.
type PostResponse struct {
	Message   *chat.Message `json:"message,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// HistoryRequest is the request for the history service.
type HistoryRequest struct {
	RoomID string `json:"room_id"`
}

// HistoryResponse is the response for the history service.
type HistoryResponse struct {
	Messages  []*chat.Message `json:"messages"`
	ErrorCode string          `json:"error_code,omitempty"`
	Error     string          `json:"error,omitempty"`
}
