package store

import "github.com/example/chat-relay/domain/chat"

// Service names registered by the store module.
const (
	ServiceAppend = "append"
	ServiceList   = "list"
)

// AppendRequest is the request for the append service.
type AppendRequest struct {
	Message chat.NewMessage `json:"message"`
}

// AppendResponse is the response for the append service.
type AppendResponse struct {
	Message   *chat.Message `json:"message,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// ListRequest is the request for the list service.
type ListRequest struct {
	RoomID string `json:"room_id"`
}

// ListResponse is the response for the list service.
type ListResponse struct {
	Messages  []*chat.Message `json:"messages"`
	ErrorCode string          `json:"error_code,omitempty"`
	Error     string          `json:"error,omitempty"`
}
