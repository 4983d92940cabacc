package api

import (
	"time"

	"github.com/example/chat-relay/domain/chat"
	"github.com/example/chat-relay/modules/relay"
)

// PostMessageRequest is the body of POST /rooms/:roomId/messages. Unknown
// fields are ignored.
type PostMessageRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// MessageResponse is the API form of a stored message.
type MessageResponse struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoomResponse is the API response for a live room.
type RoomResponse struct {
	ID           string    `json:"roomId"`
	Subscribers  int       `json:"subscribers"`
	LastActivity time.Time `json:"lastActivity"`
}

// RoomListResponse is the API response for listing rooms.
type RoomListResponse struct {
	Rooms []RoomResponse `json:"rooms"`
	Total int            `json:"total"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// ClientFrame is a push frame sent by a client.
type ClientFrame struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Client frame types.
const (
	FrameJoin    = "join"
	FrameLeave   = "leave"
	FrameMessage = "message"
	FrameHistory = "history"
)

func toMessageResponse(msg *chat.Message, _ int) MessageResponse {
	return MessageResponse{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		Message:   msg.Body,
		CreatedAt: msg.CreatedAt,
	}
}

func toRoomResponse(info relay.RoomInfo, _ int) RoomResponse {
	return RoomResponse{
		ID:           info.ID,
		Subscribers:  info.Subscribers,
		LastActivity: info.LastActivity,
	}
}
