package chat

import "time"

// Message is a stored chat message. ID is the per-room store sequence.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Body      string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage is the write command accepted by the relay and the store.
type NewMessage struct {
	RoomID   string `json:"roomId" validate:"required,max=256"`
	UserID   string `json:"userId" validate:"max=128"`
	Username string `json:"username" validate:"max=50"`
	Body     string `json:"message" validate:"required,max=5000"`
}
