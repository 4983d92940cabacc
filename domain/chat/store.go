package chat

import "context"

// MessageStore is the append-only history of every room.
//
// Append assigns the next sequence of the room and the creation time.
// Sequences start at 1 and have no gaps, even under concurrent writers.
// ListAll returns the whole history of a room ordered by sequence; an
// unknown room yields an empty slice.
type MessageStore interface {
	Append(ctx context.Context, msg NewMessage) (*Message, error)
	ListAll(ctx context.Context, roomID string) ([]*Message, error)
}
