package store

import (
	"context"
	"sync"
	"time"

	"github.com/example/chat-relay/domain/chat"
)

// MemoryStore keeps history in process memory. History is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]chat.Message
	now   func() time.Time
}

var _ Driver = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string][]chat.Message),
		now:   nowUTC,
	}
}

// Name returns the driver name.
func (s *MemoryStore) Name() string {
	return DriverMemory
}

// Append stores a message with the next sequence of its room.
func (s *MemoryStore) Append(ctx context.Context, in chat.NewMessage) (*chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("append", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.rooms[in.RoomID]
	msg := chat.Message{
		ID:        int64(len(history)) + 1,
		RoomID:    in.RoomID,
		UserID:    in.UserID,
		Username:  in.Username,
		Body:      in.Body,
		CreatedAt: s.now(),
	}
	s.rooms[in.RoomID] = append(history, msg)

	return &msg, nil
}

// ListAll returns a copy of the room history in sequence order.
func (s *MemoryStore) ListAll(ctx context.Context, roomID string) ([]*chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.rooms[roomID]
	result := make([]*chat.Message, len(history))
	for i := range history {
		msg := history[i]
		result[i] = &msg
	}
	return result, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close releases nothing.
func (s *MemoryStore) Close() error {
	return nil
}
