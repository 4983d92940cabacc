package relay

import (
	"sync"

	"github.com/example/chat-relay/domain/chat"
	"github.com/google/uuid"
)

// DefaultSendBuffer is the outbound queue size of a subscriber.
const DefaultSendBuffer = 64

// Subscriber is the relay side of one push connection. The transport drains
// Outbound and stops when Done is closed.
//
// A subscriber is bound to at most one room. Its outbound queue is bounded:
// when it is full the subscriber is closed instead of blocking the sender.
type Subscriber struct {
	ID     string
	UserID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.RWMutex
	username string
	roomID   string
}

// NewSubscriber creates a subscriber with an outbound queue of buffer frames.
func NewSubscriber(userID, username string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	if username == "" {
		username = chat.DefaultUsername
	}
	return &Subscriber{
		ID:       uuid.New().String(),
		UserID:   userID,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
		username: username,
	}
}

// Enqueue queues a frame without blocking. It returns false when the
// subscriber is closed or its queue is full; in the latter case the
// subscriber is closed.
func (s *Subscriber) Enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- data:
		return true
	default:
		s.Close()
		return false
	}
}

// Outbound returns the queue drained by the transport writer.
func (s *Subscriber) Outbound() <-chan []byte {
	return s.send
}

// Done is closed when the subscriber is closed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Close marks the subscriber as disconnected. Safe to call more than once.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Closed reports whether Close has been called.
func (s *Subscriber) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Username returns the display name used in presence and push sends.
func (s *Subscriber) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// SetUsername replaces the display name. Empty names are ignored.
func (s *Subscriber) SetUsername(username string) {
	if username == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
}

// RoomID returns the room the subscriber is bound to, or "".
func (s *Subscriber) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

func (s *Subscriber) setRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = roomID
}

// clearRoom unbinds the subscriber only if it is still bound to roomID.
func (s *Subscriber) clearRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomID == roomID {
		s.roomID = ""
	}
}
