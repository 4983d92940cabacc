package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/chat-relay/domain/chat"
	"github.com/example/chat-relay/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"
)

// Message sources reported in MessagePosted events.
const (
	SourcePoll = events.SourcePoll
	SourcePush = events.SourcePush
)

// Leave reasons reported in UserLeft events.
const (
	ReasonLeave      = events.ReasonLeave
	ReasonRejoin     = events.ReasonRejoin
	ReasonDisconnect = events.ReasonDisconnect
	ReasonEvicted    = events.ReasonEvicted
)

// DefaultStoreTimeout bounds a single store call.
const DefaultStoreTimeout = 5 * time.Second

// Stats summarizes the coordinator state.
type Stats struct {
	Rooms       int `json:"rooms"`
	Subscribers int `json:"subscribers"`
	Clients     int `json:"clients"`
}

// Coordinator ties the registry to the message store: every stored message
// is fanned out to the live subscribers of its room in store order.
type Coordinator struct {
	registry *Registry

	mu    sync.RWMutex
	store chat.MessageStore
	bus   mono.EventBus

	reads        singleflight.Group
	epoch        atomic.Uint64
	sendBuffer   int
	storeTimeout time.Duration
	logger       types.Logger
}

// NewCoordinator creates a coordinator over registry. The store may be set
// later with SetStore.
func NewCoordinator(registry *Registry, store chat.MessageStore, cfg Config, logger types.Logger) *Coordinator {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	return &Coordinator{
		registry:     registry,
		store:        store,
		sendBuffer:   cfg.SendBuffer,
		storeTimeout: cfg.StoreTimeout,
		logger:       logger,
	}
}

// SetStore replaces the message store.
func (c *Coordinator) SetStore(store chat.MessageStore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
}

// SetEventBus sets the bus relay events are published on.
func (c *Coordinator) SetEventBus(bus mono.EventBus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bus = bus
}

// Registry returns the room registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Post validates and stores msg, then fans it out to the subscribers of its
// room. Writes to one room are serialized from Append through fan-out, so
// push order matches store order. Delivery failures never fail the write.
func (c *Coordinator) Post(ctx context.Context, msg chat.NewMessage, source string) (*chat.Message, error) {
	msg = msg.Normalize()
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	st := c.messageStore()
	if st == nil {
		return nil, fmt.Errorf("%w: store not configured", chat.ErrStoreUnavailable)
	}

	rm := c.registry.lockWrite(msg.RoomID)
	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	stored, err := st.Append(storeCtx, msg)
	cancel()
	if err != nil {
		rm.writeMu.Unlock()
		c.logger.Warn("Failed to append message", "roomID", msg.RoomID, "source", source, "error", err)
		return nil, classify(err)
	}

	rm.lastWrite.Store(c.epoch.Add(1))
	rm.mu.Lock()
	rm.lastActivity = c.registry.now()
	var evicted []Departure
	if !rm.closed {
		evicted = c.registry.broadcast(rm, Encode(NewMessageEvent(stored)), nil)
	}
	rm.mu.Unlock()
	rm.writeMu.Unlock()

	c.logger.Debug("Message posted", "roomID", stored.RoomID, "seq", stored.ID, "source", source)

	c.publishDepartures(evicted, ReasonEvicted)
	c.publish(func(bus mono.EventBus) error {
		return events.MessagePostedV1.Publish(bus, events.MessagePostedEvent{
			RoomID:    stored.RoomID,
			Seq:       stored.ID,
			UserID:    stored.UserID,
			Username:  stored.Username,
			Source:    source,
			Timestamp: stored.CreatedAt,
		}, nil)
	})
	return stored, nil
}

// History returns the full ordered history of roomID. Concurrent reads of the
// same room are coalesced unless a write completed between them.
func (c *Coordinator) History(ctx context.Context, roomID string) ([]*chat.Message, error) {
	roomID = strings.TrimSpace(roomID)
	if err := chat.ValidateRoomID(roomID); err != nil {
		return nil, err
	}

	st := c.messageStore()
	if st == nil {
		return nil, fmt.Errorf("%w: store not configured", chat.ErrStoreUnavailable)
	}

	key := fmt.Sprintf("%d\x00%s", c.registry.writeEpoch(roomID), roomID)
	ch := c.reads.DoChan(key, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.storeTimeout)
		defer cancel()
		return st.ListAll(readCtx, roomID)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", chat.ErrStoreUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			c.logger.Warn("Failed to list messages", "roomID", roomID, "error", res.Err)
			return nil, classify(res.Err)
		}
		messages := res.Val.([]*chat.Message)
		if res.Shared {
			messages = cloneMessages(messages)
		}
		return messages, nil
	}
}

// Connect creates and registers a subscriber for a new push connection.
func (c *Coordinator) Connect(userID, username string) *Subscriber {
	sub := NewSubscriber(strings.TrimSpace(userID), strings.TrimSpace(username), c.sendBuffer)
	c.registry.Register(sub)
	c.logger.Debug("Subscriber connected", "subscriber", sub.ID, "username", sub.Username())
	return sub
}

// Join binds sub to roomID. A username, when given, replaces the
// subscriber's display name first.
func (c *Coordinator) Join(sub *Subscriber, roomID, username string) error {
	roomID = strings.TrimSpace(roomID)
	if err := chat.ValidateRoomID(roomID); err != nil {
		return err
	}
	username = strings.TrimSpace(username)
	if err := chat.ValidateUsername(username); err != nil {
		return err
	}
	sub.SetUsername(username)

	prev := sub.RoomID()
	result, err := c.registry.Join(roomID, sub)
	if err != nil {
		return err
	}

	if result.Left != "" {
		c.publishLeft(result.Left, sub, ReasonRejoin)
	}
	c.publishDepartures(result.Evicted, ReasonEvicted)
	if prev != roomID {
		c.publish(func(bus mono.EventBus) error {
			return events.UserJoinedV1.Publish(bus, events.UserJoinedEvent{
				RoomID:       roomID,
				SubscriberID: sub.ID,
				UserID:       sub.UserID,
				Username:     sub.Username(),
				Timestamp:    c.registry.now(),
			}, nil)
		})
	}

	c.logger.Debug("Subscriber joined", "subscriber", sub.ID, "roomID", roomID)
	return nil
}

// Leave removes sub from its room. It returns the room left, or "".
func (c *Coordinator) Leave(sub *Subscriber, reason string) string {
	result := c.registry.Leave(sub)
	if result.RoomID == "" {
		return ""
	}
	c.publishLeft(result.RoomID, sub, reason)
	c.publishDepartures(result.Evicted, ReasonEvicted)
	c.logger.Debug("Subscriber left", "subscriber", sub.ID, "roomID", result.RoomID, "reason", reason)
	return result.RoomID
}

// Disconnect tears down a subscriber after its transport is gone.
func (c *Coordinator) Disconnect(sub *Subscriber) {
	c.Leave(sub, ReasonDisconnect)
	c.registry.Unregister(sub)
	sub.Close()
	c.logger.Debug("Subscriber disconnected", "subscriber", sub.ID)
}

// DisconnectAll closes every subscriber so their transports shut down.
func (c *Coordinator) DisconnectAll() {
	c.registry.CloseAll()
}

// Rooms returns the live rooms.
func (c *Coordinator) Rooms() []RoomInfo {
	return c.registry.Rooms()
}

// Stats returns room and subscriber counts.
func (c *Coordinator) Stats() Stats {
	rooms := c.registry.Rooms()
	stats := Stats{Rooms: len(rooms), Clients: c.registry.ClientCount()}
	for _, info := range rooms {
		stats.Subscribers += info.Subscribers
	}
	return stats
}

func (c *Coordinator) messageStore() chat.MessageStore {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

func (c *Coordinator) publish(fn func(bus mono.EventBus) error) {
	c.mu.RLock()
	bus := c.bus
	c.mu.RUnlock()
	if bus == nil {
		return
	}
	if err := fn(bus); err != nil {
		c.logger.Warn("Failed to publish relay event", "error", err)
	}
}

func (c *Coordinator) publishLeft(roomID string, sub *Subscriber, reason string) {
	c.publish(func(bus mono.EventBus) error {
		return events.UserLeftV1.Publish(bus, events.UserLeftEvent{
			RoomID:       roomID,
			SubscriberID: sub.ID,
			UserID:       sub.UserID,
			Username:     sub.Username(),
			Reason:       reason,
			Timestamp:    c.registry.now(),
		}, nil)
	})
}

func (c *Coordinator) publishDepartures(departures []Departure, reason string) {
	for _, d := range departures {
		c.publishLeft(d.RoomID, d.Subscriber, reason)
	}
}

// classify keeps taxonomy errors and treats anything else as a store failure.
func classify(err error) error {
	if errors.Is(err, chat.ErrInvalidRequest) || errors.Is(err, chat.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", chat.ErrStoreUnavailable, err)
}

func cloneMessages(messages []*chat.Message) []*chat.Message {
	out := make([]*chat.Message, len(messages))
	for i, msg := range messages {
		cp := *msg
		out[i] = &cp
	}
	return out
}
