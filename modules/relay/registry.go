package relay

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/chat-relay/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
)

// Departure records a subscriber that was removed from a room.
type Departure struct {
	RoomID     string
	Subscriber *Subscriber
}

// JoinResult describes the membership changes caused by a join.
type JoinResult struct {
	// Left is the room the subscriber was bound to before, if it was a
	// different one.
	Left string
	// Evicted lists subscribers dropped because their queue was full while
	// presence was announced.
	Evicted []Departure
}

// LeaveResult describes the membership changes caused by a leave.
type LeaveResult struct {
	RoomID  string
	Evicted []Departure
}

// RoomInfo is a point-in-time view of a live room.
type RoomInfo struct {
	ID           string    `json:"roomId"`
	Subscribers  int       `json:"subscribers"`
	LastActivity time.Time `json:"lastActivity"`
}

type room struct {
	id string

	// writeMu serializes appends and their fan-out. It is taken before mu
	// and is never held by snapshot reads or membership changes.
	writeMu sync.Mutex

	mu           sync.Mutex
	subscribers  map[string]*Subscriber
	lastActivity time.Time
	closed       bool

	// lastWrite is the coordinator epoch of the most recent completed write.
	lastWrite atomic.Uint64
}

// Registry maps room ids to their live push subscribers.
//
// The registry mutex only guards the room and client maps. Each room has its
// own mutex guarding its subscriber set; it is never held while acquiring the
// registry mutex. Store writes hold only the room's write mutex.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*room
	clients map[string]*Subscriber

	now    func() time.Time
	logger types.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger types.Logger) *Registry {
	return &Registry{
		rooms:   make(map[string]*room),
		clients: make(map[string]*Subscriber),
		now:     time.Now,
		logger:  logger,
	}
}

// Register tracks a connected subscriber that is not yet bound to a room.
func (r *Registry) Register(sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[sub.ID] = sub
}

// Unregister forgets a subscriber. It does not leave its room.
func (r *Registry) Unregister(sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, sub.ID)
}

// ClientCount returns the number of registered subscribers.
func (r *Registry) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Join binds sub to roomID, creating the room if needed. A subscriber bound
// to another room leaves it first. The other subscribers of roomID receive a
// presence event; the joiner does not.
func (r *Registry) Join(roomID string, sub *Subscriber) (JoinResult, error) {
	var result JoinResult
	if sub.Closed() {
		return result, chat.ErrTransportDisconnected
	}

	if prev := sub.RoomID(); prev != "" && prev != roomID {
		left := r.Leave(sub)
		if left.RoomID != "" {
			result.Left = left.RoomID
		}
		result.Evicted = append(result.Evicted, left.Evicted...)
	}

	rm := r.lockRoom(roomID)
	rm.subscribers[sub.ID] = sub
	rm.lastActivity = r.now()
	sub.setRoom(roomID)
	evicted := r.broadcast(rm, presenceJoined(roomID, sub.Username()), sub)
	rm.mu.Unlock()

	result.Evicted = append(result.Evicted, evicted...)
	return result, nil
}

// Leave removes sub from its current room and announces it to the remaining
// subscribers. Leaving without a room is a no-op.
func (r *Registry) Leave(sub *Subscriber) LeaveResult {
	roomID := sub.RoomID()
	if roomID == "" {
		return LeaveResult{}
	}

	rm := r.lookup(roomID)
	if rm == nil {
		sub.clearRoom(roomID)
		return LeaveResult{}
	}

	rm.mu.Lock()
	if _, ok := rm.subscribers[sub.ID]; !ok {
		rm.mu.Unlock()
		sub.clearRoom(roomID)
		return LeaveResult{}
	}
	delete(rm.subscribers, sub.ID)
	rm.lastActivity = r.now()
	evicted := r.broadcast(rm, presenceLeft(roomID, sub.Username()), nil)
	rm.mu.Unlock()

	sub.clearRoom(roomID)
	return LeaveResult{RoomID: roomID, Evicted: evicted}
}

// SubscribersOf returns a snapshot of the subscribers of roomID.
func (r *Registry) SubscribersOf(roomID string) []*Subscriber {
	rm := r.lookup(roomID)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	subs := make([]*Subscriber, 0, len(rm.subscribers))
	for _, sub := range rm.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

// Rooms returns the live rooms ordered by id.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.Lock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.Unlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, rm := range rooms {
		rm.mu.Lock()
		if !rm.closed {
			infos = append(infos, RoomInfo{
				ID:           rm.id,
				Subscribers:  len(rm.subscribers),
				LastActivity: rm.lastActivity,
			})
		}
		rm.mu.Unlock()
	}

	slices.SortFunc(infos, func(a, b RoomInfo) int {
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

// Sweep removes rooms that have no subscribers and no activity within
// idleTTL. Rooms busy at the time of the sweep, including rooms with a write
// in flight, are skipped. It returns the removed room ids.
func (r *Registry) Sweep(idleTTL time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var removed []string
	for id, rm := range r.rooms {
		if !rm.writeMu.TryLock() {
			continue
		}
		if !rm.mu.TryLock() {
			rm.writeMu.Unlock()
			continue
		}
		if len(rm.subscribers) == 0 && now.Sub(rm.lastActivity) >= idleTTL {
			rm.closed = true
			delete(r.rooms, id)
			removed = append(removed, id)
		}
		rm.mu.Unlock()
		rm.writeMu.Unlock()
	}
	return removed
}

// CloseAll closes every registered subscriber and drops all rooms.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := make([]*Subscriber, 0, len(r.clients))
	for _, sub := range r.clients {
		clients = append(clients, sub)
	}
	r.clients = make(map[string]*Subscriber)
	rooms := r.rooms
	r.rooms = make(map[string]*room)
	r.mu.Unlock()

	for _, rm := range rooms {
		rm.mu.Lock()
		rm.closed = true
		for _, sub := range rm.subscribers {
			sub.Close()
		}
		rm.mu.Unlock()
	}
	for _, sub := range clients {
		sub.Close()
	}
}

// writeEpoch returns the epoch of the last completed write to roomID.
func (r *Registry) writeEpoch(roomID string) uint64 {
	rm := r.lookup(roomID)
	if rm == nil {
		return 0
	}
	return rm.lastWrite.Load()
}

// lockRoom returns the live room for roomID with its mutex held, creating the
// room if absent. A room closed by a concurrent sweep is replaced.
func (r *Registry) lockRoom(roomID string) *room {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[roomID]
		if !ok {
			rm = &room{
				id:           roomID,
				subscribers:  make(map[string]*Subscriber),
				lastActivity: r.now(),
			}
			r.rooms[roomID] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if !rm.closed {
			return rm
		}
		rm.mu.Unlock()
	}
}

// lockWrite returns the live room for roomID with its write mutex held.
// The subscriber mutex is not held, so joins, leaves and snapshots proceed
// while the caller waits on the store.
func (r *Registry) lockWrite(roomID string) *room {
	for {
		rm := r.lockRoom(roomID)
		rm.mu.Unlock()

		rm.writeMu.Lock()
		rm.mu.Lock()
		closed := rm.closed
		rm.mu.Unlock()
		if !closed {
			return rm
		}
		rm.writeMu.Unlock()
	}
}

func (r *Registry) lookup(roomID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[roomID]
}

// broadcast enqueues data to every subscriber of rm except skip. Subscribers
// whose queue is full are removed and announced as left to the rest. The
// caller holds rm.mu.
func (r *Registry) broadcast(rm *room, data []byte, skip *Subscriber) []Departure {
	var evicted []Departure
	pending := []*Subscriber{}

	deliver := func(data []byte, skip *Subscriber) {
		for id, sub := range rm.subscribers {
			if sub == skip {
				continue
			}
			if !sub.Enqueue(data) {
				delete(rm.subscribers, id)
				sub.clearRoom(rm.id)
				pending = append(pending, sub)
			}
		}
	}

	deliver(data, skip)
	for len(pending) > 0 {
		sub := pending[0]
		pending = pending[1:]
		evicted = append(evicted, Departure{RoomID: rm.id, Subscriber: sub})
		r.logger.Warn("Evicted slow subscriber",
			"roomID", rm.id,
			"subscriber", sub.ID,
			"username", sub.Username())
		deliver(presenceLeft(rm.id, sub.Username()), nil)
	}
	return evicted
}
