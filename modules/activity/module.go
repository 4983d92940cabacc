// Package activity keeps per-room activity counters fed by relay events.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/example/chat-relay/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/samber/lo"
)

// ServiceRoomStats is the request-reply service returning room counters.
const ServiceRoomStats = "room-stats"

// RoomStats are the counters of one room.
type RoomStats struct {
	RoomID       string         `json:"room_id"`
	Messages     int64          `json:"messages"`
	LastSeq      int64          `json:"last_seq"`
	Joins        int64          `json:"joins"`
	Leaves       int64          `json:"leaves"`
	Evictions    int64          `json:"evictions"`
	BySource     map[string]int `json:"by_source"`
	LastActivity time.Time      `json:"last_activity"`
}

// RoomStatsRequest selects one room, or every room when RoomID is empty.
type RoomStatsRequest struct {
	RoomID string `json:"room_id,omitempty"`
}

// RoomStatsResponse is the response for the room-stats service.
type RoomStatsResponse struct {
	Rooms []RoomStats `json:"rooms"`
}

// Module consumes relay events.
type Module struct {
	mu     sync.RWMutex
	rooms  map[string]*RoomStats
	logger types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the activity module.
func NewModule(logger types.Logger) *Module {
	return &Module{
		rooms:  make(map[string]*RoomStats),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "activity"
}

// RegisterEventConsumers subscribes to the relay events.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.MessagePostedV1, m.handleMessagePosted, m); err != nil {
		return fmt.Errorf("failed to register MessagePosted consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.UserJoinedV1, m.handleUserJoined, m); err != nil {
		return fmt.Errorf("failed to register UserJoined consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.UserLeftV1, m.handleUserLeft, m); err != nil {
		return fmt.Errorf("failed to register UserLeft consumer: %w", err)
	}

	m.logger.Info("Registered event consumers", "events", []string{"MessagePosted", "UserJoined", "UserLeft"})
	return nil
}

// RegisterServices registers the room-stats service.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRoomStats, json.Unmarshal, json.Marshal, m.handleRoomStats,
	); err != nil {
		return fmt.Errorf("failed to register room-stats service: %w", err)
	}
	return nil
}

func (m *Module) handleMessagePosted(_ context.Context, event events.MessagePostedEvent, _ *mono.Msg) error {
	m.update(event.RoomID, event.Timestamp, func(s *RoomStats) {
		s.Messages++
		if event.Seq > s.LastSeq {
			s.LastSeq = event.Seq
		}
		s.BySource[event.Source]++
	})
	return nil
}

func (m *Module) handleUserJoined(_ context.Context, event events.UserJoinedEvent, _ *mono.Msg) error {
	m.update(event.RoomID, event.Timestamp, func(s *RoomStats) {
		s.Joins++
	})
	return nil
}

func (m *Module) handleUserLeft(_ context.Context, event events.UserLeftEvent, _ *mono.Msg) error {
	m.update(event.RoomID, event.Timestamp, func(s *RoomStats) {
		s.Leaves++
		if event.Reason == events.ReasonEvicted {
			s.Evictions++
		}
	})
	if event.Reason == events.ReasonEvicted {
		m.logger.Warn("Subscriber evicted", "roomID", event.RoomID, "subscriber", event.SubscriberID)
	}
	return nil
}

func (m *Module) handleRoomStats(_ context.Context, req RoomStatsRequest, _ *mono.Msg) (RoomStatsResponse, error) {
	if req.RoomID == "" {
		return RoomStatsResponse{Rooms: m.Snapshot()}, nil
	}
	stats, ok := m.Room(req.RoomID)
	if !ok {
		return RoomStatsResponse{Rooms: []RoomStats{}}, nil
	}
	return RoomStatsResponse{Rooms: []RoomStats{stats}}, nil
}

func (m *Module) update(roomID string, at time.Time, fn func(*RoomStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.rooms[roomID]
	if !ok {
		stats = &RoomStats{RoomID: roomID, BySource: make(map[string]int)}
		m.rooms[roomID] = stats
	}
	fn(stats)
	if at.After(stats.LastActivity) {
		stats.LastActivity = at
	}
}

// Room returns a copy of the counters of roomID.
func (m *Module) Room(roomID string) (RoomStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, ok := m.rooms[roomID]
	if !ok {
		return RoomStats{}, false
	}
	return copyStats(stats), true
}

// Snapshot returns a copy of every room's counters ordered by room id.
func (m *Module) Snapshot() []RoomStats {
	m.mu.RLock()
	snapshot := lo.MapToSlice(m.rooms, func(_ string, s *RoomStats) RoomStats {
		return copyStats(s)
	})
	m.mu.RUnlock()

	slices.SortFunc(snapshot, func(a, b RoomStats) int {
		return strings.Compare(a.RoomID, b.RoomID)
	})
	return snapshot
}

func copyStats(s *RoomStats) RoomStats {
	cp := *s
	cp.BySource = lo.Assign(s.BySource)
	return cp
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Activity module started")
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Activity module stopped")
	return nil
}

// Health reports totals across rooms.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	snapshot := m.Snapshot()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"rooms":    len(snapshot),
			"messages": lo.SumBy(snapshot, func(s RoomStats) int64 { return s.Messages }),
		},
	}
}
