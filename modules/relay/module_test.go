package relay

import (
	"context"
	"testing"
	"time"

	"github.com/example/chat-relay/domain/chat"
	"github.com/example/chat-relay/modules/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModule_Name(t *testing.T) {
	m := NewModule(DefaultConfig(), newMockLogger())

	assert.Equal(t, "relay", m.Name())
	assert.Equal(t, []string{"store"}, m.Dependencies())
	assert.Len(t, m.EmitEvents(), 3)
}

func TestModule_StartRequiresStore(t *testing.T) {
	m := NewModule(DefaultConfig(), newMockLogger())

	require.Error(t, m.Start(context.Background()))
	assert.False(t, m.Health(context.Background()).Healthy)
}

func TestModule_StartStop(t *testing.T) {
	m := NewModule(DefaultConfig(), newMockLogger())
	m.SetStore(store.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, m.Start(ctx))

	sub := m.Coordinator().Connect("u1", "alice")
	require.NoError(t, m.Coordinator().Join(sub, "room1", ""))

	health := m.Health(ctx)
	assert.True(t, health.Healthy)
	assert.Equal(t, 1, health.Details["rooms"])
	assert.Equal(t, 1, health.Details["subscribers"])

	require.NoError(t, m.Stop(ctx))
	assert.True(t, sub.Closed(), "Stop must disconnect subscribers")
	assert.Empty(t, m.Coordinator().Rooms())
}

func TestModule_StopWithoutStart(t *testing.T) {
	m := NewModule(DefaultConfig(), newMockLogger())

	require.NoError(t, m.Stop(context.Background()))
}

func TestModule_JanitorRemovesIdleRooms(t *testing.T) {
	m := NewModule(Config{
		RoomIdleTTL:   time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
	}, newMockLogger())
	m.SetStore(store.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer func() { _ = m.Stop(ctx) }()

	_, err := m.Coordinator().Post(ctx, chat.NewMessage{RoomID: "idle", Body: "hello"}, SourcePoll)
	require.NoError(t, err)

	sub := m.Coordinator().Connect("u1", "alice")
	require.NoError(t, m.Coordinator().Join(sub, "busy", ""))

	require.Eventually(t, func() bool {
		rooms := m.Coordinator().Rooms()
		return len(rooms) == 1 && rooms[0].ID == "busy"
	}, time.Second, 5*time.Millisecond)

	// History outlives the room entry.
	history, err := m.Coordinator().History(ctx, "idle")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestModule_handlePostAndHistory(t *testing.T) {
	m := NewModule(DefaultConfig(), newMockLogger())
	m.SetStore(store.NewMemoryStore())
	ctx := context.Background()

	resp, err := m.handlePost(ctx, PostRequest{Message: chat.NewMessage{RoomID: "room1", Body: "hello"}}, nil)
	require.NoError(t, err)
	require.Empty(t, resp.ErrorCode)
	require.NotNil(t, resp.Message)
	assert.Equal(t, int64(1), resp.Message.ID)

	hist, err := m.handleHistory(ctx, HistoryRequest{RoomID: "room1"}, nil)
	require.NoError(t, err)
	require.Empty(t, hist.ErrorCode)
	assert.Len(t, hist.Messages, 1)
}

func TestModule_handlePostReportsErrorCode(t *testing.T) {
	m := NewModule(DefaultConfig(), newMockLogger())
	m.SetStore(store.NewMemoryStore())
	ctx := context.Background()

	resp, err := m.handlePost(ctx, PostRequest{Message: chat.NewMessage{RoomID: "room1", Body: "   "}}, nil)
	require.NoError(t, err)
	assert.Equal(t, chat.CodeInvalidRequest, resp.ErrorCode)

	m.SetStore(failingStore{})
	resp, err = m.handlePost(ctx, PostRequest{Message: chat.NewMessage{RoomID: "room1", Body: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, chat.CodeStoreUnavailable, resp.ErrorCode)

	hist, err := m.handleHistory(ctx, HistoryRequest{RoomID: ""}, nil)
	require.NoError(t, err)
	assert.Equal(t, chat.CodeInvalidRequest, hist.ErrorCode)
}
