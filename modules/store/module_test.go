package store

import (
	"context"
	"testing"

	"github.com/example/chat-relay/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

func newMockLogger() types.Logger {
	return &mockLogger{}
}

func TestModule_Name(t *testing.T) {
	m := NewModule(Config{Driver: DriverMemory}, newMockLogger())

	if name := m.Name(); name != "store" {
		t.Errorf("Name() = %q, want 'store'", name)
	}
}

func TestModule_StartStopHealth(t *testing.T) {
	m := NewModule(Config{Driver: DriverSQLite, SQLitePath: ":memory:"}, newMockLogger())
	ctx := context.Background()

	health := m.Health(ctx)
	assert.False(t, health.Healthy, "expected unhealthy before Start")

	require.NoError(t, m.Start(ctx))
	require.NotNil(t, m.Driver())

	health = m.Health(ctx)
	assert.True(t, health.Healthy)
	assert.Equal(t, DriverSQLite, health.Details["driver"])

	require.NoError(t, m.Stop(ctx))

	health = m.Health(ctx)
	assert.False(t, health.Healthy, "expected unhealthy after Stop")
}

func TestModule_MessageStoreBeforeAndAfterStart(t *testing.T) {
	m := NewModule(Config{Driver: DriverMemory}, newMockLogger())
	ctx := context.Background()

	_, err := m.Append(ctx, chat.NewMessage{RoomID: "room1", Body: "hi"})
	require.ErrorIs(t, err, chat.ErrStoreUnavailable)
	_, err = m.ListAll(ctx, "room1")
	require.ErrorIs(t, err, chat.ErrStoreUnavailable)

	require.NoError(t, m.Start(ctx))
	msg, err := m.Append(ctx, chat.NewMessage{RoomID: "room1", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.ID)

	listed, err := m.ListAll(ctx, "room1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestModule_StartUnknownDriver(t *testing.T) {
	m := NewModule(Config{Driver: "cassandra"}, newMockLogger())

	require.Error(t, m.Start(context.Background()))
}

func TestModule_handleAppendAndList(t *testing.T) {
	m := NewModuleWithDriver(NewMemoryStore(), newMockLogger())
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))

	resp, err := m.handleAppend(ctx, AppendRequest{Message: chat.NewMessage{
		RoomID: "room1", Username: "alice", Body: "hello",
	}}, nil)
	require.NoError(t, err)
	require.Empty(t, resp.ErrorCode)
	require.NotNil(t, resp.Message)
	assert.Equal(t, int64(1), resp.Message.ID)

	list, err := m.handleList(ctx, ListRequest{RoomID: "room1"}, nil)
	require.NoError(t, err)
	require.Empty(t, list.ErrorCode)
	require.Len(t, list.Messages, 1)
	assert.Equal(t, "hello", list.Messages[0].Body)
}

func TestModule_handleAppendReportsErrorCode(t *testing.T) {
	m := NewModuleWithDriver(NewMemoryStore(), newMockLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := m.handleAppend(ctx, AppendRequest{Message: chat.NewMessage{RoomID: "room1", Body: "x"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, chat.CodeStoreUnavailable, resp.ErrorCode)
	assert.Nil(t, resp.Message)

	list, err := m.handleList(ctx, ListRequest{RoomID: "room1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, chat.CodeStoreUnavailable, list.ErrorCode)
}
