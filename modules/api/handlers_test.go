package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/chat-relay/domain/chat"
	"github.com/example/chat-relay/modules/ratelimit"
	"github.com/example/chat-relay/modules/relay"
	"github.com/example/chat-relay/modules/store"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
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

// unavailableStore simulates an unreachable database.
type unavailableStore struct{}

func (unavailableStore) Append(context.Context, chat.NewMessage) (*chat.Message, error) {
	return nil, errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
}

func (unavailableStore) ListAll(context.Context, string) ([]*chat.Message, error) {
	return nil, errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
}

func setupTestModule(t *testing.T, st chat.MessageStore) (*Module, *relay.Coordinator) {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	coordinator := relay.NewCoordinator(relay.NewRegistry(newMockLogger()), st, relay.Config{}, newMockLogger())
	m := NewModule(Config{}, newMockLogger())
	m.SetCoordinator(coordinator)
	return m, coordinator
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestPostThenList(t *testing.T) {
	m, _ := setupTestModule(t, nil)
	app := m.buildApp()

	resp, body := doRequest(t, app, "POST", "/rooms/room1/messages",
		`{"userId":"u1","username":"alice","message":"hello"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	var posted MessageResponse
	require.NoError(t, json.Unmarshal(body, &posted))
	assert.Equal(t, int64(1), posted.ID)
	assert.Equal(t, "room1", posted.RoomID)
	assert.Equal(t, "alice", posted.Username)
	assert.Equal(t, "hello", posted.Message)
	assert.False(t, posted.CreatedAt.IsZero())

	resp, body = doRequest(t, app, "GET", "/rooms/room1/messages", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var listed []MessageResponse
	require.NoError(t, json.Unmarshal(body, &listed))
	require.NotEmpty(t, listed)
	last := listed[len(listed)-1]
	assert.Equal(t, posted.ID, last.ID)
	assert.Equal(t, "hello", last.Message)
}

func TestListUnknownRoomIsEmptyArray(t *testing.T) {
	m, _ := setupTestModule(t, nil)
	app := m.buildApp()

	resp, body := doRequest(t, app, "GET", "/rooms/nobody-here/messages", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestPostInvalid(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"empty message", "/rooms/room1/messages", `{"username":"alice","message":""}`},
		{"whitespace message", "/rooms/room1/messages", `{"username":"alice","message":"   \n\t"}`},
		{"missing message", "/rooms/room1/messages", `{"username":"alice"}`},
		{"malformed json", "/rooms/room1/messages", `{"message":`},
		{"blank room", "/rooms/%20%20/messages", `{"message":"hello"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := setupTestModule(t, nil)
			app := m.buildApp()

			resp, body := doRequest(t, app, "POST", tt.path, tt.body)
			require.Equal(t, fiber.StatusBadRequest, resp.StatusCode, string(body))

			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal(body, &errResp))
			assert.Equal(t, chat.CodeInvalidRequest, errResp.Error)

			resp, body = doRequest(t, app, "GET", "/rooms/room1/messages", "")
			require.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.JSONEq(t, `[]`, string(body), "rejected writes must not be stored")
		})
	}
}

func TestPostIgnoresUnknownFields(t *testing.T) {
	m, _ := setupTestModule(t, nil)
	app := m.buildApp()

	resp, body := doRequest(t, app, "POST", "/rooms/1.2.840.113619/messages",
		`{"username":"alice","message":"look at slice 12","displaySetInstanceUID":"abc"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	var posted MessageResponse
	require.NoError(t, json.Unmarshal(body, &posted))
	assert.Equal(t, "1.2.840.113619", posted.RoomID)
}

func TestPostDefaultsUsername(t *testing.T) {
	m, _ := setupTestModule(t, nil)
	app := m.buildApp()

	resp, body := doRequest(t, app, "POST", "/rooms/room1/messages", `{"message":"  hi  "}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var posted MessageResponse
	require.NoError(t, json.Unmarshal(body, &posted))
	assert.Equal(t, chat.DefaultUsername, posted.Username)
	assert.Equal(t, "hi", posted.Message)
}

func TestStoreUnavailable(t *testing.T) {
	m, _ := setupTestModule(t, unavailableStore{})
	app := m.buildApp()

	resp, body := doRequest(t, app, "POST", "/rooms/room1/messages", `{"message":"hello"}`)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get(fiber.HeaderRetryAfter))

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, chat.CodeStoreUnavailable, errResp.Error)
	assert.NotContains(t, errResp.Message, "5432", "driver details are not leaked")

	resp, _ = doRequest(t, app, "GET", "/rooms/room1/messages", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestPollWriteReachesPushSubscriber(t *testing.T) {
	m, coordinator := setupTestModule(t, nil)
	app := m.buildApp()

	sub := coordinator.Connect("u2", "bob")
	require.NoError(t, coordinator.Join(sub, "room1", ""))

	resp, body := doRequest(t, app, "POST", "/rooms/room1/messages", `{"username":"alice","message":"hello"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var posted MessageResponse
	require.NoError(t, json.Unmarshal(body, &posted))

	select {
	case data := <-sub.Outbound():
		var event relay.MessageEvent
		require.NoError(t, json.Unmarshal(data, &event))
		assert.Equal(t, relay.EventMessage, event.Type)
		assert.Equal(t, posted.ID, event.ID)
		assert.Equal(t, "hello", event.Message)
	default:
		t.Fatal("expected a pushed message")
	}
}

func TestListRoomsAndHealth(t *testing.T) {
	m, coordinator := setupTestModule(t, nil)
	app := m.buildApp()

	sub := coordinator.Connect("u1", "alice")
	require.NoError(t, coordinator.Join(sub, "room1", ""))

	resp, body := doRequest(t, app, "GET", "/rooms", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var rooms RoomListResponse
	require.NoError(t, json.Unmarshal(body, &rooms))
	require.Equal(t, 1, rooms.Total)
	assert.Equal(t, "room1", rooms.Rooms[0].ID)
	assert.Equal(t, 1, rooms.Rooms[0].Subscribers)

	resp, body = doRequest(t, app, "GET", "/health", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.EqualValues(t, 1, health.Details["connected_clients"])
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	m, _ := setupTestModule(t, nil)
	app := m.buildApp()

	resp, _ := doRequest(t, app, "GET", "/ws", "")
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestPostRateLimited(t *testing.T) {
	m, _ := setupTestModule(t, nil)
	limiter := ratelimit.NewModule(ratelimit.ModuleConfig{
		Gateway: ratelimit.Config{RequestsPerWindow: 2, WindowSize: time.Minute},
	}, newMockLogger())
	require.NoError(t, limiter.Start(context.Background()))
	m.SetRateLimiter(limiter)
	app := m.buildApp()

	for i := 0; i < 2; i++ {
		resp, _ := doRequest(t, app, "POST", "/rooms/room1/messages", `{"message":"hello"}`)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, _ := doRequest(t, app, "POST", "/rooms/room1/messages", `{"message":"hello"}`)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, _ = doRequest(t, app, "GET", "/rooms/room1/messages", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "reads are not limited")
}

func TestModule_Lifecycle(t *testing.T) {
	m, _ := setupTestModule(t, nil)
	assert.Equal(t, "api", m.Name())
	assert.Equal(t, []string{"relay"}, m.Dependencies())
	assert.False(t, m.Health(context.Background()).Healthy)

	unset := NewModule(Config{}, newMockLogger())
	require.Error(t, unset.Start(context.Background()))
	require.NoError(t, unset.Stop(context.Background()))
}

func TestPollOnlyGateway(t *testing.T) {
	coordinator := relay.NewCoordinator(relay.NewRegistry(newMockLogger()), store.NewMemoryStore(), relay.Config{}, newMockLogger())
	m := NewModule(Config{}, newMockLogger())
	m.SetMessageService(coordinator)
	app := m.buildApp()

	resp, body := doRequest(t, app, "POST", "/rooms/room1/messages", `{"message":"hello"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	resp, body = doRequest(t, app, "GET", "/rooms/room1/messages", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var listed []MessageResponse
	require.NoError(t, json.Unmarshal(body, &listed))
	assert.Len(t, listed, 1)

	resp, _ = doRequest(t, app, "GET", "/ws", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, "push transport needs a coordinator")

	resp, _ = doRequest(t, app, "GET", "/health", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
