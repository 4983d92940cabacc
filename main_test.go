package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/example/chat-relay/modules/api"
	"github.com/go-monolith/mono"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freeAddr returns a local address nothing is listening on.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// startRelay runs the modules exactly as main does, on the memory driver.
func startRelay(t *testing.T) string {
	t.Helper()
	addr := freeAddr(t)
	t.Setenv("PORT", addr)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("RATE_LIMIT_REQUESTS", "10000")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	app, err := mono.NewMonoApplication(
		mono.WithLogLevel(mono.LogLevelError), // Suppress logs in tests
	)
	require.NoError(t, err)

	mods := newModules(cfg, app.Logger())
	for _, mod := range mods.all() {
		app.Register(mod)
	}
	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Stop(ctx)
	})
	return addr
}

func TestRelay_FullHistoryLargerThanBusPayload(t *testing.T) {
	addr := startRelay(t)
	client := &http.Client{Timeout: 10 * time.Second}
	url := "http://" + addr + "/rooms/room1/messages"

	body := strings.Repeat("x", 4990)
	const total = 250
	for i := 0; i < total; i++ {
		payload := fmt.Sprintf(`{"username":"alice","message":"%d %s"}`, i, body)
		resp, err := client.Post(url, "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, "post %d", i)
	}

	start := time.Now()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Less(t, time.Since(start), 3*time.Second)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Greater(t, len(data), 1<<20)

	var messages []api.MessageResponse
	require.NoError(t, json.Unmarshal(data, &messages))
	require.Len(t, messages, total)
	for i, msg := range messages {
		assert.Equal(t, int64(i+1), msg.ID)
	}

	resp, err = client.Get("http://" + addr + "/rooms")
	require.NoError(t, err)
	var rooms api.RoomListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	_ = resp.Body.Close()
	require.Equal(t, 1, rooms.Total)
	assert.Equal(t, "room1", rooms.Rooms[0].ID)
}
