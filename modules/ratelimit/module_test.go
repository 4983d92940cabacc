package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModule_LocalBackend(t *testing.T) {
	m := NewModule(ModuleConfig{}, newMockLogger())
	ctx := context.Background()

	assert.Equal(t, "ratelimit", m.Name())
	assert.False(t, m.Health(ctx).Healthy)

	require.NoError(t, m.Start(ctx))
	require.NotNil(t, m.Middleware())

	health := m.Health(ctx)
	assert.True(t, health.Healthy)
	assert.Equal(t, "local", health.Details["backend"])

	bucket := m.NewConnLimiter()
	for i := 0; i < DefaultModuleConfig().PushBurst; i++ {
		assert.True(t, bucket.Allow())
	}
	assert.False(t, bucket.Allow())

	require.NoError(t, m.Stop(ctx))
}

func TestModule_UnreachableRedis(t *testing.T) {
	m := NewModule(ModuleConfig{RedisAddr: "127.0.0.1:1"}, newMockLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.Error(t, m.Start(ctx))
	assert.Nil(t, m.Middleware())
}

func TestModule_RedisBackend(t *testing.T) {
	setupTestRedis(t)

	m := NewModule(ModuleConfig{RedisAddr: "localhost:6379", KeyPrefix: "test:chat-relay:module:"}, newMockLogger())
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer func() { _ = m.Stop(ctx) }()

	health := m.Health(ctx)
	assert.True(t, health.Healthy)
	assert.Equal(t, "redis", health.Details["backend"])
}
