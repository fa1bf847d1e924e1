package cache

import (
	"context"
	"os"
	"testing"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chai-assistant/internal/model"
)

// Runs against a real server when CHAI_TEST_REDIS_ADDR is set.
func newTestCache(t *testing.T) *HistoryCache {
	t.Helper()
	addr := os.Getenv("CHAI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHAI_TEST_REDIS_ADDR not set")
	}
	client := redisv9.NewClient(&redisv9.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return NewHistoryCache(client, time.Minute, "chai-test-"+t.Name())
}

func TestHistoryKey(t *testing.T) {
	c := NewHistoryCache(nil, 0, "")
	assert.Equal(t, "chai:history:chat_memory", c.historyKey("chat_memory"))
	assert.Equal(t, 60*time.Second, c.historyTTL)
}

func TestHistoryCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.GetHistory(ctx, "t")
	require.NoError(t, err)
	assert.False(t, ok)

	turns := []model.Turn{{ThreadID: "t", ID: "user-1", Role: model.RoleUser, Content: "hi", Timestamp: "1"}}
	require.NoError(t, c.SetHistory(ctx, "t", turns))

	got, ok, err := c.GetHistory(ctx, "t")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, turns, got)

	require.NoError(t, c.DeleteHistory(ctx, "t"))
	_, ok, err = c.GetHistory(ctx, "t")
	require.NoError(t, err)
	assert.False(t, ok)
}
