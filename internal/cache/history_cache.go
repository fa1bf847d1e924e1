package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"chai-assistant/internal/model"
)

// HistoryCache keeps a short lived copy of a thread's turns in redis.
type HistoryCache struct {
	client     *redisv9.Client
	historyTTL time.Duration
	prefix     string
}

func NewHistoryCache(client *redisv9.Client, historyTTL time.Duration, prefix string) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if prefix == "" {
		prefix = "chai"
	}
	return &HistoryCache{
		client:     client,
		historyTTL: historyTTL,
		prefix:     prefix,
	}
}

func (c *HistoryCache) GetHistory(ctx context.Context, threadID string) ([]model.Turn, bool, error) {
	raw, err := c.client.Get(ctx, c.historyKey(threadID)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var turns []model.Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return turns, true, nil
}

func (c *HistoryCache) SetHistory(ctx context.Context, threadID string, turns []model.Turn) error {
	if turns == nil {
		turns = []model.Turn{}
	}
	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.historyKey(threadID), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) DeleteHistory(ctx context.Context, threadID string) error {
	if err := c.client.Del(ctx, c.historyKey(threadID)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) historyKey(threadID string) string {
	return fmt.Sprintf("%s:history:%s", c.prefix, threadID)
}
