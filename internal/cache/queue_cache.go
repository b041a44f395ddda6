package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"listenline/internal/model"
)

const queueKey = "support:queue"

// QueueCache holds a short-lived snapshot of the waiting line. The
// snapshot is derived state only: every request status mutation
// invalidates it and the store recomputes the real ordering, so the
// cache can never become a second source of truth.
type QueueCache struct {
	client   *redisv9.Client
	queueTTL time.Duration
}

func NewQueueCache(client *redisv9.Client, queueTTL time.Duration) *QueueCache {
	if queueTTL <= 0 {
		queueTTL = 5 * time.Second
	}
	return &QueueCache{
		client:   client,
		queueTTL: queueTTL,
	}
}

func (c *QueueCache) GetQueue(ctx context.Context) ([]model.SupportRequest, bool, error) {
	raw, err := c.client.Get(ctx, queueKey).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get queue failed: %w", err)
	}

	var requests []model.SupportRequest
	if err := json.Unmarshal([]byte(raw), &requests); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached queue failed: %w", err)
	}
	return requests, true, nil
}

func (c *QueueCache) SetQueue(ctx context.Context, requests []model.SupportRequest) error {
	payload, err := json.Marshal(requests)
	if err != nil {
		return fmt.Errorf("marshal queue cache failed: %w", err)
	}
	if err := c.client.Set(ctx, queueKey, payload, c.queueTTL).Err(); err != nil {
		return fmt.Errorf("redis set queue failed: %w", err)
	}
	return nil
}

func (c *QueueCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, queueKey).Err(); err != nil {
		return fmt.Errorf("redis delete queue failed: %w", err)
	}
	return nil
}
