package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const taskStatusKeyPrefix = "reputation:task-status:"

// TaskStatusCache implements repository.TaskStatusCache using Redis. It is
// fed by task status events and read-through by the eligibility gate.
type TaskStatusCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewTaskStatusCache creates a task status cache whose entries expire after ttl.
func NewTaskStatusCache(client redis.Cmdable, ttl time.Duration) *TaskStatusCache {
	return &TaskStatusCache{client: client, ttl: ttl}
}

// Get returns the cached status of taskID and whether it was present.
func (c *TaskStatusCache) Get(ctx context.Context, taskID string) (string, bool, error) {
	status, err := c.client.Get(ctx, taskStatusKeyPrefix+taskID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get task status: %w", err)
	}
	return status, true, nil
}

// Set records the latest status of taskID.
func (c *TaskStatusCache) Set(ctx context.Context, taskID, status string) error {
	if err := c.client.Set(ctx, taskStatusKeyPrefix+taskID, status, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set task status: %w", err)
	}
	return nil
}
