package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/patetisho1/rabotim-com-sub003/internal/repository"
	pkgkafka "github.com/patetisho1/rabotim-com-sub003/pkg/kafka"
)

// TopicTaskStatusChanged is published by the task service on every status
// transition.
const TopicTaskStatusChanged = "rabotim.task.status_changed"

// TaskStatusChangedData is the expected payload of a task.status_changed event.
type TaskStatusChangedData struct {
	TaskID    string `json:"task_id"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status"`
}

var errMalformedTaskEvent = errors.New("task.status_changed event without task_id or new_status")

// Consumer projects task status events into the task status cache so the
// eligibility gate rarely needs to call the task service.
type Consumer struct {
	cache  repository.TaskStatusCache
	logger *slog.Logger
}

// NewConsumer creates a new task status consumer.
func NewConsumer(cache repository.TaskStatusCache, logger *slog.Logger) *Consumer {
	return &Consumer{cache: cache, logger: logger}
}

// HandleTaskStatusChanged stores the task's new status.
func (c *Consumer) HandleTaskStatusChanged(ctx context.Context, event *pkgkafka.Event) error {
	var data TaskStatusChangedData
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}
	if data.TaskID == "" || data.NewStatus == "" {
		return errMalformedTaskEvent
	}

	if err := c.cache.Set(ctx, data.TaskID, data.NewStatus); err != nil {
		return fmt.Errorf("cache status of task %s: %w", data.TaskID, err)
	}

	c.logger.InfoContext(ctx, "task status projected",
		slog.String("task_id", data.TaskID),
		slog.String("old_status", data.OldStatus),
		slog.String("new_status", data.NewStatus),
	)
	return nil
}
