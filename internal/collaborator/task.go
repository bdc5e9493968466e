package collaborator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/patetisho1/rabotim-com-sub003/internal/domain"
	"github.com/patetisho1/rabotim-com-sub003/internal/repository"
	apperrors "github.com/patetisho1/rabotim-com-sub003/pkg/errors"
	"github.com/patetisho1/rabotim-com-sub003/pkg/httpclient"
)

const taskServiceName = "task-service"

// TaskClient reads task state from the task service.
type TaskClient struct {
	http    httpclient.Doer
	baseURL string
}

// NewTaskClient creates a client for the task service at baseURL.
func NewTaskClient(doer httpclient.Doer, baseURL string) *TaskClient {
	return &TaskClient{http: doer, baseURL: baseURL}
}

type taskResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// TaskStatus returns the current status of taskID. An unknown task is a
// NotFound error; an unreachable task service is ServiceUnavailable.
func (c *TaskClient) TaskStatus(ctx context.Context, taskID string) (string, error) {
	var resp taskResponse
	err := httpclient.GetJSON(ctx, c.http, c.baseURL+"/api/v1/tasks/"+url.PathEscape(taskID), taskServiceName, &resp)
	if err != nil {
		return "", classify(err, "task", taskID)
	}
	if resp.Data.Status == "" {
		return "", apperrors.ServiceUnavailable(taskServiceName, fmt.Errorf("task %s: empty status", taskID))
	}
	return resp.Data.Status, nil
}

// classify reports a downstream 404 as NotFound. Anything else the
// collaborator answers, including its own 4xx, means it cannot serve us.
func classify(err error, resource, id string) error {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return apperrors.NotFound(resource, id)
	case errors.Is(err, apperrors.ErrServiceUnavail):
		return err
	default:
		return apperrors.ServiceUnavailable(resource+" service", err)
	}
}

// StatusSource is the live source behind CachedTaskStatusReader.
type StatusSource interface {
	TaskStatus(ctx context.Context, taskID string) (string, error)
}

// CachedTaskStatusReader answers from the task status cache when it already
// knows a task is completed and asks the task service otherwise. Completion
// is terminal, so only that answer is safe to serve from cache.
type CachedTaskStatusReader struct {
	source StatusSource
	cache  repository.TaskStatusCache
	logger *slog.Logger
}

// NewCachedTaskStatusReader creates a cache-first task status reader.
func NewCachedTaskStatusReader(source StatusSource, cache repository.TaskStatusCache, logger *slog.Logger) *CachedTaskStatusReader {
	return &CachedTaskStatusReader{source: source, cache: cache, logger: logger}
}

// TaskStatus returns the status of taskID.
func (r *CachedTaskStatusReader) TaskStatus(ctx context.Context, taskID string) (string, error) {
	status, found, err := r.cache.Get(ctx, taskID)
	switch {
	case err != nil:
		r.logger.WarnContext(ctx, "task status cache read failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
	case found && status == domain.TaskStatusCompleted:
		return status, nil
	}

	status, err = r.source.TaskStatus(ctx, taskID)
	if err != nil {
		return "", err
	}

	if status == domain.TaskStatusCompleted {
		if err := r.cache.Set(ctx, taskID, status); err != nil {
			r.logger.WarnContext(ctx, "task status cache write failed",
				slog.String("task_id", taskID),
				slog.String("error", err.Error()),
			)
		}
	}
	return status, nil
}
