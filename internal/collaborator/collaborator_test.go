package collaborator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisrepo "github.com/patetisho1/rabotim-com-sub003/internal/repository/redis"
	apperrors "github.com/patetisho1/rabotim-com-sub003/pkg/errors"
	"github.com/patetisho1/rabotim-com-sub003/pkg/httpclient"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHTTPClient() *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	return httpclient.New(cfg)
}

func taskServer(t *testing.T, statuses map[string]string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		id := r.URL.Path[len("/api/v1/tasks/"):]
		status, ok := statuses[id]
		w.Header().Set("Content-Type", "application/json")
		switch {
		case id == "broken":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"db down"}}`))
		case !ok:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"task not found"}}`))
		default:
			_, _ = w.Write([]byte(`{"data":{"id":"` + id + `","status":"` + status + `"}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTaskClient_TaskStatus(t *testing.T) {
	srv := taskServer(t, map[string]string{"t-1": "completed", "t-2": "in_progress"}, nil)
	client := NewTaskClient(testHTTPClient(), srv.URL)
	ctx := context.Background()

	status, err := client.TaskStatus(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", status)

	status, err = client.TaskStatus(ctx, "t-2")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", status)

	_, err = client.TaskStatus(ctx, "t-404")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = client.TaskStatus(ctx, "broken")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestTaskClient_Unreachable(t *testing.T) {
	client := NewTaskClient(testHTTPClient(), "http://127.0.0.1:1")

	_, err := client.TaskStatus(context.Background(), "t-1")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
}

func TestUserClient_UserExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/users/u-1":
			_, _ = w.Write([]byte(`{"data":{"id":"u-1"}}`))
		case "/api/v1/users/u-500":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewUserClient(testHTTPClient(), srv.URL)
	ctx := context.Background()

	ok, err := client.UserExists(ctx, "u-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.UserExists(ctx, "u-2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.UserExists(ctx, "u-500")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestCachedTaskStatusReader(t *testing.T) {
	var calls atomic.Int32
	srv := taskServer(t, map[string]string{"done": "completed", "open": "active"}, &calls)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	cache := redisrepo.NewTaskStatusCache(rdb, time.Hour)

	reader := NewCachedTaskStatusReader(NewTaskClient(testHTTPClient(), srv.URL), cache, discardLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status, err := reader.TaskStatus(ctx, "done")
		require.NoError(t, err)
		assert.Equal(t, "completed", status)
	}
	assert.Equal(t, int32(1), calls.Load(), "completed status is served from cache")

	for i := 0; i < 2; i++ {
		_, err := reader.TaskStatus(ctx, "open")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load(), "open tasks are always checked live")
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("redis down")
}

func (failingCache) Set(context.Context, string, string) error { return errors.New("redis down") }

func TestCachedTaskStatusReader_CacheFailureFallsThrough(t *testing.T) {
	srv := taskServer(t, map[string]string{"done": "completed"}, nil)
	reader := NewCachedTaskStatusReader(NewTaskClient(testHTTPClient(), srv.URL), failingCache{}, discardLogger())

	status, err := reader.TaskStatus(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, "completed", status)
}
