package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDomainDuplicate = errors.New("already_rated")

func TestAppError_ErrorString(t *testing.T) {
	withCause := &AppError{Code: "INTERNAL_ERROR", Message: "store failed", Err: fmt.Errorf("conn reset")}
	assert.Equal(t, "INTERNAL_ERROR: store failed: conn reset", withCause.Error())

	bare := &AppError{Code: "NOT_FOUND", Message: "review not found"}
	assert.Equal(t, "NOT_FOUND: review not found", bare.Error())
	assert.Nil(t, bare.Unwrap())
}

func TestNotFound(t *testing.T) {
	err := NotFound("review", "rev-1")

	assert.Equal(t, "NOT_FOUND", err.Code)
	assert.Equal(t, "review with id rev-1 not found", err.Message)
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestConflict_WrapsCauseAndCarriesReason(t *testing.T) {
	err := Conflict("already_rated", "task already evaluated", errDomainDuplicate)

	assert.Equal(t, http.StatusConflict, err.Status)
	assert.Equal(t, "already_rated", err.Reason)
	assert.True(t, errors.Is(err, errDomainDuplicate))
	assert.Equal(t, "already_rated", ReasonOf(fmt.Errorf("submit: %w", err)))
}

func TestConflict_NilCauseFallsBackToSentinel(t *testing.T) {
	err := Conflict("", "conflict", nil)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestUnprocessable(t *testing.T) {
	err := Unprocessable("not_completed", "task is not completed", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, err.Status)
	assert.Equal(t, "not_completed", err.Reason)
	assert.True(t, errors.Is(err, ErrUnprocessable))
}

func TestServiceUnavailable_JoinsCause(t *testing.T) {
	cause := errors.New("circuit open")
	err := ServiceUnavailable("task service", cause)

	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
	assert.True(t, errors.Is(err, ErrServiceUnavail))
	assert.True(t, errors.Is(err, cause))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", InvalidInput("bad"), http.StatusBadRequest},
		{"wrapped app error", Wrap(Forbidden("no"), "handler"), http.StatusForbidden},
		{"sentinel not found", Wrap(ErrNotFound, "get"), http.StatusNotFound},
		{"sentinel conflict", ErrConflict, http.StatusConflict},
		{"sentinel unprocessable", ErrUnprocessable, http.StatusUnprocessableEntity},
		{"sentinel unavailable", ErrServiceUnavail, http.StatusServiceUnavailable},
		{"rate limited", TooManyRequests("slow down"), http.StatusTooManyRequests},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestReasonOf_PlainError(t *testing.T) {
	require.Empty(t, ReasonOf(errors.New("plain")))
}
