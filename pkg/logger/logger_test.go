package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestNewWithWriter_TagsService(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("reputation-service", "info", &buf)

	l.Info("summary refreshed", slog.String("reviewed_user_id", "u-1"))

	out := decodeLine(t, &buf)
	assert.Equal(t, "reputation-service", out["service"])
	assert.Equal(t, "u-1", out["reviewed_user_id"])
}

func TestNewWithWriter_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("reputation-service", "warn", &buf)

	l.Info("dropped")
	assert.Zero(t, buf.Len())
}

func TestWithContext_EnrichesFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("reputation-service", "info", &buf)

	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})

	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithCorrelationID(ctx, "corr-9")
	ctx = WithUserID(ctx, "reviewer-1")

	WithContext(ctx, l).Info("evaluation submitted")

	out := decodeLine(t, &buf)
	assert.Equal(t, "corr-9", out["correlation_id"])
	assert.Equal(t, "reviewer-1", out["user_id"])
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", out["trace_id"])
	assert.Equal(t, "b7ad6b7169203331", out["span_id"])
}

func TestWithContext_EmptyContextReturnsSameLogger(t *testing.T) {
	l := NewWithWriter("reputation-service", "info", &bytes.Buffer{})
	assert.Same(t, l, WithContext(context.Background(), l))
}

func TestFromContext_DefaultsToSlogDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))

	l := NewWithWriter("reputation-service", "info", &bytes.Buffer{})
	assert.Same(t, l, FromContext(NewContext(context.Background(), l)))
}
