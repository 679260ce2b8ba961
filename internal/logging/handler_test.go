package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "output: %s", buf.String())
	return entry
}

func TestSetupJSONStampsService(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "authsessiond", Version: "1.2.0", Writer: &buf})

	logger.Info("started")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "started", entry["msg"])
	assert.Equal(t, "authsessiond", entry["service"])
	assert.Equal(t, "1.2.0", entry["version"])
	assert.NotContains(t, entry, "trace_id")
}

func TestSetupTextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "authsessiond", Format: "text", Level: "warn", Writer: &buf})

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "service=authsessiond")
}

func TestTraceContextIsAttached(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "authsessiond", Writer: &buf})

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.With("component", "engine").InfoContext(ctx, "traced")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
	assert.Equal(t, "engine", entry["component"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestLogErrorOops(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("DB_CONNECT_FAILED").With("attempts", 3).Errorf("dial failed")
	LogError(context.Background(), logger, "startup failed", err)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "startup failed", entry["msg"])
	assert.Equal(t, "DB_CONNECT_FAILED", entry["code"])
	assert.Contains(t, entry, "context")
}

func TestLogErrorPlain(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	LogError(context.Background(), logger, "sweep failed", errors.New("boom"))

	entry := decodeLine(t, &buf)
	assert.Equal(t, "boom", entry["error"])
	assert.NotContains(t, entry, "code")
}
