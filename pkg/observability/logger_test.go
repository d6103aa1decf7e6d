package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantdesk/pkg/contextkeys"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Debug("hidden")
	assert.Zero(t, buf.Len())

	logger.Warnf("retry %d", 2)
	entry := decodeLine(t, &buf)
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "retry 2", entry["msg"])
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(DebugLevel, &buf).
		WithField("workspace_id", "ws-1").
		WithFields(map[string]interface{}{"status": "closed"}).
		WithError(assert.AnError).
		Info("transition")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "ws-1", entry["workspace_id"])
	assert.Equal(t, "closed", entry["status"])
	assert.Equal(t, assert.AnError.Error(), entry["error"])
}

func TestLogger_WithNilErrorIsNoop(t *testing.T) {
	l := Nop()
	assert.Same(t, l, l.WithError(nil))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := contextkeys.WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
	ctx = contextkeys.WithRequestID(ctx, "req-1")
	ctx = contextkeys.WithSubjectID(ctx, "u-1")

	FromContext(ctx).Info("hello")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "u-1", entry["subject_id"])
	assert.NotContains(t, entry, "trace_id")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, InfoLevel, ParseLogLevel("bogus"))
}
