package correlation

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(NewHandler(slog.NewJSONHandler(buf, nil)))
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Len(t, FromRequest(r), 8)

	r.Header.Set(HeaderRequestID, "abc-123")
	assert.Equal(t, "abc-123", FromRequest(r))

	r.Header.Set(HeaderRequestID, strings.Repeat("x", 100))
	assert.Len(t, FromRequest(r), 8, "oversized ids are replaced")

	r.Header.Set(HeaderRequestID, "has space")
	assert.Len(t, FromRequest(r), 8)
}

func TestID_MissingOrEmpty(t *testing.T) {
	_, ok := ID(context.Background())
	assert.False(t, ok)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok)
}

func TestHandler_AddsCorrelationAndUser(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithUserID(WithID(context.Background(), "deadbeef"), 42)

	newJSONLogger(&buf).InfoContext(ctx, "hello")

	rec := decode(t, &buf)
	assert.Equal(t, "deadbeef", rec["correlation_id"])
	assert.Equal(t, 42.0, rec["user_id"])
}

func TestHandler_NothingWhenMissing(t *testing.T) {
	var buf bytes.Buffer

	newJSONLogger(&buf).InfoContext(context.Background(), "hello")

	rec := decode(t, &buf)
	assert.NotContains(t, rec, "correlation_id")
	assert.NotContains(t, rec, "user_id")
}

func TestHandler_WithAttrsKeepsWrapping(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf).With("component", "registry")

	logger.InfoContext(WithID(context.Background(), "cafebabe"), "hello")

	rec := decode(t, &buf)
	assert.Equal(t, "registry", rec["component"])
	assert.Equal(t, "cafebabe", rec["correlation_id"])
}
