package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContextAddsTraceAndTenant(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("bookmate", "info", "json", &buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithTenantID(ctx, "acme")
	ctx = WithActor(ctx, "web")
	logger.WithContext(ctx).Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "bookmate", line["service"])
	assert.Equal(t, "trace-1", line["trace_id"])
	assert.Equal(t, "acme", line["tenant_id"])
	assert.Equal(t, "web", line["actor"])
	assert.Equal(t, "hello", line["msg"])
}

func TestLogRequestLevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("bookmate", "debug", "json", &buf)

	logger.LogRequest(context.Background(), "GET", "/api/v1/pnl", 502, 15*time.Millisecond)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.EqualValues(t, 502, line["status"])
	assert.EqualValues(t, 15, line["duration_ms"])
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	logger := New("bookmate", "loud", "text")
	assert.Equal(t, "info", logger.GetLevel().String())
}

func TestContextGettersOnEmptyContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetTenantID(ctx))
	assert.Empty(t, GetActor(ctx))
	assert.Equal(t, ctx, WithTenantID(ctx, ""))
}
