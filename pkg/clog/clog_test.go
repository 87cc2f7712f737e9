package clog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributesHandler_AddsContextAttributes(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(NewAttributesHandler(slog.NewJSONHandler(buf, nil)))

	ctx := WithAttributes(context.Background(), map[string]any{"task_id": "T1"})
	AddAttribute(ctx, "member_id", "u1")
	logger.InfoContext(ctx, "completed")

	assert.Contains(t, buf.String(), `"task_id":"T1"`)
	assert.Contains(t, buf.String(), `"member_id":"u1"`)
}

func TestAddAttribute_WithoutBagIsNoop(t *testing.T) {
	ctx := context.Background()
	AddAttribute(ctx, "k", "v")
	assert.Nil(t, GetAttributes(ctx))
}

func TestGetError(t *testing.T) {
	ctx := ContextWithSlog(context.Background())
	want := errors.New("boom")
	AddError(ctx, want)
	assert.Equal(t, want, GetError(ctx))
	assert.Empty(t, GetStack(ctx))
}

func TestMergeMaps_Nested(t *testing.T) {
	dst := map[string]any{"walk": map[string]any{"op": "complete"}}
	mergeMaps(dst, map[string]any{"walk": map[string]any{"visited": 3}})
	assert.Equal(t, map[string]any{"op": "complete", "visited": 3}, dst["walk"])
}

func TestTextHandler_Format(t *testing.T) {
	buf := &bytes.Buffer{}
	h := NewTextHandler(buf, WithColor(false), WithLevel(slog.LevelDebug))
	logger := slog.New(h)

	logger.Warn("reminder failed", "task_id", "T1", "error", errors.New("gone"), "window", 3600)

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "WARN T1 reminder failed \"gone\"\n")
	assert.Contains(t, out, "    window=3600\n")
}

func TestTextHandler_Level(t *testing.T) {
	h := NewTextHandler(&bytes.Buffer{})
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
}

func TestHTTPStatusToLevel(t *testing.T) {
	assert.Equal(t, LevelInfo, HTTPStatusToLevel(200))
	assert.Equal(t, LevelInfo, HTTPStatusToLevel(499))
	assert.Equal(t, LevelWarn, HTTPStatusToLevel(404))
	assert.Equal(t, LevelError, HTTPStatusToLevel(503))
}
