package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "text", Output: &buf})

	l.Info("dropped")
	l.Warn("kept", "card", 3)

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
	assert.Contains(t, out, "card=3")
}

func TestError_AppendsErrorField(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Output: &buf})

	l.Error(errors.New("disk full"), "append failed")

	assert.Contains(t, buf.String(), `"error":"disk full"`)
	assert.Contains(t, buf.String(), `"msg":"append failed"`)
}

func TestWithContext_AddsRunID(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "text", Output: &buf})

	ctx := ContextWithRunID(context.Background(), "run-42")
	l.WithContext(ctx).Info("batch done")

	assert.Contains(t, buf.String(), "run_id=run-42")
	assert.Equal(t, "run-42", RunIDFromContext(ctx))
	assert.Equal(t, "", RunIDFromContext(context.Background()))
}
