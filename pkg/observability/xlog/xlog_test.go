package xlog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xadmit/pkg/observability/xlog"
)

func build(t *testing.T, b *xlog.Builder) xlog.LoggerWithLevel {
	t.Helper()
	logger, cleanup, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, cleanup()) })
	return logger
}

// =============================================================================
// Builder
// =============================================================================

func TestBuilder_JSONWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := build(t, xlog.New().
		SetOutput(&buf).
		SetFormat("JSON").
		SetAttrs(xlog.Component("xgate")))

	logger.Warn(context.Background(), "gate saturated",
		slog.Int(xlog.KeyCapacity, 10),
		xlog.Err(errors.New("boom")),
		xlog.Duration(1500*time.Millisecond))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "gate saturated", rec["msg"])
	assert.Equal(t, "xgate", rec[xlog.KeyComponent])
	assert.EqualValues(t, 10, rec[xlog.KeyCapacity])
	assert.Equal(t, "boom", rec[xlog.KeyError])
	assert.Equal(t, "1.5s", rec[xlog.KeyDuration])
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("unknown format", func(t *testing.T) {
		_, _, err := xlog.New().SetFormat("xml").Build()
		assert.Error(t, err)
	})

	t.Run("unknown level", func(t *testing.T) {
		_, _, err := xlog.New().SetLevelString("loud").Build()
		assert.Error(t, err)
	})

	t.Run("first error wins", func(t *testing.T) {
		_, _, err := xlog.New().SetLevelString("loud").SetFormat("xml").Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loud")
	})

	t.Run("empty rotation filename", func(t *testing.T) {
		_, _, err := xlog.New().SetRotation(" ", xlog.Rotation{}).Build()
		assert.ErrorIs(t, err, xlog.ErrEmptyFilename)
	})
}

func TestBuilder_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, cleanup, err := xlog.New().SetRotation(path, xlog.Rotation{MaxSizeMB: 1}).Build()
	require.NoError(t, err)

	logger.Info(context.Background(), "written to file")
	require.NoError(t, cleanup())
	// 幂等
	require.NoError(t, cleanup())
	assert.FileExists(t, path)
}

// =============================================================================
// 级别
// =============================================================================

func TestLogger_DynamicLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := build(t, xlog.New().SetOutput(&buf).SetLevel(xlog.LevelWarn))
	ctx := context.Background()

	logger.Info(ctx, "hidden")
	assert.Empty(t, buf.String())
	assert.False(t, logger.Enabled(ctx, xlog.LevelInfo))

	child := logger.With(xlog.RequestID("r-1"))
	logger.SetLevel(xlog.LevelDebug)
	assert.Equal(t, xlog.LevelDebug, logger.GetLevel())

	// 派生 logger 共享级别
	child.Debug(ctx, "visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "request_id=r-1")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want xlog.Level
		ok   bool
	}{
		{"debug", xlog.LevelDebug, true},
		{" INFO ", xlog.LevelInfo, true},
		{"warning", xlog.LevelWarn, true},
		{"Error", xlog.LevelError, true},
		{"trace", xlog.LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := xlog.ParseLevel(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	var l xlog.Level
	require.NoError(t, l.UnmarshalText([]byte("warn")))
	assert.Equal(t, "WARN", l.String())
}

// =============================================================================
// Discard / Default
// =============================================================================

func TestDiscard(t *testing.T) {
	l := xlog.OrDiscard(nil)
	require.NotNil(t, l)
	// 不 panic
	l.Error(context.Background(), "dropped", xlog.Err(nil))
	l.WithGroup("g").With(xlog.Attempt(1)).Info(context.Background(), "dropped")

	var buf bytes.Buffer
	lg := build(t, xlog.New().SetOutput(&buf))
	assert.Same(t, lg, xlog.OrDiscard(lg))
}

func TestDefault(t *testing.T) {
	assert.NotNil(t, xlog.Default())

	var buf bytes.Buffer
	custom := build(t, xlog.New().SetOutput(&buf))
	xlog.SetDefault(custom)
	xlog.SetDefault(nil)
	xlog.Default().Info(context.Background(), "via default", xlog.Count(3))
	assert.Contains(t, buf.String(), "count=3")
}
