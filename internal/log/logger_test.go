package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tazhibayda/authcore/internal/queue"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitInstallsGlobal(t *testing.T) {
	l, err := InitLevel(true, "warn")
	require.NoError(t, err)
	require.Same(t, l, L())
	require.False(t, l.Core().Enabled(zapcore.InfoLevel))
	require.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = InitLevel(false, "bogus")
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestWithDDWithoutSpan(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := queue.WithRequestID(context.Background(), "req-1")
	WithDD(ctx, zap.New(core), zap.String("k", "v")).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "v", fields["k"])
	require.Equal(t, "req-1", fields["request_id"])
	require.NotContains(t, fields, "dd.trace_id")
}
