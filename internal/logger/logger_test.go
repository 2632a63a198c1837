package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"WARN":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"panic":   zapcore.PanicLevel,
		"fatal":   zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got, s)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestParseFormat checks console is the fallback and json is recognised.
func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, ok := ParseFormat(" JSON ")
	require.True(t, ok)
	require.Equal(t, FormatJSON, f)

	f, ok = ParseFormat("")
	require.True(t, ok)
	require.Equal(t, FormatConsole, f)

	f, ok = ParseFormat("xml")
	require.False(t, ok)
	require.Equal(t, FormatConsole, f)
}

// TestContextHelpers ensures scoped fields travel with the context.
func TestContextHelpers(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())

	ctx = WithName(ctx, "ingest")
	ctx = WithKV(ctx, "network", "home")

	InfoKV(ctx, "snapshot applied", "devices", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "ingest", entries[0].LoggerName)
	require.Equal(t, "home", entries[0].ContextMap()["network"])
	require.EqualValues(t, 3, entries[0].ContextMap()["devices"])

	// Without a scoped logger the global one is returned.
	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestCronLogger checks that info chatter is filtered while errors pass.
func TestCronLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())

	l := NewCronLogger(ctx, zapcore.WarnLevel)
	l.Info("wake", "now", "x")
	l.Error(errors.New("boom"), "job panicked")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "job panicked", entries[0].Message)
	require.Equal(t, "cron", entries[0].LoggerName)
}
