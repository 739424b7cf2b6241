package log

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLoggerLevelSharedWithChildren(t *testing.T) {
	l, err := New(Options{Level: LevelWarn, Encoding: "console"})
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, l.GetLevel())

	child := l.With(String("component", "test"))
	l.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, child.GetLevel())
}

func TestToZapFieldsCoversTypes(t *testing.T) {
	fields := toZapFields(
		Bool("b", true),
		Duration("d", time.Second),
		Float64("f", 1.5),
		Int("i", 1),
		Int64("i64", 2),
		Int32("i32", 3),
		String("s", "x"),
		Strings("ss", []string{"a"}),
		Time("t", time.Unix(0, 0)),
		Uint64("u", 4),
		Error(errors.New("boom")),
		Any("a", struct{}{}),
	)
	require.Len(t, fields, 12)
	assert.Equal(t, "error", fields[10].Key)
}

func TestNopLoggerDiscards(t *testing.T) {
	l := NewNop()
	l.Info("nothing", Int("n", 1))
	l.Named("child").Warn("still nothing")
	assert.NoError(t, l.Sync())
}
