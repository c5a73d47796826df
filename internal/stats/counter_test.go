package stats

import (
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/stretchr/testify/require"
)

func TestCounterRatesAndTallies(t *testing.T) {
	c := New(slog.Disabled, time.Hour)
	c.NoteHashes(1000)
	c.Record(StatusFound)
	c.Record(StatusPreempted)
	c.Record(StatusPreempted)
	c.Record(StatusAbandoned)

	require.Equal(t, uint64(1), c.tasksByStatus[StatusFound])
	require.Equal(t, uint64(2), c.tasksByStatus[StatusPreempted])
	require.Equal(t, uint64(1), c.tasksByStatus[StatusAbandoned])
	require.Equal(t, uint64(4), c.totalTasks)
	require.Greater(t, c.HashRate(), 0.0)
	require.Greater(t, c.TaskRate(), 0.0)
}

func TestCounterMaybeLogGated(t *testing.T) {
	c := New(slog.Disabled, 50*time.Millisecond)
	// First call always allowed (burst=1 starts full).
	c.MaybeLog()
	// Immediately after, gated.
	allowedAgain := c.gate.Allow()
	require.False(t, allowedAgain)

	time.Sleep(60 * time.Millisecond)
	require.True(t, c.gate.Allow())
}
