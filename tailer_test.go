package autofilter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWarmUpFilterDisabledNeverSkips(t *testing.T) {
	f := NewWarmUpFilter(false)
	require.False(t, f.Skip("2000-01-01T00:00:00+00:00\tUS\t1.2.3.4"))
}

func TestWarmUpFilterSkipsStaleThenStopsSkipping(t *testing.T) {
	f := NewWarmUpFilter(true)
	f.now = func() time.Time { return time.Date(2026, 7, 30, 10, 20, 0, 0, time.UTC) }

	stale := "2026-07-30T10:10:00+00:00\tUS\t1.2.3.4"
	fresh := "2026-07-30T10:19:30+00:00\tUS\t1.2.3.4"

	require.True(t, f.Skip(stale), "10 minutes old must be discarded")
	require.False(t, f.Skip(fresh), "30 seconds old is within the cutoff")
	require.False(t, f.Skip(stale), "once live data arrives the filter deactivates for the rest of the run")
}

func TestWarmUpFilterUnparseableTimestampIsNeverStale(t *testing.T) {
	f := NewWarmUpFilter(true)
	require.False(t, f.Skip("not-a-timestamp"))
}

func TestTailerFollowsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	require.NoError(t, os.WriteFile(path, []byte("first line\n"), 0o644))

	tailer, err := NewTailer(path)
	require.NoError(t, err)
	defer tailer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lines := tailer.Lines(ctx)

	require.Equal(t, "first line", <-lines)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("second line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case line := <-lines:
		require.Equal(t, "second line", line)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for appended line")
	}
}
