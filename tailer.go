package autofilter

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/nxadm/tail"
)

// warmUpCutoff is how far in the past (relative to wall-clock now) a log
// line's window prefix may be before the optional warm-up routine
// discards it (§4.D).
const warmUpCutoff = 2 * time.Minute

// Tailer follows an append-only log file (§4.D), surviving rotation by
// detecting an inode change. It wraps nxadm/tail, whose ReOpen+Poll mode
// implements the "close, re-open, resume from offset 0" behavior the
// LogCursor contract in §3 describes, instead of hand-rolling inode
// tracking.
type Tailer struct {
	path string
	t    *tail.Tail
}

// NewTailer opens path for tailing. If the file doesn't exist yet, the
// underlying library polls for it at one-second cadence, matching §4.D.
func NewTailer(path string) (*Tailer, error) {
	t, err := tail.TailFile(path, tail.Config{
		ReOpen:    true,
		Poll:      true,
		Follow:    true,
		MustExist: false,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekStart},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, err
	}
	return &Tailer{path: path, t: t}, nil
}

// Lines returns a channel of log lines, stripped of their terminator. The
// channel is closed once ctx is canceled and the tailer has stopped,
// implementing the cooperative shutdown contract of §5: the daemon's main
// loop, not this goroutine, owns the decision to stop.
func (t *Tailer) Lines(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				t.t.Stop()
				return
			case line, ok := <-t.t.Lines:
				if !ok {
					return
				}
				if line.Err != nil {
					Log.WithError(line.Err).Warn("error while tailing log file")
					continue
				}
				select {
				case out <- line.Text:
				case <-ctx.Done():
					t.t.Stop()
					return
				}
			}
		}
	}()
	return out
}

// Close stops the tailer and releases its file handle.
func (t *Tailer) Close() error {
	return t.t.Stop()
}

// WarmUpFilter implements the optional startup routine (§4.D, §9) that
// discards log lines whose window prefix is older than warmUpCutoff from
// wall-clock now, so a restart doesn't reprocess stale data. It
// deactivates itself the first time it sees a line that isn't stale,
// since at that point the tailer has caught up to live traffic.
type WarmUpFilter struct {
	active bool
	now    func() time.Time
}

// NewWarmUpFilter returns a filter that is a no-op unless enabled.
func NewWarmUpFilter(enabled bool) *WarmUpFilter {
	return &WarmUpFilter{active: enabled, now: time.Now}
}

// Skip reports whether raw should be discarded as stale warm-up data.
func (f *WarmUpFilter) Skip(raw string) bool {
	if !f.active {
		return false
	}
	timeField := raw
	if idx := strings.IndexByte(raw, '\t'); idx >= 0 {
		timeField = raw[:idx]
	}
	prefix := windowPrefix(timeField)
	if prefix == "" {
		return false
	}
	t, err := time.Parse("2006-01-02 15:04", prefix)
	if err != nil {
		return false
	}
	stale := f.now().Sub(t) > warmUpCutoff
	if !stale {
		f.active = false
	}
	return stale
}
