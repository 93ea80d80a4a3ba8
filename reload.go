package autofilter

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ReloadController implements §4.H: after each store write it compares the
// current bot address set against the last one it published and, if
// changed and the cooldown has elapsed, signals the fronting server's
// master process to reload.
type ReloadController struct {
	PIDPath         string
	CooldownSeconds int
	Metrics         *metrics

	lastReloadEpoch int64
	lastPublished   map[string]struct{}
}

// NewReloadController returns a ReloadController that signals the process
// whose PID is at pidPath, rate-limited to one signal per cooldownSeconds.
func NewReloadController(pidPath string, cooldownSeconds int, m *metrics) *ReloadController {
	if cooldownSeconds <= 0 {
		cooldownSeconds = 60
	}
	return &ReloadController{
		PIDPath:         pidPath,
		CooldownSeconds: cooldownSeconds,
		Metrics:         m,
		lastPublished:   make(map[string]struct{}),
	}
}

// MaybeReload signals the fronting server iff the address set has changed
// since the last signal AND the cooldown has elapsed (§4.H, property 7).
// A missing or unreadable PID file silently skips signaling for this
// cycle; the next window close will retry (§7).
func (r *ReloadController) MaybeReload(bots BotSet, now time.Time) {
	current := bots.Addresses()

	if now.Unix()-r.lastReloadEpoch < int64(r.CooldownSeconds) {
		r.Metrics.reloadsSkipped.Add(1)
		return
	}
	if setsEqual(current, r.lastPublished) {
		r.Metrics.reloadsSkipped.Add(1)
		return
	}

	pid, err := readPID(r.PIDPath)
	if err != nil {
		Log.WithError(err).Debug("pid file missing or unreadable, skipping reload signal")
		r.Metrics.reloadsSkipped.Add(1)
		return
	}

	if err := signalReload(pid); err != nil {
		Log.WithError(err).WithField("pid", pid).Error("failed to signal fronting server")
		r.Metrics.reloadsSkipped.Add(1)
		return
	}

	r.lastReloadEpoch = now.Unix()
	r.lastPublished = current
	r.Metrics.reloadsSent.Add(1)
	Log.WithField("pid", pid).Info("signaled fronting server to reload")
}

// readPID reads an ASCII decimal process id from the first line of path.
func readPID(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%s: empty pid file", path)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid pid: %w", path, err)
	}
	return pid, nil
}

// signalReload sends SIGHUP to pid, the fronting server's reload signal.
func signalReload(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Signal(syscall.SIGHUP)
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
