package autofilter

import (
	"expvar"
	"fmt"
)

// getVarInt returns the *expvar.Int registered for a component+name pair,
// creating it on first use. Keeping one publishing point per (component,
// name) mirrors the teacher's getVarInt helper so restarts within the same
// process (as happens in tests) don't panic on expvar.NewInt's duplicate
// registration.
func getVarInt(component, name string) *expvar.Int {
	fullname := fmt.Sprintf("autofilter.%s.%s", component, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.Int)
	}
	return expvar.NewInt(fullname)
}

// metrics holds the counters published for the detection pipeline.
type metrics struct {
	linesProcessed   *expvar.Int
	linesMalformed   *expvar.Int
	windowsClosed    *expvar.Int
	offendersBlocked *expvar.Int
	whitelistHits    *expvar.Int
	reloadsSent      *expvar.Int
	reloadsSkipped   *expvar.Int
}

func newMetrics() *metrics {
	return &metrics{
		linesProcessed:   getVarInt("aggregator", "lines_processed"),
		linesMalformed:   getVarInt("aggregator", "lines_malformed"),
		windowsClosed:    getVarInt("aggregator", "windows_closed"),
		offendersBlocked: getVarInt("detector", "offenders_blocked"),
		whitelistHits:    getVarInt("detector", "whitelist_hits"),
		reloadsSent:      getVarInt("reload", "signals_sent"),
		reloadsSkipped:   getVarInt("reload", "signals_skipped"),
	}
}
