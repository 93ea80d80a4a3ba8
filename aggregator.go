package autofilter

import "strings"

// WeightScale is the fixed-point scale applied to weights (§9 design
// note): rather than accumulating float64 weights, counts are kept as
// integers scaled by 100 so that a long-running window can't accumulate
// floating-point drift. The externally observable load is the truncated
// unscaled value (accumulated / WeightScale).
const WeightScale = 100

// edgeWeight and originWeight are the two weights from §4.E, scaled by
// WeightScale: 0.01 for edge-served (cache hit) requests, 1.0 otherwise.
const (
	edgeWeight   = 1   // 0.01 * WeightScale
	originWeight = 100 // 1.0 * WeightScale
)

// logFieldCount is the number of TAB-separated fields a well-formed access
// log line carries, per §4.E.
const logFieldCount = 13

// LogLine is a single parsed access-log record, in the field order
// specified by §4.E/§6.
type LogLine struct {
	Time                string
	Country             string
	Address             string
	UpstreamCacheStatus string
	UpstreamResponseTime string
	Status              string
	Scheme              string
	Host                string
	Method              string
	URI                 string
	BodyBytes           string
	Referer             string
	UserAgent           string
}

// ParseLogLine splits a TAB-separated access log line into its fields.
// Returns an error if the line doesn't carry exactly logFieldCount fields.
func ParseLogLine(line string) (LogLine, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != logFieldCount {
		return LogLine{}, &MalformedLineError{Line: line, Reason: "expected 13 tab-separated fields"}
	}
	return LogLine{
		Time:                 fields[0],
		Country:              fields[1],
		Address:              fields[2],
		UpstreamCacheStatus:  fields[3],
		UpstreamResponseTime: fields[4],
		Status:               fields[5],
		Scheme:               fields[6],
		Host:                 fields[7],
		Method:               fields[8],
		URI:                  fields[9],
		BodyBytes:            fields[10],
		Referer:              fields[11],
		UserAgent:            fields[12],
	}, nil
}

// Weight returns the line's accumulation weight, scaled by WeightScale:
// edgeWeight when both the upstream cache status and response time are
// literally "-" (static/edge-served), originWeight otherwise.
func (l LogLine) Weight() uint64 {
	if l.UpstreamCacheStatus == "-" && l.UpstreamResponseTime == "-" {
		return edgeWeight
	}
	return originWeight
}

// windowPrefix extracts and normalizes the 16-character window key from a
// log timestamp: the first 16 characters of "YYYY-MM-DDTHH:MM..." become
// "YYYY-MM-DD HH:MM". Returns "" if the timestamp is too short.
func windowPrefix(t string) string {
	if len(t) < 16 {
		return ""
	}
	p := []byte(t[:16])
	if p[10] == 'T' {
		p[10] = ' '
	}
	return string(p)
}

// CountsWindow accumulates per-address and per-(address,URI) weighted
// counts for a single one-minute window, keyed by its 16-character prefix
// (§3). Exclusively owned by the Aggregator while open.
type CountsWindow struct {
	Prefix       string
	AddrCount    map[string]uint64
	AddrURICount map[string]map[string]uint64
	Country      map[string]string
}

func newCountsWindow(prefix string) *CountsWindow {
	return &CountsWindow{
		Prefix:       prefix,
		AddrCount:    make(map[string]uint64),
		AddrURICount: make(map[string]map[string]uint64),
		Country:      make(map[string]string),
	}
}

// Aggregator implements §4.E: it buckets incoming log lines into
// one-minute windows and, on a window boundary, hands the completed
// window to OnWindowClose before resetting its state.
type Aggregator struct {
	current *CountsWindow
	geoip   *GeoIP
	metrics *metrics

	// OnWindowClose is invoked with the just-closed window, in the same
	// goroutine, before the new window's first line is accumulated. The
	// aggregator never reuses a closed window, so the callback may keep w
	// after the call returns; Detector.HandleWindow, the daemon's callback,
	// is synchronous by design (§5).
	OnWindowClose func(w *CountsWindow)
}

// NewAggregator returns an Aggregator. geoip may be nil to disable country
// enrichment.
func NewAggregator(geoip *GeoIP, m *metrics) *Aggregator {
	return &Aggregator{geoip: geoip, metrics: m}
}

// ProcessLine parses and accumulates a single log line. A malformed line
// is logged and skipped; it never aborts the window.
func (a *Aggregator) ProcessLine(raw string) {
	line, err := ParseLogLine(raw)
	if err != nil {
		a.metrics.linesMalformed.Add(1)
		Log.WithError(err).Debug("skipping malformed log line")
		return
	}

	prefix := windowPrefix(line.Time)
	if prefix == "" {
		a.metrics.linesMalformed.Add(1)
		Log.WithField("time", line.Time).Debug("skipping log line with unparseable timestamp")
		return
	}

	if a.current != nil && a.current.Prefix != prefix {
		a.closeWindow()
	}
	if a.current == nil {
		a.current = newCountsWindow(prefix)
	}

	// Folded to upper-case so it matches the config grammar's country
	// entities (config.go's foldToken upper-cases every non-IPv6 token).
	country := line.Country
	if (country == "" || country == "-") && a.geoip != nil {
		if resolved := a.geoip.Country(line.Address); resolved != "" {
			country = resolved
		}
	}

	weight := line.Weight()
	a.current.AddrCount[line.Address] += weight
	key := line.Host + line.URI
	uriCounts := a.current.AddrURICount[line.Address]
	if uriCounts == nil {
		uriCounts = make(map[string]uint64)
		a.current.AddrURICount[line.Address] = uriCounts
	}
	uriCounts[key] += weight
	a.current.Country[line.Address] = strings.ToUpper(country)

	a.metrics.linesProcessed.Add(1)
}

func (a *Aggregator) closeWindow() {
	w := a.current
	a.current = nil
	if a.OnWindowClose != nil {
		a.OnWindowClose(w)
	}
	a.metrics.windowsClosed.Add(1)
}

// Flush closes any currently open window. It is never called on shutdown
// by the daemon's main loop (§5: "no in-flight window is flushed on
// shutdown, by design"); it exists for tests that want to force a close
// without waiting for a differing prefix.
func (a *Aggregator) Flush() {
	if a.current != nil {
		a.closeWindow()
	}
}
