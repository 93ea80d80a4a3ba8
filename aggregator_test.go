package autofilter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleLine(timeField, country, addr, cacheStatus, uri string) string {
	fields := []string{
		timeField, country, addr, cacheStatus, "-", "200", "https", "example.com", "GET", uri, "123", "-", "curl/8.0",
	}
	out := fields[0]
	for _, f := range fields[1:] {
		out += "\t" + f
	}
	return out
}

func TestParseLogLineRejectsWrongFieldCount(t *testing.T) {
	_, err := ParseLogLine("too\tfew\tfields")
	require.Error(t, err)
}

func TestLogLineWeightEdgeVsOrigin(t *testing.T) {
	edge := LogLine{UpstreamCacheStatus: "-", UpstreamResponseTime: "-"}
	require.Equal(t, uint64(edgeWeight), edge.Weight())

	origin := LogLine{UpstreamCacheStatus: "MISS", UpstreamResponseTime: "0.042"}
	require.Equal(t, uint64(originWeight), origin.Weight())
}

func TestWindowPrefixNormalizesTSeparator(t *testing.T) {
	require.Equal(t, "2026-07-30 10:15", windowPrefix("2026-07-30T10:15:42+00:00"))
	require.Equal(t, "2026-07-30 10:15", windowPrefix("2026-07-30 10:15:42"))
	require.Equal(t, "", windowPrefix("short"))
}

func TestAggregatorAccumulatesWithinWindow(t *testing.T) {
	a := NewAggregator(nil, newMetrics())
	var closed *CountsWindow
	a.OnWindowClose = func(w *CountsWindow) { closed = w }

	for i := 0; i < 3; i++ {
		a.ProcessLine(sampleLine("2026-07-30T10:15:00+00:00", "US", "1.2.3.4", "MISS", "/a"))
	}
	require.Nil(t, closed, "window must not close until the prefix changes")

	a.Flush()
	require.NotNil(t, closed)
	require.Equal(t, uint64(3*originWeight), closed.AddrCount["1.2.3.4"])
	require.Equal(t, "US", closed.Country["1.2.3.4"])
}

func TestAggregatorClosesWindowOnPrefixChange(t *testing.T) {
	a := NewAggregator(nil, newMetrics())
	var closedPrefixes []string
	a.OnWindowClose = func(w *CountsWindow) { closedPrefixes = append(closedPrefixes, w.Prefix) }

	a.ProcessLine(sampleLine("2026-07-30T10:15:00+00:00", "US", "1.2.3.4", "-", "/a"))
	a.ProcessLine(sampleLine("2026-07-30T10:16:00+00:00", "US", "1.2.3.4", "-", "/a"))
	require.Equal(t, []string{"2026-07-30 10:15"}, closedPrefixes)

	a.Flush()
	require.Equal(t, []string{"2026-07-30 10:15", "2026-07-30 10:16"}, closedPrefixes)
}

func TestAggregatorTracksDistinctURIsPerAddress(t *testing.T) {
	a := NewAggregator(nil, newMetrics())
	var closed *CountsWindow
	a.OnWindowClose = func(w *CountsWindow) { closed = w }

	a.ProcessLine(sampleLine("2026-07-30T10:15:00+00:00", "US", "1.2.3.4", "-", "/a"))
	a.ProcessLine(sampleLine("2026-07-30T10:15:00+00:00", "US", "1.2.3.4", "-", "/b"))
	a.Flush()

	require.Len(t, closed.AddrURICount["1.2.3.4"], 2)
}

func TestAggregatorFoldsCountryToUpperCase(t *testing.T) {
	a := NewAggregator(nil, newMetrics())
	var closed *CountsWindow
	a.OnWindowClose = func(w *CountsWindow) { closed = w }

	a.ProcessLine(sampleLine("2026-07-30T10:15:00+00:00", "ua", "1.2.3.4", "-", "/a"))
	a.Flush()

	require.Equal(t, "UA", closed.Country["1.2.3.4"], "a lower-case log country must still match an upper-cased config entity")
}

func TestAggregatorMalformedLineSkippedNotFatal(t *testing.T) {
	a := NewAggregator(nil, newMetrics())
	a.ProcessLine("garbage")
	a.ProcessLine(sampleLine("2026-07-30T10:15:00+00:00", "US", "1.2.3.4", "-", "/a"))
	require.NotNil(t, a.current)
	require.Equal(t, uint64(edgeWeight), a.current.AddrCount["1.2.3.4"])
}
