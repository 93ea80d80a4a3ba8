package autofilter

import (
	"net"
	"strings"

	"github.com/oschwald/maxminddb-golang"
)

// GeoIP resolves a two-letter country code from a client address. It is an
// optional enrichment (§2.2/§4.I): the aggregator only consults it when the
// log line's own country field is empty or "-", since the log's value is
// otherwise authoritative.
type GeoIP struct {
	reader *maxminddb.Reader
}

// OpenGeoIP opens a MaxMind-format database (e.g. GeoLite2-Country.mmdb) at
// path. Returns (nil, nil) when path is empty, so callers can treat a
// disabled GeoIP lookup and an unopened one identically.
func OpenGeoIP(path string) (*GeoIP, error) {
	if path == "" {
		return nil, nil
	}
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoIP{reader: reader}, nil
}

// Country returns the upper-cased ISO country code for address, or "" if
// the address can't be parsed, the database has no match, or the lookup
// fails.
func (g *GeoIP) Country(address string) string {
	if g == nil || g.reader == nil {
		return ""
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return ""
	}
	var record struct {
		Country struct {
			ISOCode string `maxminddb:"iso_code"`
		} `maxminddb:"country"`
	}
	if err := g.reader.Lookup(ip, &record); err != nil {
		Log.WithField("ip", address).WithError(err).Debug("geoip lookup failed")
		return ""
	}
	return strings.ToUpper(record.Country.ISOCode)
}

// Close releases the underlying database handle. Safe to call on a nil
// or unopened GeoIP.
func (g *GeoIP) Close() error {
	if g == nil || g.reader == nil {
		return nil
	}
	return g.reader.Close()
}
