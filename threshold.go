package autofilter

import "net"

// Resolve returns the applicable value for (address, country) from the
// table using the four-level precedence from §4.B:
//
//  1. exact address match
//  2. first CIDR (in declaration order) whose network contains address
//  3. exact country match
//  4. the "ALL" entry, guaranteed present
//
// Callers must not rely on longest-prefix semantics for step 2: the first
// declared CIDR that contains the address wins, per §4.B/§9.
func (t ThresholdTable) Resolve(address, country string) uint64 {
	if v, ok := t.values[address]; ok {
		return v
	}
	if ip := net.ParseIP(address); ip != nil {
		for _, entity := range t.cidrOrder {
			if t.cidrNets[entity].Contains(ip) {
				return t.values[entity]
			}
		}
	}
	if country != "" {
		if v, ok := t.values[country]; ok {
			return v
		}
	}
	return t.values[AllEntity]
}

// Thresholds bundles the three resolved values for a single (address,
// country) pair, as consumed by the detector.
type Thresholds struct {
	RequestLimit  uint64
	OneURILimit   uint64
	BlockDuration uint64
}

// Resolve returns the full set of thresholds applicable to (address, country).
func (c *Config) Resolve(address, country string) Thresholds {
	return Thresholds{
		RequestLimit:  c.RequestLimit.Resolve(address, country),
		OneURILimit:   c.OneURILimit.Resolve(address, country),
		BlockDuration: c.BlockDuration.Resolve(address, country),
	}
}
