package autofilter

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
)

// AllEntity is the default-fallback entity every ThresholdTable guarantees
// to contain after loading.
const AllEntity = "ALL"

// Unlimited is the sentinel value the "none" config literal maps to.
const Unlimited uint64 = math.MaxUint64

// defaultRequestLimit, defaultOneURILimit and defaultBlockSeconds are the
// built-in "ALL" values used whenever no config file is present, parsing
// fails, or an entity is missing an entry after loading.
const (
	defaultRequestLimit  uint64 = 128
	defaultOneURILimit   uint64 = 32
	defaultBlockSeconds  uint64 = 86400
)

// ThresholdTable maps an Entity (exact address, CIDR, two-letter country
// code, or "ALL") to a value. CIDR entities are additionally kept in
// declaration order in cidrOrder so §4.B's "first matching CIDR wins" rule
// is both deterministic and faithful to the spec's "implementation-defined
// order" contract.
type ThresholdTable struct {
	values    map[string]uint64
	cidrOrder []string
	cidrNets  map[string]*net.IPNet
}

func newThresholdTable() ThresholdTable {
	return ThresholdTable{
		values:   make(map[string]uint64),
		cidrNets: make(map[string]*net.IPNet),
	}
}

// set records a value for entity, parsing and caching its network if the
// entity is a CIDR. Returns an error if entity is a CIDR that fails to
// parse, or if entity was already set (duplicate entity).
func (t *ThresholdTable) set(entity string, value uint64) error {
	if _, dup := t.values[entity]; dup {
		return fmt.Errorf("duplicate entity %q", entity)
	}
	if strings.Contains(entity, "/") {
		_, network, err := net.ParseCIDR(entity)
		if err != nil {
			return fmt.Errorf("invalid CIDR entity %q: %w", entity, err)
		}
		t.cidrNets[entity] = network
		t.cidrOrder = append(t.cidrOrder, entity)
	}
	t.values[entity] = value
	return nil
}

// ensureAll synthesizes an "ALL" entry from def if one isn't already present.
func (t *ThresholdTable) ensureAll(def uint64) {
	if _, ok := t.values[AllEntity]; !ok {
		t.values[AllEntity] = def
	}
}

// Config holds the three threshold tables loaded from the autofilter
// threshold config (§4.A): request-count limits, one-URI limits, and
// block durations (in seconds), all resolved by precedence in threshold.go.
type Config struct {
	RequestLimit  ThresholdTable
	OneURILimit   ThresholdTable
	BlockDuration ThresholdTable
}

// DefaultConfig returns the built-in defaults: ALL -> 128 requests / 32
// one-URI / 86400s block.
func DefaultConfig() *Config {
	c := &Config{
		RequestLimit:  newThresholdTable(),
		OneURILimit:   newThresholdTable(),
		BlockDuration: newThresholdTable(),
	}
	c.RequestLimit.values[AllEntity] = defaultRequestLimit
	c.OneURILimit.values[AllEntity] = defaultOneURILimit
	c.BlockDuration.values[AllEntity] = defaultBlockSeconds
	return c
}

// foldToken implements the config grammar's case-folding rule: every token
// is upper-cased except one containing ':' (an IPv6 entity), which is left
// untouched.
func foldToken(tok string) string {
	if strings.Contains(tok, ":") {
		return tok
	}
	return strings.ToUpper(tok)
}

// parseCount parses a request/one-URI count: a positive integer, or the
// literal "none" (already upper-cased to "NONE" by foldToken), mapped to
// Unlimited.
func parseCount(tok string) (uint64, error) {
	if tok == "NONE" {
		return Unlimited, nil
	}
	v, err := strconv.ParseUint(tok, 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid count %q", tok)
	}
	return v, nil
}

// parseDuration parses a block duration: <positive-int>{H|D} (already
// upper-cased by foldToken), converted to seconds.
func parseDuration(tok string) (uint64, error) {
	if len(tok) < 2 {
		return 0, fmt.Errorf("invalid duration %q", tok)
	}
	unit := tok[len(tok)-1]
	digits := tok[:len(tok)-1]
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid duration %q", tok)
	}
	switch unit {
	case 'H':
		return n * 3600, nil
	case 'D':
		return n * 86400, nil
	default:
		return 0, fmt.Errorf("invalid duration unit in %q", tok)
	}
}

// ParseConfig parses the threshold config grammar described in §4.A from r.
// It returns an error on the first malformed line; callers are expected to
// fall back to DefaultConfig() and log the reason, per §7.
func ParseConfig(r io.Reader) (*Config, error) {
	c := &Config{
		RequestLimit:  newThresholdTable(),
		OneURILimit:   newThresholdTable(),
		BlockDuration: newThresholdTable(),
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}
		raw = strings.ReplaceAll(raw, "\t", " ")
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			continue
		}
		for i, f := range fields {
			fields[i] = foldToken(f)
		}

		switch fields[0] {
		case "LIMIT":
			if len(fields) != 4 {
				return nil, &ConfigParseError{Line: lineNo, Err: fmt.Errorf("limit directive expects 3 arguments, got %d", len(fields)-1)}
			}
			entity, reqTok, oneTok := fields[1], fields[2], fields[3]
			reqCount, err := parseCount(reqTok)
			if err != nil {
				return nil, &ConfigParseError{Line: lineNo, Err: err}
			}
			oneCount, err := parseCount(oneTok)
			if err != nil {
				return nil, &ConfigParseError{Line: lineNo, Err: err}
			}
			if oneCount > reqCount {
				return nil, &ConfigParseError{Line: lineNo, Err: fmt.Errorf("one-uri-count %d exceeds request-count %d for %q", oneCount, reqCount, entity)}
			}
			if err := c.RequestLimit.set(entity, reqCount); err != nil {
				return nil, &ConfigParseError{Line: lineNo, Err: err}
			}
			if err := c.OneURILimit.set(entity, oneCount); err != nil {
				return nil, &ConfigParseError{Line: lineNo, Err: err}
			}
		case "BLOCK":
			if len(fields) != 3 {
				return nil, &ConfigParseError{Line: lineNo, Err: fmt.Errorf("block directive expects 2 arguments, got %d", len(fields)-1)}
			}
			entity, durTok := fields[1], fields[2]
			seconds, err := parseDuration(durTok)
			if err != nil {
				return nil, &ConfigParseError{Line: lineNo, Err: err}
			}
			if err := c.BlockDuration.set(entity, seconds); err != nil {
				return nil, &ConfigParseError{Line: lineNo, Err: err}
			}
		default:
			return nil, &ConfigParseError{Line: lineNo, Err: fmt.Errorf("unknown directive %q", fields[0])}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	c.RequestLimit.ensureAll(defaultRequestLimit)
	c.OneURILimit.ensureAll(defaultOneURILimit)
	c.BlockDuration.ensureAll(defaultBlockSeconds)
	return c, nil
}

// LoadConfig reads the threshold config at path. A missing file is not an
// error and yields DefaultConfig(). A parse failure logs the reason to
// ConfigDiag and also falls back to DefaultConfig(), per §4.A/§7.
func LoadConfig(path string) *Config {
	if path == "" {
		return DefaultConfig()
	}
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			ConfigDiag.WithError(err).WithField("path", path).Warn("failed to open threshold config, using built-in defaults")
		}
		return DefaultConfig()
	}
	defer f.Close()

	cfg, err := ParseConfig(f)
	if err != nil {
		ConfigDiag.WithError(err).WithField("path", path).Warn("failed to parse threshold config, using built-in defaults")
		return DefaultConfig()
	}
	return cfg
}
