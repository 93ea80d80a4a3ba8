package autofilter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BotRecord is a single blocked address (§3). BlockUntil is an absolute
// wall-clock epoch second; the record is live while BlockUntil > now.
type BotRecord struct {
	Address    string
	BlockUntil int64
	Country    string
	Load       uint64
	Reason     string
}

// Live reports whether the record is still in effect at now.
func (r BotRecord) Live(now time.Time) bool {
	return r.BlockUntil > now.Unix()
}

// BotSet is the authoritative in-memory view of currently-blocked
// addresses (§3), keyed by address.
type BotSet map[string]BotRecord

// Expire returns a copy of s with every record whose BlockUntil has
// already passed removed (§4.G, property 5).
func (s BotSet) Expire(now time.Time) BotSet {
	out := make(BotSet, len(s))
	for addr, rec := range s {
		if rec.Live(now) {
			out[addr] = rec
		}
	}
	return out
}

// Addresses returns the set's keys, used by the reload controller to
// compare against the last published set (§4.H, §9: "derive a comparison
// set by key projection, don't maintain two structures").
func (s BotSet) Addresses() map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for addr := range s {
		out[addr] = struct{}{}
	}
	return out
}

// botArtifactTimeFormat is ISO-8601 without fractional seconds, per §4.G.
const botArtifactTimeFormat = time.RFC3339

// parseBotLine parses one non-empty artifact line of the shape
// "<address> 1; # <country> <load> <block_until_iso> <reason...>" (§6).
func parseBotLine(line string) (BotRecord, error) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return BotRecord{}, fmt.Errorf("expected at least 6 fields, got %d", len(fields))
	}
	address := fields[0]
	country := fields[3]
	load, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return BotRecord{}, fmt.Errorf("invalid load %q: %w", fields[4], err)
	}
	blockUntil, err := time.Parse(botArtifactTimeFormat, fields[5])
	if err != nil {
		return BotRecord{}, fmt.Errorf("invalid block-until %q: %w", fields[5], err)
	}
	reason := strings.Join(fields[6:], " ")
	return BotRecord{
		Address:    address,
		Country:    country,
		Load:       load,
		BlockUntil: blockUntil.Unix(),
		Reason:     reason,
	}, nil
}

// ParseBotArtifact reads a bot artifact from r (§4.G/§6). Lines that fail
// to parse are logged and skipped rather than aborting the read, since a
// partially-corrupt artifact should still yield whatever records are
// salvageable.
func ParseBotArtifact(r io.Reader) (BotSet, error) {
	set := make(BotSet)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := parseBotLine(line)
		if err != nil {
			Log.WithError(err).WithField("line", line).Warn("skipping unparseable bot artifact line")
			continue
		}
		set[rec.Address] = rec
	}
	return set, scanner.Err()
}

// Render serializes the set to the artifact's on-disk shape, sorted by
// load descending (ties broken by address for determinism; the spec
// leaves tie-breaking implementation-defined).
func (s BotSet) Render() string {
	records := make([]BotRecord, 0, len(s))
	for _, r := range s {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Load != records[j].Load {
			return records[i].Load > records[j].Load
		}
		return records[i].Address < records[j].Address
	})

	var sb strings.Builder
	for _, r := range records {
		iso := time.Unix(r.BlockUntil, 0).UTC().Format(botArtifactTimeFormat)
		// An empty country would leave no field between "#" and the load,
		// and parseBotLine would then reject the line.
		country := r.Country
		if country == "" {
			country = "-"
		}
		fmt.Fprintf(&sb, "%45s 1; #    %s    %7d    %s    %s\n", r.Address, country, r.Load, iso, r.Reason)
	}
	return sb.String()
}

// LoadBotArtifact reads the artifact at path. A missing file is treated
// as an empty set (§7), not an error.
func LoadBotArtifact(path string) (BotSet, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(BotSet), nil
		}
		return nil, err
	}
	defer f.Close()
	return ParseBotArtifact(f)
}

// WriteBotArtifact atomically replaces the artifact at path with set's
// contents: it writes to "<path>.tmp.<random-hex>.tmp" in the artifact's
// own directory (so the rename is same-filesystem) and renames over path,
// which is the commit point. Readers never observe a partial file (§4.G,
// properties 6).
func WriteBotArtifact(path string, set BotSet) error {
	dir := filepath.Dir(path)
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")
	tmpPath := filepath.Join(dir, filepath.Base(path)+".tmp."+suffix+".tmp")

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	_, writeErr := f.WriteString(set.Render())
	closeErr := f.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return writeErr
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return closeErr
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// BotStore owns the persistent bot artifact (§4.G). It is read and
// rewritten once per window close.
type BotStore struct {
	Path string
}

// NewBotStore returns a BotStore for the artifact at path.
func NewBotStore(path string) *BotStore {
	return &BotStore{Path: path}
}

// LoadLive reads the artifact and returns only the records still live at
// now, per §4.G/§7 ("Entries with block_until_epoch < now are dropped").
func (s *BotStore) LoadLive(now time.Time) (BotSet, error) {
	set, err := LoadBotArtifact(s.Path)
	if err != nil {
		return nil, err
	}
	return set.Expire(now), nil
}

// Write persists set atomically.
func (s *BotStore) Write(set BotSet) error {
	return WriteBotArtifact(s.Path, set)
}
