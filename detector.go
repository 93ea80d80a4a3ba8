package autofilter

import (
	"fmt"
	"time"
)

// Detector implements §4.F: at window close it loads and expires the
// persisted bot set, then scans the window in two deterministic passes,
// consulting the threshold resolver and the FCrDNS verifier before
// recording a new offender.
type Detector struct {
	Config   *Config
	Verifier *Verifier
	Store    *BotStore
	Reload   *ReloadController
	Metrics  *metrics

	// DryRun runs both passes and logs detections to ConfigDiag, but
	// suppresses the store write and reload signal (§4.F, CLI -n).
	DryRun bool

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (d *Detector) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// HandleWindow runs detection against a just-closed window and, unless
// DryRun is set, persists the resulting bot set and signals the fronting
// server if warranted. It is the Aggregator.OnWindowClose callback.
func (d *Detector) HandleWindow(w *CountsWindow) {
	now := d.now()

	bots, err := d.Store.LoadLive(now)
	if err != nil {
		Log.WithError(err).Warn("failed to load bot artifact, treating as empty")
		bots = make(BotSet)
	}

	detectedPass1 := make(map[string]struct{})

	// Pass 1: one-URI abuse - addresses that touched exactly one distinct URI.
	for address, uriCounts := range w.AddrURICount {
		if len(uriCounts) != 1 {
			continue
		}
		var accumulated uint64
		for _, v := range uriCounts {
			accumulated = v
		}
		load := accumulated / WeightScale
		country := w.Country[address]
		limit := d.Config.OneURILimit.Resolve(address, country)
		if load <= limit {
			continue
		}
		if _, blocked := bots[address]; blocked {
			continue
		}
		if d.record(bots, address, country, load, "ONE_URI_COUNT", now) {
			detectedPass1[address] = struct{}{}
		}
	}

	// Pass 2: total abuse - every address, skipping Pass 1's offenders.
	for address, accumulated := range w.AddrCount {
		if _, skip := detectedPass1[address]; skip {
			continue
		}
		load := accumulated / WeightScale
		country := w.Country[address]
		limit := d.Config.RequestLimit.Resolve(address, country)
		if load <= limit {
			continue
		}
		if _, blocked := bots[address]; blocked {
			continue
		}
		d.record(bots, address, country, load, "REQUEST_COUNT", now)
	}

	if d.DryRun {
		return
	}

	if err := d.Store.Write(bots); err != nil {
		Log.WithError(err).Error("failed to write bot artifact")
		return
	}

	if d.Reload != nil {
		d.Reload.MaybeReload(bots, now)
	}
}

// record verifies address isn't a whitelisted crawler and, if not, adds it
// to bots with the given reason prefix. Returns true if it was added.
func (d *Detector) record(bots BotSet, address, country string, load uint64, reasonPrefix string, now time.Time) bool {
	result := d.Verifier.Verify(address)
	if result.Verdict == Whitelisted {
		d.Metrics.whitelistHits.Add(1)
		Log.WithField("address", address).WithField("hostname", result.Hostname).Debug("skipping whitelisted crawler")
		return false
	}

	duration := d.Config.BlockDuration.Resolve(address, country)
	rec := BotRecord{
		Address:    address,
		BlockUntil: now.Unix() + int64(duration),
		Country:    country,
		Load:       load,
		Reason:     fmt.Sprintf("%s from %s", reasonPrefix, result.ReasonHostname()),
	}
	bots[address] = rec
	d.Metrics.offendersBlocked.Add(1)

	log := Log
	if d.DryRun {
		log = ConfigDiag
	}
	log.WithField("address", address).
		WithField("load", load).
		WithField("reason", rec.Reason).
		WithField("dry_run", d.DryRun).
		Info("blocking offender")
	return true
}
