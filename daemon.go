package autofilter

import (
	"context"

	"github.com/pkg/errors"
)

// Daemon wires the five pipeline stages together (§2, §5): Tailer feeds
// Aggregator, whose OnWindowClose hands each closed window to Detector,
// which consults Store and Reload before the next window opens.
type Daemon struct {
	Settings DaemonSettings
	Config   *Config

	tailer     *Tailer
	warmUp     *WarmUpFilter
	aggregator *Aggregator
	detector   *Detector
	geoip      *GeoIP
	metrics    *metrics
}

// NewDaemon constructs a Daemon from settings and a threshold config,
// opening the log tailer, GeoIP database (if configured), and FCrDNS
// verifier. dryRun corresponds to the CLI's -n/--dry-run flag (§4.F): the
// detector still runs both passes and logs what it would do, but never
// writes the bot artifact or signals a reload.
func NewDaemon(settings DaemonSettings, cfg *Config, dryRun bool) (*Daemon, error) {
	tailer, err := NewTailer(settings.LogInputPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening log input %q", settings.LogInputPath)
	}

	geoip, err := OpenGeoIP(settings.GeoIPPath)
	if err != nil {
		tailer.Close()
		return nil, errors.Wrapf(err, "opening geoip database %q", settings.GeoIPPath)
	}

	m := newMetrics()
	aggregator := NewAggregator(geoip, m)
	store := NewBotStore(settings.ArtifactPath)
	reload := NewReloadController(settings.PIDPath, settings.ReloadCooldownSeconds, m)
	verifier := NewVerifier(VerifierOptions{ResolverAddr: settings.ResolverAddr})

	detector := &Detector{
		Config:   cfg,
		Verifier: verifier,
		Store:    store,
		Reload:   reload,
		Metrics:  m,
		DryRun:   dryRun,
	}
	aggregator.OnWindowClose = detector.HandleWindow

	return &Daemon{
		Settings:   settings,
		Config:     cfg,
		tailer:     tailer,
		warmUp:     NewWarmUpFilter(settings.WarmUpDiscard),
		aggregator: aggregator,
		detector:   detector,
		geoip:      geoip,
		metrics:    m,
	}, nil
}

// Run drives the pipeline until ctx is canceled. It never returns an error
// on its own; a canceled context is the only clean exit (§5: "the daemon
// has no notion of a fatal pipeline error after startup").
func (d *Daemon) Run(ctx context.Context) {
	Log.WithField("log_input", d.Settings.LogInputPath).Info("autofilter starting")
	for line := range d.tailer.Lines(ctx) {
		if d.warmUp.Skip(line) {
			continue
		}
		d.aggregator.ProcessLine(line)
	}
	Log.Info("autofilter stopped")
}

// Close releases the daemon's open resources. The in-flight window is
// intentionally not flushed (§5, §9). On restart the tailer reads the log
// from its start (see NewTailer), so the unfinished window's lines are read
// again, together with every earlier line unless the warm-up filter is on.
func (d *Daemon) Close() error {
	tailErr := d.tailer.Close()
	geoErr := d.geoip.Close()
	if tailErr != nil {
		return tailErr
	}
	return geoErr
}
