package autofilter

import (
	"os"

	"github.com/BurntSushi/toml"
)

// DaemonSettings is the ambient configuration surface (§2.1, §3): file
// paths, intervals, and the toggles the spec leaves as Open Questions.
// Distinct from Config (the §4.A threshold rules), which has its own
// bespoke grammar because it is part of the specified system rather than
// ambient daemon plumbing.
type DaemonSettings struct {
	// LogInputPath is the access log the tailer follows (§6).
	LogInputPath string `toml:"log-input"`
	// ConfigPath is the threshold config parsed by config.go (§4.A).
	ConfigPath string `toml:"config-path"`
	// ArtifactPath is the bot artifact written by the bot store (§4.G).
	ArtifactPath string `toml:"artifact-path"`
	// PIDPath is the fronting server's PID file (§6).
	PIDPath string `toml:"pid-path"`
	// LogPath is the rotating operational log sink (§6).
	LogPath string `toml:"log-path"`
	// LogLevel is a logrus.Level value (0=Panic .. 6=Trace).
	LogLevel uint32 `toml:"log-level"`
	// ResolverAddr is the recursive resolver used for FCrDNS (§4.C, §6).
	ResolverAddr string `toml:"resolver-addr"`
	// GeoIPPath optionally enables country enrichment (§4.I). Empty
	// disables it.
	GeoIPPath string `toml:"geoip-path"`
	// WarmUpDiscard enables the optional warm-up routine (§4.D, §9) that
	// discards log lines older than two minutes on startup. Disabled by
	// default, matching the source this spec was distilled from.
	WarmUpDiscard bool `toml:"warm-up-discard"`
	// ReloadCooldownSeconds is the minimum interval between reload
	// signals (§4.H). Defaults to 60.
	ReloadCooldownSeconds int `toml:"reload-cooldown-seconds"`
}

// DefaultDaemonSettings returns the paths and intervals specified in §6,
// with the Open Questions resolved per §9/DESIGN.md.
func DefaultDaemonSettings() DaemonSettings {
	return DaemonSettings{
		LogInputPath:          "/var/log/nginx/access.log",
		ConfigPath:            "/opt/autofilter/autofilter.conf",
		ArtifactPath:          "/opt/autofilter/var/bot.conf",
		PIDPath:               "/var/run/nginx.pid",
		LogPath:               "/opt/autofilter/var/autofilter.log",
		LogLevel:              4,
		ResolverAddr:          "127.0.0.1:53",
		GeoIPPath:             "",
		WarmUpDiscard:         false,
		ReloadCooldownSeconds: 60,
	}
}

// LoadDaemonSettings reads the ambient TOML settings file at path, merging
// it on top of DefaultDaemonSettings. A missing file is not an error;
// unset fields keep their defaults.
func LoadDaemonSettings(path string) (DaemonSettings, error) {
	settings := DefaultDaemonSettings()
	if path == "" {
		return settings, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, err
	}
	if _, err := toml.DecodeFile(path, &settings); err != nil {
		return settings, err
	}
	return settings, nil
}
