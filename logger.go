package autofilter

import (
	"io"

	syslog "github.com/RackSec/srslog"
	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Log is the package-level operational logger. It defaults to a plain
// logrus logger writing to stderr so library code and tests run
// unconfigured; ConfigureLogging points it at the rotating file sink
// described in the daemon settings.
var Log = logrus.New()

// ConfigDiag receives configuration diagnostics: fallbacks to built-in
// defaults, rejected directives, and other startup-time warnings that
// should stay visible independently of the rotating operational log.
var ConfigDiag = logrus.New()

// ConfigureLogging points Log at the rotating file sink and, when syslog
// is reachable, points ConfigDiag at it. A syslog dial failure is logged
// and ConfigDiag keeps its default stderr output; it never blocks startup.
func ConfigureLogging(settings DaemonSettings) {
	Log.SetLevel(logrus.Level(settings.LogLevel))
	if settings.LogPath != "" {
		Log.SetOutput(&lumberjack.Logger{
			Filename:   settings.LogPath,
			MaxSize:    1, // MiB
			MaxBackups: 9,
			Compress:   false,
		})
	}

	var diagOut io.Writer
	w, err := syslog.Dial("", "", syslog.LOG_WARNING|syslog.LOG_DAEMON, "autofilter")
	if err != nil {
		Log.WithError(err).Warn("failed to dial syslog for configuration diagnostics, falling back to stderr")
	} else {
		diagOut = w
	}
	if diagOut != nil {
		ConfigDiag.SetOutput(diagOut)
		ConfigDiag.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
}
