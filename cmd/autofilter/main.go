package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	autofilter "github.com/makhomed/autofilter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// buildVersion is set at the package level rather than via -ldflags
// elsewhere in this tree; it's substituted at release build time.
var buildVersion = "dev"

type options struct {
	dryRun     bool
	testConfig bool
	version    bool
	configPath string
	settings   string
}

func main() {
	var opt options
	cmd := &cobra.Command{
		Use:   "autofilter",
		Short: "Layer-7 DDoS mitigation daemon",
		Long: `autofilter tails an nginx-style access log, aggregates per-address
request counts into one-minute windows, and blocks addresses that cross
configured thresholds after forward-confirmed reverse DNS verification.

Blocked addresses are written to a bot artifact consumed by the fronting
server, which is signaled to reload once the address set changes.
`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opt)
		},
	}

	cmd.Flags().BoolVarP(&opt.dryRun, "dry-run", "n", false, "detect and log offenders without writing the bot artifact or signaling a reload")
	cmd.Flags().BoolVarP(&opt.testConfig, "test-config", "t", false, "parse the threshold config and settings file, report errors, and exit")
	cmd.Flags().BoolVarP(&opt.version, "version", "v", false, "print the version and exit")
	cmd.Flags().StringVarP(&opt.configPath, "config", "c", "", "path to the threshold config (default "+autofilterDefaultConfigPath+")")
	cmd.Flags().StringVarP(&opt.settings, "settings", "s", "", "path to the ambient TOML settings file")
	cmd.MarkFlagsMutuallyExclusive("dry-run", "test-config", "version")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

const autofilterDefaultConfigPath = "/opt/autofilter/autofilter.conf"

func run(opt options) error {
	if opt.version {
		fmt.Println("autofilter", buildVersion)
		return nil
	}

	settings, err := autofilter.LoadDaemonSettings(opt.settings)
	if err != nil {
		return errors.Wrapf(err, "loading settings %q", opt.settings)
	}
	if opt.configPath != "" {
		settings.ConfigPath = opt.configPath
	}

	if opt.testConfig {
		return testConfig(settings.ConfigPath)
	}

	autofilter.ConfigureLogging(settings)
	autofilter.Log.SetLevel(logrus.Level(settings.LogLevel))

	cfg := autofilter.LoadConfig(settings.ConfigPath)

	daemon, err := autofilter.NewDaemon(settings, cfg, opt.dryRun)
	if err != nil {
		return errors.Wrap(err, "starting daemon")
	}
	defer daemon.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		autofilter.Log.Info("received shutdown signal")
		cancel()
	}()

	daemon.Run(ctx)
	return nil
}

// testConfig parses the threshold config at path and reports the outcome,
// per §6's "-t/--test-config ... exit 1 on failure". It runs ParseConfig
// directly rather than going through LoadConfig, which swallows parse
// errors and falls back to built-in defaults — exactly the behavior -t
// exists to catch. A missing file is not a failure: LoadConfig treats it
// the same way at daemon startup, falling back to built-in defaults.
func testConfig(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("configuration OK (no config file, using built-in defaults)")
			return nil
		}
		return errors.Wrapf(err, "opening threshold config %q", path)
	}
	defer f.Close()

	if _, err := autofilter.ParseConfig(f); err != nil {
		return errors.Wrapf(err, "parsing threshold config %q", path)
	}

	fmt.Println("configuration OK")
	return nil
}
