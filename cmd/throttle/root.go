package main

import (
	"fmt"
	"io"
	"os"

	"mercator-hq/throttle/pkg/cli"
	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/telemetry/logging"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "throttle",
	Short: "Throttle - in-process rate limiting",
	Long: `Throttle gates how often work may start across many goroutines in one process.

Limiters are defined in a YAML file:
  - fixed_window: at most N acquisitions start per window
  - token_bucket: a long-run rate with a bounded burst
  - groups: several limiters acquired in order as one gate

The run command drives a simulated workload through a limiter and prints when
each call was admitted. Runs saved with --record can be listed and compared
with the history command.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "throttle.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the --config file with environment overrides and makes it
// the process-wide configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, err
	}
	config.SetConfig(cfg)
	return cfg, nil
}

// newLogger builds the logger for cfg. --verbose forces debug level.
func newLogger(cfg *config.Config, w io.Writer) (*logging.Logger, error) {
	logCfg := cfg.Telemetry.Logging
	if verbose {
		logCfg.Level = "debug"
	}
	return logging.FromConfig(logCfg, w)
}
