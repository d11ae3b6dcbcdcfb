package main

import (
	"errors"
	"fmt"

	"mercator-hq/throttle/pkg/cli"
	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a throttle configuration file.

The file is parsed, defaulted and checked field by field, then every limiter
and group is built once to catch anything the field checks cannot see.

Exit codes:
  0  configuration valid
  3  configuration invalid
  1  any other failure (file missing, unreadable)

Examples:
  # Validate the default config file
  throttle validate

  # Validate a specific file and list what it defines
  throttle validate --config limits.yaml --verbose`,
	Args: cobra.NoArgs,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		var validationErr config.ValidationError
		if errors.As(err, &validationErr) {
			fmt.Fprintf(out, "✗ %s: %d problem(s)\n", cfgFile, len(validationErr.Errors))
			for _, fe := range validationErr.Errors {
				fmt.Fprintf(out, "  - %s\n", fe.Error())
			}
		}
		return cli.NewCommandError("validate", err)
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return cli.NewCommandError("validate", err)
	}

	manager, err := limits.NewManager(cfg.Limits, limits.WithLogger(logger.Slog()))
	if err != nil {
		fmt.Fprintf(out, "✗ %s: %v\n", cfgFile, err)
		return cli.NewCommandError("validate", err)
	}
	defer manager.Close()

	fmt.Fprintf(out, "✓ Configuration valid: %d limiters, %d groups\n",
		len(cfg.Limits.Limiters), len(cfg.Limits.Groups))

	if verbose {
		for _, info := range manager.Snapshot().Limiters {
			fmt.Fprintf(out, "  %-20s %-13s %s\n", info.Name, info.Kind, info.Description)
		}
		if cfg.Limits.ResetSchedule != "" {
			fmt.Fprintf(out, "  reset schedule: %s\n", cfg.Limits.ResetSchedule)
		}
	}

	return nil
}
