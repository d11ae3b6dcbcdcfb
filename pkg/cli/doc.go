/*
Package cli provides command-line interface utilities for throttle.

The cli package includes output formatters, a progress reporter, exit code
mapping and signal handling used by the throttle command.

Output Formatting:

Results can be printed as text, JSON or CSV. Results implementing Table are
aligned in columns for text and written row by row for CSV:

	format, err := cli.ParseOutputFormat(flags.format)
	if err != nil {
		return err
	}
	if err := cli.NewFormatter(format).FormatTo(os.Stdout, result); err != nil {
		return err
	}

Progress Reporting:

For simulated workloads, report each completed call:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(calls))
	// from any goroutine
	progress.Increment()
	progress.Finish()

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

Exit Codes:

ExitCode maps command errors to process exit codes: usage errors exit 2 and
configuration validation errors exit 3.
*/
package cli
