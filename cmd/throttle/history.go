package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"mercator-hq/throttle/pkg/cli"
	"mercator-hq/throttle/pkg/history"

	"github.com/spf13/cobra"
)

var historyFlags struct {
	db        string
	limiter   string
	limit     int
	run       string
	olderThan time.Duration
	format    string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List runs recorded with run --record",
	Long: `List workload runs saved by "throttle run --record".

Without --run, the newest runs are listed. With --run, the admissions of one
run are printed in start order, the same way "throttle run" prints them.

Examples:
  # Newest runs in runs.db
  throttle history --db runs.db

  # Runs through the "api" group only
  throttle history --db runs.db --limiter api

  # Admissions of one run, as JSON
  throttle history --db runs.db --run 6f1c... --format json

  # Drop runs older than a week
  throttle history --db runs.db --prune 168h`,
	Args: cobra.NoArgs,
	RunE: showHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyFlags.db, "db", "", "history database (required)")
	historyCmd.Flags().StringVarP(&historyFlags.limiter, "limiter", "l", "", "only runs through this limiter")
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", history.DefaultListLimit, "maximum runs to list")
	historyCmd.Flags().StringVar(&historyFlags.run, "run", "", "show the admissions of one run")
	historyCmd.Flags().DurationVar(&historyFlags.olderThan, "prune", 0, "delete runs older than this before listing")
	historyCmd.Flags().StringVarP(&historyFlags.format, "format", "f", "text", "output format: text, json, csv")
	_ = historyCmd.MarkFlagRequired("db")
}

// recordRun saves report to the history database at path.
func recordRun(ctx context.Context, path string, report runReport) error {
	backend, err := history.NewSQLiteBackend(path)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer backend.Close()

	run := &history.Run{
		ID:          report.ID,
		Limiter:     report.Limiter,
		Config:      cfgFile,
		Callers:     report.Callers,
		Calls:       report.Calls,
		Completed:   report.Completed,
		Interrupted: report.Interrupted,
		StartedAt:   report.Started,
		Elapsed:     time.Duration(report.Elapsed),
		Admissions:  make([]history.Admission, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		run.Admissions = append(run.Admissions, history.Admission{
			Call:      res.Call,
			Caller:    res.Caller,
			RequestID: res.RequestID,
			Offset:    res.Offset,
			Wait:      res.Wait,
		})
	}

	return backend.Save(ctx, run)
}

// runList is the table of recorded runs.
type runList struct {
	Runs []runSummary `json:"runs"`
}

type runSummary struct {
	ID          string    `json:"id"`
	Limiter     string    `json:"limiter"`
	Config      string    `json:"config"`
	Callers     int       `json:"callers"`
	Calls       int       `json:"calls"`
	Completed   int       `json:"completed"`
	Interrupted bool      `json:"interrupted,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	Elapsed     Duration  `json:"elapsed"`
}

func (l runList) Header() []string {
	return []string{"ID", "LIMITER", "STARTED", "CALLERS", "COMPLETED", "ELAPSED"}
}

func (l runList) Rows() [][]string {
	rows := make([][]string, 0, len(l.Runs))
	for _, r := range l.Runs {
		completed := fmt.Sprintf("%d/%d", r.Completed, r.Calls)
		if r.Interrupted {
			completed += " (interrupted)"
		}
		rows = append(rows, []string{
			r.ID,
			r.Limiter,
			r.StartedAt.Format(time.RFC3339),
			strconv.Itoa(r.Callers),
			completed,
			time.Duration(r.Elapsed).Round(time.Millisecond).String(),
		})
	}
	return rows
}

func summarize(run *history.Run) runSummary {
	return runSummary{
		ID:          run.ID,
		Limiter:     run.Limiter,
		Config:      run.Config,
		Callers:     run.Callers,
		Calls:       run.Calls,
		Completed:   run.Completed,
		Interrupted: run.Interrupted,
		StartedAt:   run.StartedAt,
		Elapsed:     Duration(run.Elapsed),
	}
}

// reportFromRun rebuilds the run output from a recorded run.
func reportFromRun(run *history.Run) runReport {
	report := runReport{
		ID:          run.ID,
		Limiter:     run.Limiter,
		Callers:     run.Callers,
		Calls:       run.Calls,
		Completed:   run.Completed,
		Interrupted: run.Interrupted,
		Started:     run.StartedAt,
		Elapsed:     Duration(run.Elapsed),
		Results:     make([]callResult, 0, len(run.Admissions)),
	}
	for _, a := range run.Admissions {
		report.Results = append(report.Results, callResult{
			Call:      a.Call,
			Caller:    a.Caller,
			RequestID: a.RequestID,
			Offset:    a.Offset,
			Wait:      a.Wait,
			OffsetMs:  millis(a.Offset),
			WaitMs:    millis(a.Wait),
		})
	}
	return report
}

func showHistory(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(historyFlags.format)
	if err != nil {
		return err
	}
	if historyFlags.db == "" {
		return cli.NewUsageError("db", "must not be empty")
	}
	if historyFlags.olderThan < 0 {
		return cli.NewUsageError("prune", "must not be negative")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	backend, err := history.NewSQLiteBackend(historyFlags.db)
	if err != nil {
		return cli.NewCommandError("history", err)
	}
	defer backend.Close()

	out := cmd.OutOrStdout()
	formatter := cli.NewFormatter(format)

	if historyFlags.olderThan > 0 {
		deleted, err := backend.Cleanup(ctx, time.Now().Add(-historyFlags.olderThan))
		if err != nil {
			return cli.NewCommandError("history", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Pruned %d run(s)\n", deleted)
	}

	if historyFlags.run != "" {
		run, err := backend.Load(ctx, historyFlags.run)
		if err != nil {
			return cli.NewCommandError("history", err)
		}
		report := reportFromRun(run)
		if err := formatter.FormatTo(out, report); err != nil {
			return cli.NewCommandError("history", err)
		}
		if format == cli.FormatText {
			printSummary(cmd, report)
		}
		return nil
	}

	runs, err := backend.List(ctx, history.Filter{
		Limiter: historyFlags.limiter,
		Limit:   historyFlags.limit,
	})
	if err != nil {
		return cli.NewCommandError("history", err)
	}

	list := runList{Runs: make([]runSummary, 0, len(runs))}
	for _, run := range runs {
		list.Runs = append(list.Runs, summarize(run))
	}
	if err := formatter.FormatTo(out, list); err != nil {
		return cli.NewCommandError("history", err)
	}
	return nil
}
