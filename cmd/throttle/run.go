package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/throttle/pkg/cli"
	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/limits"
	"mercator-hq/throttle/pkg/telemetry/logging"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var runFlags struct {
	limiter     string
	callers     int
	calls       int
	work        time.Duration
	arrivalRate float64
	format      string
	progress    bool
	linger      time.Duration
	record      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive a simulated workload through a limiter",
	Long: `Run a simulated workload of concurrent callers through a named limiter or group.

Each caller acquires the limiter, holds the permit for --work and releases it.
When every call has finished, the start offset of each call relative to the
beginning of the run is printed, so the admission pattern of the limiter can
be read directly from the output.

While the workload runs, the configured telemetry is active: the metrics
endpoint serves /metrics, /healthz, /readyz and /version, spans are exported
when tracing is enabled, issued counters are reset on limits.reset_schedule
and limiter definitions are reloaded when limits.watch is set.

Examples:
  # 20 calls from 5 callers through the "api" group
  throttle run --limiter api --callers 5 --calls 20

  # Hold each permit for 50ms
  throttle run --limiter app --work 50ms

  # Offer 10 calls per second instead of all at once
  throttle run --limiter app --calls 100 --arrival-rate 10

  # Keep the metrics endpoint up for a minute after the run
  throttle run --limiter app --linger 1m

  # Record the run for later comparison with "throttle history"
  throttle run --limiter api --calls 50 --record runs.db`,
	Args: cobra.NoArgs,
	RunE: runThrottle,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.limiter, "limiter", "l", "", "limiter or group to drive (required)")
	runCmd.Flags().IntVarP(&runFlags.callers, "callers", "n", 10, "number of concurrent callers")
	runCmd.Flags().IntVar(&runFlags.calls, "calls", 0, "total calls (default: one per caller)")
	runCmd.Flags().DurationVar(&runFlags.work, "work", 0, "time each call holds its permit")
	runCmd.Flags().Float64Var(&runFlags.arrivalRate, "arrival-rate", 0, "calls offered per second (0 offers all at once)")
	runCmd.Flags().StringVarP(&runFlags.format, "format", "f", "text", "output format: text, json, csv")
	runCmd.Flags().BoolVar(&runFlags.progress, "progress", false, "show a progress bar on stderr")
	runCmd.Flags().DurationVar(&runFlags.linger, "linger", 0, "keep telemetry endpoints up after the run")
	runCmd.Flags().StringVar(&runFlags.record, "record", "", "save the run to this history database")
	_ = runCmd.MarkFlagRequired("limiter")
}

// workload describes one simulated run.
type workload struct {
	limiter     string
	callers     int
	calls       int
	work        time.Duration
	arrivalRate float64
}

func (w workload) validate() error {
	switch {
	case w.limiter == "":
		return cli.NewUsageError("limiter", "must not be empty")
	case w.callers < 1:
		return cli.NewUsageError("callers", "must be at least 1")
	case w.calls < 1:
		return cli.NewUsageError("calls", "must be at least 1")
	case w.work < 0:
		return cli.NewUsageError("work", "must not be negative")
	case w.arrivalRate < 0:
		return cli.NewUsageError("arrival-rate", "must not be negative")
	}
	return nil
}

// callResult records when one call was admitted.
type callResult struct {
	Call      int    `json:"call"`
	Caller    string `json:"caller"`
	RequestID string `json:"request_id"`

	// Offset is the admission time relative to the start of the run.
	Offset time.Duration `json:"-"`
	// Wait is the time spent in Acquire.
	Wait time.Duration `json:"-"`

	OffsetMs float64 `json:"offset_ms"`
	WaitMs   float64 `json:"wait_ms"`
	Failed   bool    `json:"failed,omitempty"`
}

// runReport is the result of a run.
type runReport struct {
	ID          string       `json:"id,omitempty"`
	Limiter     string       `json:"limiter"`
	Callers     int          `json:"callers"`
	Calls       int          `json:"calls"`
	Completed   int          `json:"completed"`
	Interrupted bool         `json:"interrupted,omitempty"`
	Started     time.Time    `json:"started"`
	Elapsed     Duration     `json:"elapsed"`
	Results     []callResult `json:"results"`
}

// Duration marshals as a Go duration string.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (r runReport) Header() []string {
	return []string{"CALL", "CALLER", "REQUEST_ID", "WAIT_MS", "START_MS"}
}

func (r runReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Results))
	for _, res := range r.Results {
		rows = append(rows, []string{
			strconv.Itoa(res.Call),
			res.Caller,
			res.RequestID,
			strconv.FormatFloat(res.WaitMs, 'f', 1, 64),
			strconv.FormatFloat(res.OffsetMs, 'f', 1, 64),
		})
	}
	return rows
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// runWorkload dispatches w.calls calls to w.callers goroutines, each calling
// through the named limiter. Dispatch is paced by w.arrivalRate. Cancelling
// ctx stops dispatch; calls already admitted finish.
func runWorkload(ctx context.Context, manager *limits.Manager, w workload, progress cli.ProgressReporter, logger *logging.Logger) (runReport, error) {
	if err := w.validate(); err != nil {
		return runReport{}, err
	}
	if _, err := manager.Get(w.limiter); err != nil {
		return runReport{}, err
	}

	pacer := rate.NewLimiter(rate.Inf, 0)
	if w.arrivalRate > 0 {
		pacer = rate.NewLimiter(rate.Limit(w.arrivalRate), 1)
	}

	results := make([]callResult, w.calls)
	var completed atomic.Int64
	jobs := make(chan int)
	begin := time.Now()

	var wg sync.WaitGroup
	for c := 0; c < w.callers; c++ {
		caller := fmt.Sprintf("caller-%d", c+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				requestID := uuid.NewString()
				callCtx := logging.WithRequestID(ctx, requestID)
				callCtx = logging.WithCaller(callCtx, caller)
				callCtx = logging.WithLimiter(callCtx, w.limiter)

				queued := time.Now()
				err := manager.Do(callCtx, w.limiter, func(ctx context.Context) error {
					started := time.Now()
					results[i] = callResult{
						Call:      i + 1,
						Caller:    caller,
						RequestID: requestID,
						Offset:    started.Sub(begin),
						Wait:      started.Sub(queued),
					}
					logger.DebugContext(ctx, "call admitted", "offset", started.Sub(begin))
					return simulateWork(ctx, w.work)
				})
				if err != nil {
					results[i].Failed = true
					logger.WarnContext(callCtx, "call failed", "error", err)
					continue
				}

				completed.Add(1)
				if progress != nil {
					progress.Increment()
				}
			}
		}()
	}

	interrupted := false
dispatch:
	for i := 0; i < w.calls; i++ {
		if err := pacer.Wait(ctx); err != nil {
			interrupted = true
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			interrupted = true
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	report := runReport{
		Limiter:     w.limiter,
		Callers:     w.callers,
		Calls:       w.calls,
		Completed:   int(completed.Load()),
		Interrupted: interrupted,
		Started:     begin,
		Elapsed:     Duration(time.Since(begin)),
		Results:     make([]callResult, 0, w.calls),
	}
	for _, res := range results {
		if res.RequestID == "" {
			continue
		}
		res.OffsetMs = millis(res.Offset)
		res.WaitMs = millis(res.Wait)
		report.Results = append(report.Results, res)
	}
	slices.SortStableFunc(report.Results, func(a, b callResult) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	return report, nil
}

// simulateWork holds the permit for d, or until ctx is cancelled.
func simulateWork(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// applyReload swaps in the limits section of a reloaded configuration. The
// reload is applied in full or not at all.
func applyReload(manager *limits.Manager, scheduler *limits.ResetScheduler, next *config.Config, logger *logging.Logger) error {
	if err := limits.ValidateSchedule(next.Limits.ResetSchedule); err != nil {
		return err
	}
	if err := manager.Reload(next.Limits); err != nil {
		return err
	}
	if err := scheduler.SetSchedule(next.Limits.ResetSchedule); err != nil {
		return err
	}
	logger.Info("limits applied", "reset_schedule", next.Limits.ResetSchedule)
	return nil
}

func runThrottle(cmd *cobra.Command, args []string) error {
	w := workload{
		limiter:     runFlags.limiter,
		callers:     runFlags.callers,
		calls:       runFlags.calls,
		work:        runFlags.work,
		arrivalRate: runFlags.arrivalRate,
	}
	if w.calls == 0 {
		w.calls = w.callers
	}
	if err := w.validate(); err != nil {
		return err
	}
	format, err := cli.ParseOutputFormat(runFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := cli.SetupSignalHandler(parent)
	defer stop()

	tel, err := startTelemetry(ctx, cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer tel.shutdown()

	manager, err := limits.NewManager(cfg.Limits, tel.managerOptions()...)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer manager.Close()
	tel.registerChecks(manager)

	scheduler := limits.NewResetScheduler(manager, cfg.Limits.ResetSchedule, logger.Slog())
	if err := scheduler.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	defer scheduler.Stop()

	if cfg.Limits.Watch {
		watcher, err := config.NewFileWatcher(cfgFile, cfg.Limits.WatchDebounce, logger.Slog())
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer watcher.Stop()

		go func() {
			err := watcher.Watch(ctx, func(next *config.Config) {
				err := applyReload(manager, scheduler, next, logger)
				tel.reload.set(err)
				if err != nil {
					logger.Error("reload rejected", "error", err)
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	if tel.address != "" {
		logger.Info("telemetry endpoint ready", "address", tel.address)
	}

	var progress cli.ProgressReporter
	if runFlags.progress {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr())
		progress.Start(int64(w.calls))
	}

	report, err := runWorkload(ctx, manager, w, progress, logger)
	if progress != nil {
		if err != nil {
			progress.Error(err)
		} else {
			progress.Finish()
		}
	}
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	if runFlags.record != "" {
		report.ID = uuid.NewString()
		if err := recordRun(parent, runFlags.record, report); err != nil {
			return cli.NewCommandError("run", err)
		}
		logger.Info("run recorded", "id", report.ID, "path", runFlags.record)
	}

	out := cmd.OutOrStdout()
	if err := cli.NewFormatter(format).FormatTo(out, report); err != nil {
		return cli.NewCommandError("run", err)
	}
	if format == cli.FormatText {
		printSummary(cmd, report)
	}

	if runFlags.linger > 0 && ctx.Err() == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Serving telemetry for %v, press Ctrl+C to stop\n", runFlags.linger)
		select {
		case <-ctx.Done():
		case <-time.After(runFlags.linger):
		}
	}

	return nil
}

func printSummary(cmd *cobra.Command, report runReport) {
	out := cmd.OutOrStdout()
	elapsed := time.Duration(report.Elapsed)

	fmt.Fprintln(out)
	if report.Interrupted {
		fmt.Fprintf(out, "✗ Interrupted: %d of %d calls through %q in %v\n",
			report.Completed, report.Calls, report.Limiter, elapsed.Round(time.Millisecond))
		return
	}

	var perSecond float64
	if elapsed > 0 {
		perSecond = float64(report.Completed) / elapsed.Seconds()
	}
	fmt.Fprintf(out, "✓ %d calls through %q in %v (%.1f calls/s)\n",
		report.Completed, report.Limiter, elapsed.Round(time.Millisecond), perSecond)
	if report.ID != "" {
		fmt.Fprintf(out, "  recorded as %s\n", report.ID)
	}
}
