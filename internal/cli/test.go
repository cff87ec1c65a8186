package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/decodecheck/internal/catalog"
	"github.com/roach88/decodecheck/internal/decode"
	"github.com/roach88/decodecheck/internal/harness"
	"github.com/roach88/decodecheck/internal/selector"
	"github.com/roach88/decodecheck/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	run    runFlags
	Actual string
}

// listing is the JSON payload of a listing request.
type listing struct {
	Entries []string `json:"entries"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test [selector...]",
		Short: "Verify decoder output against recorded digests",
		Long: `Run the decode tool for the selected tests and compare each output's
size, CRC-32, BLAKE2b and SHA-256 with the catalog.

Selectors:
  all                            run every test
  decoder                        list the samples of decoder
  decoder:sample                 list the tests of decoder:sample
  decoder:sample:test[:test...]  run the named tests
  decoder:sample:all             run every test of decoder:sample

Without selectors every decoder:sample:test combination is listed.`,
		Example: `  # List everything
  decodecheck test

  # Run two tests of one sample, eight at a time
  decodecheck test -c 8 uart:rx_9600:default:bits

  # Run everything and record what was actually observed
  decodecheck test all --actual observed.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, opts, args)
		},
	}

	opts.run.register(cmd)
	cmd.Flags().StringVar(&opts.Actual, "actual", "", "write the observed digests to this catalog file")

	return cmd
}

func runTest(cmd *cobra.Command, opts *TestOptions, args []string) error {
	cfg := opts.Config
	if err := opts.run.apply(cmd, cfg); err != nil {
		return err
	}
	out := opts.formatter(cmd)

	st, err := opts.loadCatalog()
	if err != nil {
		return err
	}
	res, err := selector.New(st, cfg.Samples).Resolve(args)
	if err != nil {
		return WrapExitError(ExitUsage, ErrCodeSelector, "", err)
	}

	if res.Kind == selector.List {
		if out.JSON() {
			return out.Success(listing{Entries: nonNilLines(selector.Lines(st, res.Scopes))})
		}
		return selector.Render(out.Writer, st, res.Scopes)
	}
	return opts.execute(cmd, st, res.Jobs, out)
}

func (opts *TestOptions) execute(cmd *cobra.Command, st *catalog.Store, jobs []catalog.Job, out *OutputFormatter) error {
	ctx := cmd.Context()
	cfg := opts.Config

	tool, err := probeTool(cfg.Tool)
	if err != nil {
		return err
	}
	if err := checkSamples(jobs); err != nil {
		return err
	}

	runID := store.NewRunID()
	logger := opts.Logger.With("run_id", runID)
	hist, err := opts.beginHistory(ctx, runID, store.ModeTest, len(jobs))
	if err != nil {
		return err
	}

	var observed *harness.Observed
	if opts.Actual != "" {
		observed = harness.NewObserved()
	}
	progress := newProgressPrinter(out.errWriter(), cfg.Progress)
	sched := &harness.Scheduler{
		Decoder:       decode.NewRunner(tool, logger),
		Processor:     harness.Verifier{Observed: observed},
		Concurrency:   cfg.Concurrency,
		Timeout:       cfg.Timeout,
		ExpectedBytes: st.Subset(triplesOf(jobs)).ExpectedSize(),
		Reporter:      progress,
		Logger:        logger,
	}

	logger.Info("starting run", "tool", tool, "concurrency", cfg.Concurrency, "jobs", len(jobs))
	runCtx, stop := withInterrupt(ctx, logger)
	report, err := sched.Run(runCtx, jobs)
	stop()
	finishProgress(progress)
	if err != nil {
		hist.finish(ctx, report, aborted(len(jobs)))
		return WrapExitError(ExitInternal, ErrCodeAborted, "run aborted", err)
	}

	sum := harness.Aggregate(report)
	hist.finish(ctx, report, sum)
	logger.Info("run finished", "completed", sum.Completed, "total", sum.Total, "exit_status", sum.ExitCode)

	if observed != nil {
		if err := writeActual(st, jobs, observed, opts.Actual); err != nil {
			return WrapExitError(ExitInternal, ErrCodeWrite, "cannot write observed digests", err)
		}
		logger.Info("observed digests written", "path", opts.Actual)
	}

	if out.JSON() {
		rr := newRunReport(store.ModeTest, report, sum)
		rr.Actual = opts.Actual
		if err := out.Result(runID, sum.ExitCode, runMessage(sum, report), rr); err != nil {
			return err
		}
	} else {
		printRun(out, sum, report, fmt.Sprintf("All %d tests passed verification against reference", sum.Total))
	}
	if sum.ExitCode != ExitSuccess {
		return silentExit(sum.ExitCode)
	}
	return nil
}

// writeActual stores the digests observed for jobs as a catalog, so
// drifted references can be inspected or adopted.
func writeActual(st *catalog.Store, jobs []catalog.Job, observed *harness.Observed, path string) error {
	sets := observed.Sets()
	var seen []catalog.Triple
	for _, job := range jobs {
		if _, ok := sets[job.Triple]; ok {
			seen = append(seen, job.Triple)
		}
	}
	return st.Subset(seen).WithDigests(sets).WriteFile(path)
}

func triplesOf(jobs []catalog.Job) []catalog.Triple {
	out := make([]catalog.Triple, len(jobs))
	for i, job := range jobs {
		out[i] = job.Triple
	}
	return out
}

// aborted is the summary recorded for a run that ended on an internal
// fault.
func aborted(total int) harness.Summary {
	return harness.Summary{Total: total, AnyInternal: true, ExitCode: ExitInternal}
}

func nonNilLines(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}
