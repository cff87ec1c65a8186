package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/decodecheck/internal/decode"
	"github.com/roach88/decodecheck/internal/harness"
	"github.com/roach88/decodecheck/internal/reference"
	"github.com/roach88/decodecheck/internal/selector"
	"github.com/roach88/decodecheck/internal/store"
)

// RegenOptions holds flags for the regen command.
type RegenOptions struct {
	*RootOptions
	run      runFlags
	Out      string
	Archive  string
	Archiver string
}

// NewRegenCommand creates the regen command.
func NewRegenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "regen",
		Short: "Regenerate the reference snapshot from every test",
		Long: `Run every test in the catalog and write a new reference snapshot:
reference.json with the observed digests, plus the decoder outputs as a
zstd tarball, a 7z archive or plain files.

The previous snapshot is replaced only when every test produced output.
Any failure leaves it untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegen(cmd, opts)
		},
	}

	opts.run.register(cmd)
	cmd.Flags().StringVarP(&opts.Out, "out", "o", ".", "snapshot directory")
	cmd.Flags().StringVar(&opts.Archive, "archive", string(reference.KindZstd), "output archive (zstd|7z|none)")
	cmd.Flags().StringVarP(&opts.Archiver, "archiver", "z", reference.DefaultArchiver, "7z executable")

	return cmd
}

func runRegen(cmd *cobra.Command, opts *RegenOptions) error {
	ctx := cmd.Context()
	cfg := opts.Config
	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.Out = opts.Out
	}
	if flags.Changed("archive") {
		cfg.Archive = opts.Archive
	}
	if flags.Changed("archiver") {
		cfg.Archiver = opts.Archiver
	}
	if err := opts.run.apply(cmd, cfg); err != nil {
		return err
	}
	out := opts.formatter(cmd)

	st, err := opts.loadCatalog()
	if err != nil {
		return err
	}
	jobs := selector.New(st, cfg.Samples).All()

	tool, err := probeTool(cfg.Tool)
	if err != nil {
		return err
	}
	if err := checkSamples(jobs); err != nil {
		return err
	}

	runID := store.NewRunID()
	logger := opts.Logger.With("run_id", runID)

	kind, err := reference.ParseKind(cfg.Archive)
	if err != nil {
		return WrapExitError(ExitUsage, ErrCodeUsage, "", err)
	}
	kind, archiver := reference.ResolveKind(kind, cfg.Archiver, logger)
	w, err := reference.Open(cfg.Out, kind, reference.Options{Archiver: archiver, Logger: logger})
	if err != nil {
		var locked *reference.LockedError
		if errors.As(err, &locked) {
			return WrapExitError(ExitInternal, ErrCodeReference, "another run is writing this snapshot", err)
		}
		return WrapExitError(ExitInternal, ErrCodeReference, "cannot prepare snapshot", err)
	}
	defer w.Abort()

	hist, err := opts.beginHistory(ctx, runID, store.ModeRegen, len(jobs))
	if err != nil {
		return err
	}

	progress := newProgressPrinter(out.errWriter(), cfg.Progress)
	sched := &harness.Scheduler{
		Decoder:       decode.NewRunner(tool, logger),
		Processor:     w,
		Concurrency:   cfg.Concurrency,
		Timeout:       cfg.Timeout,
		ExpectedBytes: st.ExpectedSize(),
		Reporter:      progress,
		Logger:        logger,
	}

	logger.Info("regenerating reference", "tool", tool, "dir", cfg.Out, "archive", string(kind), "jobs", len(jobs))
	runCtx, stop := withInterrupt(ctx, logger)
	report, err := sched.Run(runCtx, jobs)
	stop()
	finishProgress(progress)
	if err != nil {
		hist.finish(ctx, report, aborted(len(jobs)))
		return WrapExitError(ExitInternal, ErrCodeAborted, "run aborted, previous reference kept", err)
	}

	sum := harness.Aggregate(report)
	if sum.ExitCode == ExitSuccess {
		if err := w.Commit(st); err != nil {
			hist.finish(ctx, report, aborted(len(jobs)))
			return WrapExitError(ExitInternal, ErrCodeReference, "cannot write reference snapshot", err)
		}
	} else {
		logger.Warn("not every test passed, previous reference kept")
	}
	hist.finish(ctx, report, sum)

	if out.JSON() {
		rr := newRunReport(store.ModeRegen, report, sum)
		if sum.ExitCode == ExitSuccess {
			rr.Snapshot = &snapshotInfo{Dir: cfg.Out, Kind: string(w.Kind())}
		}
		if err := out.Result(runID, sum.ExitCode, runMessage(sum, report), rr); err != nil {
			return err
		}
	} else {
		printRun(out, sum, report, fmt.Sprintf("Reference snapshot of %d tests written to %s (%s)", sum.Total, cfg.Out, w.Kind()))
		if sum.ExitCode != ExitSuccess && !sum.Interrupted {
			out.Printf("Reference snapshot in %s left unchanged\n", cfg.Out)
		}
	}
	if sum.ExitCode != ExitSuccess {
		return silentExit(sum.ExitCode)
	}
	return nil
}
