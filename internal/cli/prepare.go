package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/decodecheck/internal/catalog"
	"github.com/roach88/decodecheck/internal/config"
	"github.com/roach88/decodecheck/internal/decode"
	"github.com/roach88/decodecheck/internal/harness"
	"github.com/roach88/decodecheck/internal/reference"
	"github.com/roach88/decodecheck/internal/selector"
	"github.com/roach88/decodecheck/internal/store"
)

// runFlags are shared by the commands that run the decode tool.
type runFlags struct {
	concurrency int
	timeout     time.Duration
	tool        string
	samples     string
	progress    string
}

func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.IntVarP(&f.concurrency, "concurrency", "c", harness.DefaultConcurrency, "decode tool instances run at once")
	fl.DurationVar(&f.timeout, "timeout", harness.DefaultTimeout, "per-test deadline (0 disables)")
	fl.StringVarP(&f.tool, "tool", "s", decode.DefaultTool, "decode tool executable")
	fl.StringVar(&f.samples, "samples", config.DefaultSamples, "sample file directory")
	fl.StringVarP(&f.progress, "progress", "p", "none", "progress step in percent (none|5|10|20|25|33)")
}

// apply lays explicitly set flags over cfg and revalidates it.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fl := cmd.Flags()
	if fl.Changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if fl.Changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if fl.Changed("tool") {
		cfg.Tool = f.tool
	}
	if fl.Changed("samples") {
		cfg.Samples = f.samples
	}
	if fl.Changed("progress") {
		p, err := parseProgress(f.progress)
		if err != nil {
			return WrapExitError(ExitUsage, ErrCodeUsage, "", err)
		}
		cfg.Progress = p
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitUsage, ErrCodeUsage, "invalid settings", err)
	}
	return nil
}

func parseProgress(s string) (int, error) {
	if s == "none" || s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "%"))
	if err != nil {
		return 0, fmt.Errorf("invalid progress %q: must be none or one of %v", s, config.ProgressSteps[1:])
	}
	return n, nil
}

// loadCatalog reads, optionally schema-checks, and merges the configured
// catalogs. A missing default catalog yields an empty store; a missing
// catalog that was asked for is an error.
func (opts *RootOptions) loadCatalog() (*catalog.Store, error) {
	cfg := opts.Config
	sources := make([]catalog.Source, 0, len(cfg.Catalogs))
	for _, p := range cfg.Catalogs {
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && !opts.catalogsExplicit {
				opts.Logger.Warn("no catalog found", "catalog", p)
				continue
			}
			return nil, WrapExitError(ExitUsage, ErrCodeCatalog, "cannot read catalog", err)
		}
		src := catalog.Source{Name: p, Data: data}
		if cfg.Schema {
			if err := catalog.Validate(src); err != nil {
				return nil, WrapExitError(ExitUsage, ErrCodeCatalog, "", err)
			}
		}
		sources = append(sources, src)
	}

	st, err := catalog.Load(sources...)
	if err != nil {
		return nil, WrapExitError(ExitUsage, ErrCodeCatalog, "", err)
	}
	opts.Logger.Debug("catalog loaded", "sources", len(sources), "tests", st.Len())
	return st, nil
}

// probeTool resolves the decode tool once per run.
func probeTool(tool string) (string, error) {
	path, err := decode.Probe(tool)
	if err != nil {
		return "", WrapExitError(ExitToolUnusable, ErrCodeTool, "", err)
	}
	return path, nil
}

// checkSamples fails when any sample file the jobs need is absent.
func checkSamples(jobs []catalog.Job) error {
	seen := make(map[string]bool)
	var missing []string
	for _, job := range jobs {
		if seen[job.SamplePath] {
			continue
		}
		seen[job.SamplePath] = true
		if info, err := os.Stat(job.SamplePath); err != nil || info.IsDir() {
			missing = append(missing, job.SamplePath)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ExitError{
		Code:    ExitUsage,
		ErrCode: ErrCodeSamples,
		Message: fmt.Sprintf("missing sample files: %s", strings.Join(missing, ", ")),
	}
}

// withInterrupt cancels the returned context on SIGINT or SIGTERM. Call
// stop when the run is over.
func withInterrupt(ctx context.Context, logger *slog.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("interrupted, stopping decode tools", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// progressPrinter writes "Progress: N%" each time another step is
// crossed.
type progressPrinter struct {
	w    io.Writer
	step int64

	mu      sync.Mutex
	last    int64
	printed bool
}

func newProgressPrinter(w io.Writer, step int) harness.Reporter {
	if step <= 0 {
		return harness.NopReporter{}
	}
	return &progressPrinter{w: w, step: int64(step)}
}

func (p *progressPrinter) OnProgress(done, total int64) {
	if total <= 0 {
		return
	}
	pct := min(done*100/total, 100)
	reached := pct / p.step * p.step

	p.mu.Lock()
	defer p.mu.Unlock()
	if reached <= p.last {
		return
	}
	p.last = reached
	p.printed = true
	fmt.Fprintf(p.w, "Progress: %d%% \r", reached)
}

func (p *progressPrinter) OnJobOutcome(harness.Result) {}

// finish ends the progress line.
func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed {
		fmt.Fprintln(p.w)
	}
}

func finishProgress(r harness.Reporter) {
	if p, ok := r.(*progressPrinter); ok {
		p.finish()
	}
}

// history records one run in the optional SQLite database. A nil
// *history records nothing.
type history struct {
	store  *store.Store
	runID  string
	logger *slog.Logger
}

func (opts *RootOptions) beginHistory(ctx context.Context, runID, mode string, jobs int) (*history, error) {
	cfg := opts.Config
	if cfg.DB == "" {
		return nil, nil
	}
	st, err := store.Open(cfg.DB)
	if err != nil {
		return nil, WrapExitError(ExitInternal, ErrCodeHistory, "cannot open history", err)
	}
	run := store.Run{
		ID:        runID,
		Mode:      mode,
		Tool:      cfg.Tool,
		Catalogs:  cfg.Catalogs,
		Jobs:      jobs,
		StartedAt: time.Now(),
	}
	if err := st.BeginRun(ctx, run); err != nil {
		st.Close()
		return nil, WrapExitError(ExitInternal, ErrCodeHistory, "cannot record run", err)
	}
	return &history{store: st, runID: runID, logger: opts.Logger}, nil
}

// finish stores outcomes and the verdict. Failures are logged, never
// allowed to change the verdict.
func (h *history) finish(ctx context.Context, report *harness.Report, sum harness.Summary) {
	if h == nil {
		return
	}
	defer h.store.Close()
	ctx = context.WithoutCancel(ctx)
	if report != nil {
		if err := h.store.RecordOutcomes(ctx, h.runID, report.Results); err != nil {
			h.logger.Error("recording outcomes failed", "run_id", h.runID, "err", err)
		}
	}
	if err := h.store.FinishRun(ctx, h.runID, time.Now(), sum); err != nil {
		h.logger.Error("recording run failed", "run_id", h.runID, "err", err)
	}
}

// errorDetails picks machine-readable details for JSON error output.
func errorDetails(err error) any {
	var selErr *selector.Error
	if errors.As(err, &selErr) && len(selErr.Available) > 0 {
		return map[string]any{"token": selErr.Token, "available": selErr.Available}
	}
	var incomplete *reference.IncompleteError
	if errors.As(err, &incomplete) {
		return map[string]any{"missing": incomplete.Missing}
	}
	var unusable *decode.ToolUnusableError
	if errors.As(err, &unusable) {
		return map[string]any{"tool": unusable.Tool, "reason": unusable.Reason}
	}
	return nil
}
