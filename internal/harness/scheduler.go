package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/roach88/decodecheck/internal/catalog"
	"github.com/roach88/decodecheck/internal/decode"
)

// DefaultConcurrency is the worker count used when none is configured.
const DefaultConcurrency = 4

// DefaultTimeout is the per-Job deadline used when none is configured.
const DefaultTimeout = 600 * time.Second

// Decoder runs the decode tool for one Job. *decode.Runner implements it.
type Decoder interface {
	Run(ctx context.Context, job catalog.Job, progress io.Writer) (*decode.Captured, error)
}

// Processor turns the output of one Job into an Outcome. A returned error
// becomes an internal_error outcome for that Job, unless it is wrapped
// with Fatal, in which case the whole run is aborted.
type Processor interface {
	Process(job catalog.Job, captured *decode.Captured) (Outcome, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(catalog.Job, *decode.Captured) (Outcome, error)

func (f ProcessorFunc) Process(job catalog.Job, captured *decode.Captured) (Outcome, error) {
	return f(job, captured)
}

// Scheduler runs Jobs under bounded concurrency.
type Scheduler struct {
	Decoder     Decoder
	Processor   Processor
	Concurrency int
	// Timeout is the per-Job deadline. Zero disables it.
	Timeout time.Duration
	// ExpectedBytes is the total decoder output expected across all Jobs,
	// used only for progress. Zero switches progress to Job counts.
	ExpectedBytes int64
	Reporter      Reporter
	Logger        *slog.Logger
}

// Run executes jobs and returns a Report in job order.
//
// The returned error is non-nil only when the run could not be carried
// out: invalid configuration, or a Fatal error from the Processor. In the
// latter case the partial Report is returned alongside the error.
func (s *Scheduler) Run(ctx context.Context, jobs []catalog.Job) (*Report, error) {
	if s.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", s.Concurrency)
	}
	if s.Decoder == nil || s.Processor == nil {
		return nil, errors.New("scheduler needs a decoder and a processor")
	}
	reporter := s.Reporter
	if reporter == nil {
		reporter = NopReporter{}
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	runCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	w := &worker{
		s:        s,
		ctx:      runCtx,
		abort:    abort,
		reporter: reporter,
		logger:   logger,
		jobs:     &jobCounter{total: int64(len(jobs)), r: reporter},
	}
	if s.ExpectedBytes > 0 {
		w.progress = &byteCounter{total: s.ExpectedBytes, r: reporter}
	}

	results := make([]Result, len(jobs))
	for i, job := range jobs {
		results[i] = Result{Index: i, Job: job}
	}

	p := pool.New().WithMaxGoroutines(s.Concurrency)
	for i := range jobs {
		if runCtx.Err() != nil {
			break
		}
		p.Go(func() {
			w.run(&results[i])
		})
	}
	p.Wait()

	report := &Report{Results: results}
	if cause := context.Cause(runCtx); IsFatal(cause) {
		logger.Error("run aborted", "cause", cause)
		return report, cause
	}
	// A cancel that lands after the last job finished interrupts nothing.
	if ctx.Err() != nil && report.Completed() < len(jobs) {
		report.Interrupted = true
		logger.Warn("run interrupted", "completed", report.Completed(), "total", len(jobs))
	}
	return report, nil
}

type worker struct {
	s        *Scheduler
	ctx      context.Context
	abort    context.CancelCauseFunc
	reporter Reporter
	logger   *slog.Logger
	progress io.Writer
	jobs     *jobCounter
}

// run fills in res. It leaves res.Completed false when the run was
// cancelled before or while the Job ran.
func (w *worker) run(res *Result) {
	if w.ctx.Err() != nil {
		return
	}
	job := res.Job
	start := time.Now()

	jobCtx := w.ctx
	if w.s.Timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(w.ctx, w.s.Timeout)
		defer cancel()
	}

	var outcome Outcome
	captured, err := w.s.Decoder.Run(jobCtx, job, w.progress)
	switch {
	case err == nil:
		outcome, err = w.s.Processor.Process(job, captured)
		if err != nil {
			if IsFatal(err) {
				w.abort(err)
			}
			outcome = InternalError(err)
		}
	case w.ctx.Err() != nil:
		w.logger.Debug("job cancelled", "job", job.Triple.String())
		return
	case errors.Is(err, context.DeadlineExceeded):
		outcome = Timeout(w.s.Timeout)
	default:
		outcome = InternalError(err)
	}

	res.Outcome = outcome
	res.Completed = true
	res.Elapsed = time.Since(start)

	w.log(res)
	w.reporter.OnJobOutcome(*res)
	if w.progress == nil {
		w.jobs.finish()
	}
}

func (w *worker) log(res *Result) {
	attrs := []any{"job", res.Job.Triple.String(), "kind", res.Outcome.Kind.String(), "elapsed", res.Elapsed}
	switch res.Outcome.Kind {
	case KindPass:
		w.logger.Debug("job finished", attrs...)
	case KindInternalError:
		w.logger.Error("job finished", append(attrs, "cause", res.Outcome.Cause)...)
	default:
		w.logger.Info("job finished", append(attrs, "detail", res.Outcome.Detail())...)
	}
}
