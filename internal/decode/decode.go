// Package decode runs the external decode tool for one Job and captures
// what it printed.
//
// The runner does not interpret output: a non-zero exit status is
// surfaced as-is together with the tail of the tool's error stream, and
// the caller decides what that means.
package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/roach88/decodecheck/internal/catalog"
	"github.com/roach88/decodecheck/internal/digest"
)

// DefaultTool is the decode tool used when none is configured.
const DefaultTool = "sigrok-cli"

// DefaultStderrLimit bounds the stderr excerpt kept per invocation.
const DefaultStderrLimit = 4 << 10

// Captured is the raw result of one decode invocation.
type Captured struct {
	Stdout []byte
	// Digest is the digest set of Stdout, computed while the output
	// streamed. Nil when Stdout was filled in some other way.
	Digest     *digest.Set
	ExitStatus int
	Stderr     string // last StderrLimit bytes, prefixed with "..." when cut
	Elapsed    time.Duration
}

// Digests returns the digest set of Stdout, hashing it only when the
// runner has not already done so.
func (c *Captured) Digests() digest.Set {
	if c.Digest != nil {
		return *c.Digest
	}
	return digest.Sum(c.Stdout)
}

// Runner invokes the decode tool.
type Runner struct {
	Tool        string
	StderrLimit int
	Logger      *slog.Logger
}

// NewRunner returns a Runner for tool with default limits.
func NewRunner(tool string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{Tool: tool, StderrLimit: DefaultStderrLimit, Logger: logger}
}

// Args builds the tool argv for job. The result depends only on the job.
//
//	-D -i <sample> -P <decoder>[:<options>] -A <decoder>[=<annotate>]
func Args(job catalog.Job) []string {
	proto := job.Decoder
	if job.Spec.Options != "" {
		proto += ":" + job.Spec.Options
	}
	annotate := job.Decoder
	if job.Spec.Annotate != "" {
		annotate += "=" + job.Spec.Annotate
	}
	return []string{"-D", "-i", job.SamplePath, "-P", proto, "-A", annotate}
}

// Run executes the tool for job and waits for it.
//
// The tool runs in its own process group. When ctx is done before the
// tool exits the whole group is killed and the context error is returned
// wrapped, so callers can tell a deadline from an interrupt with
// errors.Is. Failing to start the tool is also an error; a tool that ran
// and exited non-zero is not.
//
// Every stdout chunk is also written to progress when it is non-nil.
func (r *Runner) Run(ctx context.Context, job catalog.Job, progress io.Writer) (*Captured, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", job.Triple, err)
	}

	args := Args(job)
	cmd := exec.Command(r.Tool, args...)
	setProcessGroup(cmd)

	var stdout bytes.Buffer
	hasher := digest.NewHasher()
	if progress != nil {
		cmd.Stdout = io.MultiWriter(&stdout, hasher, progress)
	} else {
		cmd.Stdout = io.MultiWriter(&stdout, hasher)
	}
	limit := r.StderrLimit
	if limit <= 0 {
		limit = DefaultStderrLimit
	}
	stderr := newTail(limit)
	cmd.Stderr = stderr

	r.logger().Debug("decode start", "job", job.Triple.String(), "args", args)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.Tool, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		r.logger().Debug("decode killed", "job", job.Triple.String(), "cause", ctx.Err())
		return nil, fmt.Errorf("%s: %w", job.Triple, ctx.Err())
	case err = <-done:
	}

	status := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("wait %s: %w", r.Tool, err)
		}
		status = exitErr.ExitCode()
	}

	set := hasher.Sum()
	captured := &Captured{
		Stdout:     stdout.Bytes(),
		Digest:     &set,
		ExitStatus: status,
		Stderr:     stderr.String(),
		Elapsed:    time.Since(start),
	}
	r.logger().Debug("decode done", "job", job.Triple.String(), "exit_status", status, "bytes", len(captured.Stdout))
	return captured, nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

// tail keeps the last limit bytes written to it.
type tail struct {
	limit int
	buf   []byte
	cut   bool
}

func newTail(limit int) *tail {
	return &tail{limit: limit}
}

func (t *tail) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= t.limit {
		t.cut = t.cut || len(p) > t.limit || len(t.buf) > 0
		t.buf = append(t.buf[:0], p[len(p)-t.limit:]...)
		return n, nil
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		copy(t.buf, t.buf[over:])
		t.buf = t.buf[:t.limit]
		t.cut = true
	}
	return n, nil
}

func (t *tail) String() string {
	if t.cut {
		return "..." + string(t.buf)
	}
	return string(t.buf)
}
