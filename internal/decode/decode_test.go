package decode

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/decodecheck/internal/catalog"
	"github.com/roach88/decodecheck/internal/digest"
	"github.com/roach88/decodecheck/internal/testutil"
)

func job(options, annotate string) catalog.Job {
	return catalog.Job{
		Triple:     catalog.Triple{Decoder: "mfm", Sample: "fdd_fm", Test: "all"},
		SamplePath: "test/fdd_fm.sr",
		Spec:       catalog.Test{Name: "all", Options: options, Annotate: annotate},
	}
}

func TestArgs(t *testing.T) {
	tests := []struct {
		name     string
		options  string
		annotate string
		want     []string
	}{
		{
			name: "bare",
			want: []string{"-D", "-i", "test/fdd_fm.sr", "-P", "mfm", "-A", "mfm"},
		},
		{
			name:     "options and annotate",
			options:  "data_rate=125000:encoding=FM",
			annotate: "fields",
			want:     []string{"-D", "-i", "test/fdd_fm.sr", "-P", "mfm:data_rate=125000:encoding=FM", "-A", "mfm=fields"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Args(job(tt.options, tt.annotate)))
		})
	}
}

func TestRun_CapturesStdout(t *testing.T) {
	r := NewRunner(testutil.PrintfTool(t, "bit 0\r\nbit 1\n"), nil)

	var progress bytes.Buffer
	got, err := r.Run(context.Background(), job("", ""), &progress)
	require.NoError(t, err)

	assert.Equal(t, "bit 0\r\nbit 1\n", string(got.Stdout), "output must be captured byte for byte")
	assert.Equal(t, 0, got.ExitStatus)
	assert.Empty(t, got.Stderr)
	assert.Equal(t, got.Stdout, progress.Bytes())
}

func TestRun_DigestsWhileStreaming(t *testing.T) {
	r := NewRunner(testutil.PrintfTool(t, "bit 0\r\nbit 1\n"), nil)

	got, err := r.Run(context.Background(), job("", ""), nil)
	require.NoError(t, err)

	require.NotNil(t, got.Digest)
	assert.Equal(t, digest.Sum(got.Stdout), *got.Digest)
	assert.Equal(t, *got.Digest, got.Digests())
}

func TestCaptured_DigestsWithoutStream(t *testing.T) {
	c := &Captured{Stdout: []byte("frame\n")}
	assert.Equal(t, digest.Sum([]byte("frame\n")), c.Digests())
}

func TestRun_PassesArgv(t *testing.T) {
	r := NewRunner(testutil.ArgsTool(t), nil)

	got, err := r.Run(context.Background(), job("baudrate=9600", "rx-data"), nil)
	require.NoError(t, err)
	assert.Equal(t, "-D\n-i\ntest/fdd_fm.sr\n-P\nmfm:baudrate=9600\n-A\nmfm=rx-data\n", string(got.Stdout))
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	r := NewRunner(testutil.FailingTool(t, 3, "srd: decoder crashed"), nil)

	got, err := r.Run(context.Background(), job("", ""), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ExitStatus)
	assert.Equal(t, "srd: decoder crashed", got.Stderr)
}

func TestRun_StderrIsBounded(t *testing.T) {
	tool := testutil.WriteScript(t, "noisy", `i=0; while [ $i -lt 200 ]; do printf 'line %03d\n' $i >&2; i=$((i+1)); done; printf 'tail-end' >&2`)
	r := NewRunner(tool, nil)
	r.StderrLimit = 64

	got, err := r.Run(context.Background(), job("", ""), nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.Stderr, "..."))
	assert.True(t, strings.HasSuffix(got.Stderr, "tail-end"))
	assert.Len(t, got.Stderr, 64+3)
}

func TestRun_DeadlineKillsTool(t *testing.T) {
	r := NewRunner(testutil.SleepTool(t, "30"), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	got, err := r.Run(ctx, job("", ""), nil)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 10*time.Second, "the tool must be killed, not waited for")
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	r := NewRunner(testutil.PrintfTool(t, "x"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, job("", ""), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_StartFailure(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "missing"), nil)

	_, err := r.Run(context.Background(), job("", ""), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start")
}

func TestTail(t *testing.T) {
	tl := newTail(4)
	_, _ = tl.Write([]byte("ab"))
	assert.Equal(t, "ab", tl.String())

	_, _ = tl.Write([]byte("cd"))
	assert.Equal(t, "abcd", tl.String())

	_, _ = tl.Write([]byte("e"))
	assert.Equal(t, "...bcde", tl.String())

	tl = newTail(4)
	_, _ = tl.Write([]byte("0123456789"))
	assert.Equal(t, "...6789", tl.String())
}

func TestProbe(t *testing.T) {
	dir := t.TempDir()

	tool := testutil.PrintfTool(t, "")
	path, err := Probe(tool)
	require.NoError(t, err)
	assert.Equal(t, tool, path)

	notExec := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(notExec, []byte("#!/bin/sh\n"), 0o644))

	tests := []struct {
		name   string
		tool   string
		reason string
	}{
		{name: "empty", tool: "", reason: "is not set"},
		{name: "missing", tool: filepath.Join(dir, "nope"), reason: "not found"},
		{name: "directory", tool: dir, reason: ""},
		{name: "not executable", tool: notExec, reason: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Probe(tt.tool)
			var unusable *ToolUnusableError
			require.ErrorAs(t, err, &unusable)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, unusable.Reason)
			}
		})
	}
}
