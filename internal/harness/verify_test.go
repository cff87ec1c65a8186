package harness

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/decodecheck/internal/catalog"
	"github.com/roach88/decodecheck/internal/decode"
	"github.com/roach88/decodecheck/internal/digest"
)

var fixedOutput = []byte("1-2 mfm: Sync\n3-4 mfm: Byte 4e\n")

func mfmJob(expected *digest.Set) catalog.Job {
	return catalog.Job{
		Triple:     catalog.Triple{Decoder: "mfm", Sample: "fdd_fm", Test: "all"},
		SamplePath: "test/fdd_fm.sr",
		Spec:       catalog.Test{Name: "all", Digest: expected},
	}
}

func TestVerify_Pass(t *testing.T) {
	set := digest.Sum(fixedOutput)
	out := Verify(mfmJob(&set), &decode.Captured{Stdout: fixedOutput})
	assert.Equal(t, Pass(), out)
	assert.True(t, out.OK())
	assert.Equal(t, "pass", out.String())
}

func TestVerify_SizeMismatch(t *testing.T) {
	set := digest.Sum(fixedOutput)
	set.Size = 15

	out := Verify(mfmJob(&set), &decode.Captured{Stdout: fixedOutput})
	require.Equal(t, KindFail, out.Kind)
	require.Len(t, out.Mismatches, 1)
	assert.Equal(t, digest.Mismatch{Field: "size", Expected: "15", Actual: strconv.Itoa(len(fixedOutput))}, out.Mismatches[0])
	assert.Equal(t, "fail: size: expected 15, got 31", out.String())
}

func TestVerify_ReportsEveryField(t *testing.T) {
	set := digest.Sum([]byte("something else entirely"))

	out := Verify(mfmJob(&set), &decode.Captured{Stdout: fixedOutput})
	require.Equal(t, KindFail, out.Kind)

	fields := make([]string, 0, len(out.Mismatches))
	for _, m := range out.Mismatches {
		fields = append(fields, m.Field)
	}
	assert.Equal(t, []string{"size", "crc", "blake2b", "sha256"}, fields)
}

func TestVerify_ToolErrorWinsOverDigest(t *testing.T) {
	set := digest.Sum(fixedOutput)

	out := Verify(mfmJob(&set), &decode.Captured{Stdout: fixedOutput, ExitStatus: 2, Stderr: "bad sample\n"})
	assert.Equal(t, ToolError(2, "bad sample\n"), out)
	assert.Equal(t, "tool_error: exit status 2: bad sample", out.String())
}

func TestVerify_NoReference(t *testing.T) {
	out := Verify(mfmJob(nil), &decode.Captured{Stdout: fixedOutput})
	require.Equal(t, KindFail, out.Kind)
	require.Len(t, out.Mismatches, 1)
	assert.Equal(t, FieldReference, out.Mismatches[0].Field)
}

func TestVerifier_RecordsObserved(t *testing.T) {
	observed := NewObserved()
	v := Verifier{Observed: observed}
	job := mfmJob(nil)

	_, err := v.Process(job, &decode.Captured{Stdout: fixedOutput})
	require.NoError(t, err)

	failed := mfmJob(nil)
	failed.Test = "other"
	_, err = v.Process(failed, &decode.Captured{ExitStatus: 1})
	require.NoError(t, err)

	sets := observed.Sets()
	assert.Equal(t, map[catalog.Triple]digest.Set{job.Triple: digest.Sum(fixedOutput)}, sets)
}

func TestOutcome_Detail(t *testing.T) {
	assert.Equal(t, "killed after 2s", Timeout(2*time.Second).Detail())
	assert.Equal(t, "disk full", InternalError(errors.New("disk full")).Detail())
	assert.Empty(t, Pass().Detail())
}

func TestKind_TextRoundTrip(t *testing.T) {
	for _, k := range Kinds {
		text, err := k.MarshalText()
		require.NoError(t, err)

		back, err := ParseKind(string(text))
		require.NoError(t, err)
		assert.Equal(t, k, back)
	}
	_, err := ParseKind("flaky")
	assert.Error(t, err)
}
