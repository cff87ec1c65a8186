package harness

import (
	"maps"
	"sync"

	"github.com/roach88/decodecheck/internal/catalog"
	"github.com/roach88/decodecheck/internal/decode"
	"github.com/roach88/decodecheck/internal/digest"
)

// Verify classifies the output of one Job against its expected digests.
//
// A non-zero exit is a tool error whatever was printed. A Job without an
// expected digest set fails on the reference field. Otherwise every
// differing field is reported.
func Verify(job catalog.Job, captured *decode.Captured) Outcome {
	if captured.ExitStatus != 0 {
		return ToolError(captured.ExitStatus, captured.Stderr)
	}
	return compare(job, captured.Digests())
}

func compare(job catalog.Job, actual digest.Set) Outcome {
	if job.Spec.Digest == nil {
		return Fail([]digest.Mismatch{{
			Field:    FieldReference,
			Expected: "recorded digest set",
			Actual:   "none (" + actual.String() + ")",
		}})
	}
	if mismatches := digest.Compare(*job.Spec.Digest, actual); len(mismatches) > 0 {
		return Fail(mismatches)
	}
	return Pass()
}

// Verifier is the test-mode Processor.
//
// When Observed is non-nil, the digest of every clean tool run is
// recorded there so the caller can write out what was actually seen.
type Verifier struct {
	Observed *Observed
}

func (v Verifier) Process(job catalog.Job, captured *decode.Captured) (Outcome, error) {
	if captured.ExitStatus != 0 {
		return ToolError(captured.ExitStatus, captured.Stderr), nil
	}
	actual := captured.Digests()
	if v.Observed != nil {
		v.Observed.Add(job.Triple, actual)
	}
	return compare(job, actual), nil
}

// Observed collects digests from concurrent workers.
type Observed struct {
	mu   sync.Mutex
	sets map[catalog.Triple]digest.Set
}

func NewObserved() *Observed {
	return &Observed{sets: make(map[catalog.Triple]digest.Set)}
}

func (o *Observed) Add(t catalog.Triple, set digest.Set) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sets[t] = set
}

// Sets returns a copy of everything recorded so far.
func (o *Observed) Sets() map[catalog.Triple]digest.Set {
	o.mu.Lock()
	defer o.mu.Unlock()
	return maps.Clone(o.sets)
}
