package harness

import (
	"time"

	"github.com/roach88/decodecheck/internal/catalog"
)

// Exit statuses produced by Aggregate.
const (
	ExitPass        = 0
	ExitFail        = 1
	ExitInterrupted = 3
	ExitInternal    = 4
)

// Result is one Job's slot in a Report.
type Result struct {
	Index     int           `json:"index"`
	Job       catalog.Job   `json:"-"`
	Outcome   Outcome       `json:"outcome"`
	Completed bool          `json:"completed"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Report holds one Result per Job, in Job order.
type Report struct {
	Results     []Result
	Interrupted bool
}

// Completed counts Results that have an outcome.
func (r *Report) Completed() int {
	n := 0
	for _, res := range r.Results {
		if res.Completed {
			n++
		}
	}
	return n
}

// Summary is the reduced verdict of a run.
type Summary struct {
	Counts       map[Kind]int `json:"counts"`
	Total        int          `json:"total"`
	Completed    int          `json:"completed"`
	AnyToolError bool         `json:"any_tool_error"`
	AnyInternal  bool         `json:"any_internal_error"`
	Interrupted  bool         `json:"interrupted"`
	ExitCode     int          `json:"exit_code"`
}

// Aggregate reduces a Report to counts and an exit status.
func Aggregate(r *Report) Summary {
	sum := Summary{
		Counts:      make(map[Kind]int, len(Kinds)),
		Total:       len(r.Results),
		Interrupted: r.Interrupted,
	}
	for _, k := range Kinds {
		sum.Counts[k] = 0
	}
	anyFailure := false
	for _, res := range r.Results {
		if !res.Completed {
			continue
		}
		sum.Completed++
		sum.Counts[res.Outcome.Kind]++
		switch res.Outcome.Kind {
		case KindToolError:
			sum.AnyToolError = true
			anyFailure = true
		case KindInternalError:
			sum.AnyInternal = true
		case KindFail, KindTimeout:
			anyFailure = true
		}
	}

	switch {
	case sum.Interrupted:
		sum.ExitCode = ExitInterrupted
	case sum.AnyInternal:
		sum.ExitCode = ExitInternal
	case anyFailure:
		sum.ExitCode = ExitFail
	default:
		sum.ExitCode = ExitPass
	}
	return sum
}

// Passed reports whether every Job ran and passed.
func (s Summary) Passed() bool {
	return s.ExitCode == ExitPass && s.Completed == s.Total
}
