package cli

import (
	"fmt"
	"time"

	"github.com/roach88/decodecheck/internal/catalog"
	"github.com/roach88/decodecheck/internal/harness"
)

// runReport is the JSON payload of test and regen.
type runReport struct {
	Mode     string          `json:"mode"`
	Summary  harness.Summary `json:"summary"`
	Results  []resultView    `json:"results"`
	Snapshot *snapshotInfo   `json:"snapshot,omitempty"`
	Actual   string          `json:"actual,omitempty"`
}

type resultView struct {
	Triple catalog.Triple `json:"triple"`
	harness.Result
}

type snapshotInfo struct {
	Dir  string `json:"dir"`
	Kind string `json:"kind"`
}

func newRunReport(mode string, report *harness.Report, sum harness.Summary) runReport {
	rr := runReport{Mode: mode, Summary: sum, Results: []resultView{}}
	for _, res := range report.Results {
		rr.Results = append(rr.Results, resultView{Triple: res.Job.Triple, Result: res})
	}
	return rr
}

// failures returns the completed results that did not pass.
func failures(report *harness.Report) []harness.Result {
	var out []harness.Result
	for _, res := range report.Results {
		if res.Completed && !res.Outcome.OK() {
			out = append(out, res)
		}
	}
	return out
}

// runMessage is the one-line verdict of a run that did not pass.
func runMessage(sum harness.Summary, report *harness.Report) string {
	switch {
	case sum.Interrupted:
		return fmt.Sprintf("Interrupted: %d of %d tests completed", sum.Completed, sum.Total)
	case sum.ExitCode == harness.ExitPass:
		return ""
	default:
		return fmt.Sprintf("%d test(s) failed", len(failures(report)))
	}
}

// printRun writes the text summary of a run. passed is printed when
// every job passed. With -v every completed job is listed on stderr.
func printRun(out *OutputFormatter, sum harness.Summary, report *harness.Report, passed string) {
	for _, res := range report.Results {
		if res.Completed {
			out.VerboseLog("%s: %s (%s)", res.Job.Triple, res.Outcome, res.Elapsed.Round(time.Millisecond))
		}
	}
	failed := failures(report)
	if len(failed) > 0 {
		out.Printf("\n%d test(s) failed:\n", len(failed))
		for _, res := range failed {
			out.Printf("  - %s: %s\n", res.Job.Triple, res.Outcome)
		}
	}
	switch {
	case sum.Interrupted:
		out.Printf("%s\n", runMessage(sum, report))
	case len(failed) == 0 && sum.Passed():
		out.Printf("%s\n", passed)
	}
}
