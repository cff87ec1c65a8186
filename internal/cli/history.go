package cli

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/decodecheck/internal/harness"
	"github.com/roach88/decodecheck/internal/store"
)

// runDetail is the JSON payload of history with a run ID.
type runDetail struct {
	Run      store.Run       `json:"run"`
	Outcomes []store.Outcome `json:"outcomes"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent runs from the history database",
		Long: `List recent test and regen runs recorded in the --db database, newest
first. With a run ID, show that run's non-passing outcomes (all outcomes
with --verbose).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Config.DB == "" {
				return NewExitError(ExitUsage, ErrCodeHistory, "no history database configured (use --db or db: in the config file)")
			}
			st, err := store.Open(opts.Config.DB)
			if err != nil {
				return WrapExitError(ExitInternal, ErrCodeHistory, "cannot open history", err)
			}
			defer st.Close()

			out := opts.formatter(cmd)
			ctx := cmd.Context()

			if len(args) == 1 {
				run, err := st.GetRun(ctx, args[0])
				if errors.Is(err, store.ErrRunNotFound) {
					return WrapExitError(ExitUsage, ErrCodeHistory, "", err)
				}
				if err != nil {
					return WrapExitError(ExitInternal, ErrCodeHistory, "", err)
				}
				outcomes, err := st.Outcomes(ctx, run.ID)
				if err != nil {
					return WrapExitError(ExitInternal, ErrCodeHistory, "", err)
				}
				if out.JSON() {
					return out.Success(runDetail{Run: run, Outcomes: nonNilOutcomes(outcomes)})
				}
				printRunDetail(out, run, outcomes)
				return nil
			}

			runs, err := st.RecentRuns(ctx, limit)
			if err != nil {
				return WrapExitError(ExitInternal, ErrCodeHistory, "", err)
			}
			if out.JSON() {
				if runs == nil {
					runs = []store.Run{}
				}
				return out.Success(runs)
			}
			printRuns(out, runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func printRuns(out *OutputFormatter, runs []store.Run) {
	if len(runs) == 0 {
		out.Printf("No runs recorded\n")
		return
	}
	tw := tabwriter.NewWriter(out.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tMODE\tSTARTED\tJOBS\tEXIT\tOUTCOMES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Mode, r.StartedAt.Local().Format(time.DateTime), r.Jobs, exitText(r), countsText(r.Counts))
	}
	tw.Flush()
}

func printRunDetail(out *OutputFormatter, run store.Run, outcomes []store.Outcome) {
	out.Printf("Run %s (%s) started %s\n", run.ID, run.Mode, run.StartedAt.Local().Format(time.DateTime))
	out.Printf("  tool:     %s\n", run.Tool)
	out.Printf("  catalogs: %s\n", strings.Join(run.Catalogs, ", "))
	out.Printf("  exit:     %s\n", exitText(run))
	out.Printf("  outcomes: %s\n", countsText(run.Counts))
	for _, o := range outcomes {
		if o.Kind == harness.KindPass.String() && !out.Verbose {
			continue
		}
		line := fmt.Sprintf("  - %s: %s", o.Triple, o.Kind)
		if o.Detail != "" {
			line += ": " + o.Detail
		}
		out.Printf("%s\n", line)
	}
}

func exitText(r store.Run) string {
	switch {
	case r.ExitCode == nil:
		return "running"
	case r.Interrupted:
		return fmt.Sprintf("%d (interrupted)", *r.ExitCode)
	default:
		return fmt.Sprint(*r.ExitCode)
	}
}

// countsText renders counts in outcome kind order, skipping zeros.
func countsText(counts map[string]int) string {
	var parts []string
	for _, k := range harness.Kinds {
		if n := counts[k.String()]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	var extra []string
	for k := range counts {
		if _, err := harness.ParseKind(k); err != nil {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	for _, k := range extra {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func nonNilOutcomes(o []store.Outcome) []store.Outcome {
	if o == nil {
		return []store.Outcome{}
	}
	return o
}
