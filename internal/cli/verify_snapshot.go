package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/decodecheck/internal/reference"
)

// snapshotCheck is the payload of verify-snapshot.
type snapshotCheck struct {
	Dir     string                  `json:"dir"`
	Checked int                     `json:"checked"`
	Failed  int                     `json:"failed"`
	Results []reference.CheckResult `json:"results"`
}

// NewVerifySnapshotCommand creates the verify-snapshot command.
func NewVerifySnapshotCommand(opts *RootOptions) *cobra.Command {
	var archiver string

	cmd := &cobra.Command{
		Use:   "verify-snapshot [dir]",
		Short: "Re-digest a stored reference snapshot against its reference.json",
		Long: `Read every decoder output stored in a reference snapshot and check it
against the digests recorded in the snapshot's reference.json. This does
not run the decode tool.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.Config
			dir := cfg.Out
			if len(args) == 1 {
				dir = args[0]
			}
			if cmd.Flags().Changed("archiver") {
				cfg.Archiver = archiver
			}

			results, err := reference.Check(dir, reference.Options{Archiver: cfg.Archiver, Logger: opts.Logger})
			if err != nil {
				return WrapExitError(ExitUsage, ErrCodeReference, "cannot read snapshot", err)
			}

			check := snapshotCheck{Dir: dir, Checked: len(results), Results: results}
			var lines []string
			for _, res := range results {
				if res.OK() {
					continue
				}
				check.Failed++
				lines = append(lines, fmt.Sprintf("  - %s: %s", res.Triple, checkDetail(res)))
			}
			if check.Results == nil {
				check.Results = []reference.CheckResult{}
			}

			out := opts.formatter(cmd)
			code, message := ExitSuccess, ""
			if check.Failed > 0 {
				code = ExitFailure
				message = fmt.Sprintf("%d of %d stored outputs do not match", check.Failed, check.Checked)
			}
			if out.JSON() {
				if err := out.Result("", code, message, check); err != nil {
					return err
				}
			} else if check.Failed > 0 {
				out.Printf("%s:\n%s\n", message, strings.Join(lines, "\n"))
			} else {
				out.Printf("Snapshot in %s verified: %d stored outputs match reference.json\n", dir, check.Checked)
			}
			if code != ExitSuccess {
				return silentExit(code)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&archiver, "archiver", "z", reference.DefaultArchiver, "7z executable")
	return cmd
}

func checkDetail(res reference.CheckResult) string {
	if res.Err != "" {
		return res.Err
	}
	parts := make([]string, len(res.Mismatches))
	for i, m := range res.Mismatches {
		parts[i] = m.String()
	}
	return strings.Join(parts, "; ")
}
