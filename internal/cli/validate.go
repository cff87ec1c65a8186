package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// catalogStats is the payload of validate.
type catalogStats struct {
	Catalogs []string `json:"catalogs"`
	Decoders int      `json:"decoders"`
	Samples  int      `json:"samples"`
	Tests    int      `json:"tests"`
}

func (s catalogStats) String() string {
	return fmt.Sprintf("Catalogs valid: %d decoders, %d samples, %d tests", s.Decoders, s.Samples, s.Tests)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check catalogs against the schema without running anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Config.Schema = true
			st, err := opts.loadCatalog()
			if err != nil {
				return err
			}

			stats := catalogStats{Catalogs: opts.Config.Catalogs, Tests: st.Len()}
			for d := range st.Decoders() {
				stats.Decoders++
				for range st.Samples(d) {
					stats.Samples++
				}
			}
			return opts.formatter(cmd).Success(stats)
		},
	}
}
