package cmd

import (
	"github.com/spf13/cobra"

	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this machine can build and serve indexes",
		Long: `Run environment checks: index and temp directory permissions, free
disk space, the git backend, the configured embedder and the open file limit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			results := preflight.New(cfg).RunAll(cmd.Context())
			if jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{
					"status": preflight.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				preflight.PrintResults(cmd.OutOrStdout(), results, verbose)
			}

			if preflight.HasCriticalFailures(results) {
				return rerrors.New(rerrors.ErrCodeEnvironment, "required checks failed", nil).
					WithSuggestion("Fix the FAIL entries above and run 'repoindex doctor' again")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for passing checks")

	return cmd
}
