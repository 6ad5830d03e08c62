package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show state database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := bootstrap(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			defer application.Close()

			stats, err := application.engine.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read statistics: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Tracked problems:")
			fmt.Fprintf(out, "  total:   %d\n", stats.TotalProblems)
			fmt.Fprintf(out, "  open:    %d\n", stats.OpenProblems)
			fmt.Fprintf(out, "  closed:  %d\n", stats.ClosedProblems)
			fmt.Fprintln(out, "Delivery history:")
			fmt.Fprintf(out, "  total:   %d\n", stats.TotalForwards)
			fmt.Fprintf(out, "  success: %d\n", stats.SuccessCount)
			fmt.Fprintf(out, "  failed:  %d\n", stats.FailureCount)
			return nil
		},
	}
}
