package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type ClearCacheOptions struct {
	*RootOptions
	Confirm bool
}

func NewClearCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearCacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear-cache",
		Short: "Clear tracked problem state",
		Long: `Clear every tracked problem from the state database. On the next poll
cycle all still-open remote problems are classified as new and forwarded
again. Delivery history is retained.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Confirm {
				fmt.Fprint(cmd.OutOrStdout(), "This re-forwards all open problems on the next cycle. Continue? [y/N]: ")
				answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil {
					return fmt.Errorf("failed to read confirmation: %w", err)
				}
				if answer = strings.ToLower(strings.TrimSpace(answer)); answer != "y" && answer != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			application, err := bootstrap(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			defer application.Close()

			removed, err := application.engine.ClearCache(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d tracked problems.\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Confirm, "confirm", false, "skip the confirmation prompt")

	return cmd
}
