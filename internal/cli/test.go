package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewTestDynatraceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test-dynatrace",
		Short: "Test connectivity to the Dynatrace API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := bootstrap(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			defer application.Close()

			total, err := application.client.TestConnection(cmd.Context())
			if err != nil {
				return fmt.Errorf("API connectivity test failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "OK: API reachable, %d problems currently reported.\n", total)
			return nil
		},
	}
}

func NewTestConnectorsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connectors",
		Short: "Send a synthetic test problem through every connector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := bootstrap(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			defer application.Close()

			out := cmd.OutOrStdout()
			failures := 0
			for _, conn := range application.engine.Connectors() {
				result, err := application.engine.TestConnector(cmd.Context(), conn.Name())
				if err != nil {
					failures++
					fmt.Fprintf(out, "FAIL %s: %v\n", conn.Name(), err)
					continue
				}
				fmt.Fprintf(out, "OK   %s: HTTP %d\n", conn.Name(), result.StatusCode)
			}

			if failures > 0 {
				return fmt.Errorf("%d of %d connectors failed", failures, len(application.engine.Connectors()))
			}
			return nil
		},
	}
}
