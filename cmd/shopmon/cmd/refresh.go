package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [connection_id]",
		Short: "Trigger a refresh cycle",
		Long: "Trigger an immediate refresh cycle for one connection, or for all\n" +
			"connections when no id is given. If a cycle is already running the\n" +
			"call joins it instead of starting another.",
		Args: cobra.MaximumNArgs(1),
		Example: `  shopmon refresh
  shopmon refresh my-shop`,
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			ctx := context.Background()

			if len(args) == 1 {
				resp, err := c.RefreshConnection(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput() {
					return outputJSON(resp)
				}
				fmt.Printf("Refreshed %s (snapshot: %v)\n",
					resp.Status.ConnectionID, resp.Status.HasSnapshot)
				return nil
			}

			resp, err := c.RefreshAll(ctx)
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(resp)
			}
			for _, id := range resp.Refreshed {
				fmt.Printf("Refreshed %s\n", id)
			}
			for id, msg := range resp.Failed {
				fmt.Printf("Failed %s: %s\n", id, msg)
			}
			return nil
		},
	}
}
