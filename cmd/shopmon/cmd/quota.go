package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func quotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show Etsy API quota usage",
		RunE: func(_ *cobra.Command, _ []string) error {
			c := newClient()
			resp, err := c.GetQuota(context.Background())
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(resp)
			}
			return printQuota(resp)
		},
	}
}
