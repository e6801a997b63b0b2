// Package cmd implements the CLI commands for shopmon.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apiclient "github.com/donaldgifford/shopmon/internal/api/client"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "shopmon",
	Short: "Monitor Etsy shops for orders, reviews, and stock changes",
	Long: "An API-first service that periodically refreshes Etsy shop data\n" +
		"(shop info, listings, transactions) either directly against the Etsy\n" +
		"API or through a trusted HMAC-signed proxy, caches the latest\n" +
		"snapshot, and emits events when orders, reviews, or stock change.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().
		String("api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().
		String("output", "table", "output format (table, json)")

	cobra.CheckErr(viper.BindPFlag("api-url", rootCmd.PersistentFlags().Lookup("api-url")))
	cobra.CheckErr(viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output")))

	viper.SetEnvPrefix("SHOPMON")
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(quotaCmd())
	rootCmd.AddCommand(versionCommand())
}

// Root returns the root cobra command for documentation generation.
func Root() *cobra.Command {
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newClient() *apiclient.Client {
	return apiclient.New(viper.GetString("api-url"))
}

func jsonOutput() bool {
	return viper.GetString("output") == "json"
}
