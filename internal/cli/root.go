// Package cli provides the command-line interface for docingest.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/docingest/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	serverURL  string
	configPath string

	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "docingest",
	Short: "Document ingestion service",
	Long: `Docingest turns PDF, HTML and Markdown documents into embedded,
heading-aware chunks in a knowledge base.

Documents are ingested by background jobs. Submit a job with 'ingest',
follow it with 'jobs', and stop it with 'cancel'. 'serve' runs the
HTTP API and the workers.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = client.New(serverURL)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $DOCINGEST_SERVER_URL or "+client.DefaultEndpoint+")")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./docingest.yaml)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "docingest %s\n", Version)
	},
}
