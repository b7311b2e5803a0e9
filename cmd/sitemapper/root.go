package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitemapper/internal/config"
)

// NewRootCmd creates the root command for sitemapper.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitemapper",
		Short: "Resumable same-domain website crawler",
		Long: `sitemapper walks a website breadth-first from a root address and builds
a sitemap of every page reachable on the same domain.

Progress is stored in a local database per host, so a crawl that was
interrupted or ran out of its URL budget continues where it stopped
when the same command is run again.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, err := cmd.Flags().GetString("env-file")
			if err != nil {
				return nil //nolint:nilerr // commands outside the root tree have no env-file flag
			}
			return config.LoadEnvFile(envFile)
		},
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(),
		"Base directory for crawl databases (one subdirectory per host)")
	cmd.PersistentFlags().String("env-file", config.DefaultEnvFile,
		"Dotenv file loaded before the configuration file")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewReportCmd())
	cmd.AddCommand(NewResetCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
