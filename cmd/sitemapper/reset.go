package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitemapper/internal/config"
)

// NewResetCmd creates the reset command.
func NewResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <url>",
		Short: "Discard the stored crawl of a site",
		Long: `Reset deletes every stored node of the site's crawl so that the next
crawl starts from the root again. The run history is kept.

Examples:
  sitemapper reset https://example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runResetCmd,
	}
}

// runResetCmd executes the reset command.
func runResetCmd(cmd *cobra.Command, args []string) error {
	db, err := openSiteDB(getDBDir(cmd), args[0], false)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Reset(cmd.Context()); err != nil {
		return fmt.Errorf("failed to reset crawl: %w", err)
	}

	dir, _ := config.SiteDBDir(getDBDir(cmd), args[0]) //nolint:errcheck // already validated by openSiteDB
	fmt.Fprintf(cmd.OutOrStdout(), "Discarded stored crawl in %s\n", dir)
	return nil
}
