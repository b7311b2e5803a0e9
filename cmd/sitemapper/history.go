package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/nao1215/sitemapper/internal/model"
)

// defaultHistoryLimit is how many runs history shows by default.
const defaultHistoryLimit = 10

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <url>",
		Short: "List previous crawl runs of a site",
		Long: `History lists the crawler invocations recorded for a site, most recent
first, with how many pages each fetched and how it ended.

Examples:
  sitemapper history https://example.com
  sitemapper history --json -n 0 https://example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Number of runs to show (0 shows all)")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON instead of a table")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	db, err := openSiteDB(getDBDir(cmd), args[0], false)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if asJSON {
		if runs == nil {
			runs = []model.Run{}
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(runs)
	}
	return writeHistory(cmd.OutOrStdout(), runs)
}

// writeHistory prints runs as an aligned table.
func writeHistory(w io.Writer, runs []model.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}

	tbl := table.New("STARTED", "DURATION", "FETCHED", "DISCOVERED", "OUTCOME", "ID").WithWriter(w)
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		tbl.AddRow(r.StartedAt.Local().Format(time.DateTime), duration,
			r.Processed, r.Discovered, r.Outcome, r.ID)
	}
	tbl.Print()
	return nil
}
