package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/sitemap"
	"github.com/nao1215/sitemapper/internal/urlnorm"
)

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [url]",
		Short: "Render the sitemap of a stored crawl or a saved JSON report",
		Long: `Report renders a sitemap without crawling.

The tree comes either from the stored crawl of the site given as argument
or from a JSON document saved earlier with 'crawl --output'. Unfinished
crawls can be reported at any time; addresses not fetched yet are shown
as unvisited.

Examples:
  # Print the stored sitemap as a tree
  sitemapper report https://example.com

  # Render a Graphviz graph of one section
  sitemapper report -f dot --subtree https://example.com/docs/ https://example.com | dot -Tsvg > docs.svg

  # Convert a saved JSON report to Markdown
  sitemapper report -i sitemap.json -f markdown -o sitemap.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReportCmd,
	}

	cmd.Flags().StringP("format", "f", "text",
		"Report format: text, json, dot or markdown")
	cmd.Flags().StringP("input", "i", "",
		"Read the tree from a saved JSON report instead of the database")
	cmd.Flags().StringP("output", "o", "",
		"Write the report to this file instead of stdout")
	cmd.Flags().String("subtree", "",
		"Only render the part of the tree below this address")

	return cmd
}

// runReportCmd executes the report command.
func runReportCmd(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	input, err := cmd.Flags().GetString("input")
	if err != nil {
		return err
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	subtree, err := cmd.Flags().GetString("subtree")
	if err != nil {
		return err
	}

	var tree *model.TreeNode
	switch {
	case input != "" && len(args) > 0:
		return errors.New("specify either a site or --input, not both")
	case input != "":
		if subtree != "" {
			return errors.New("--subtree needs a stored crawl and cannot be combined with --input")
		}
		tree, err = loadReport(input)
	case len(args) > 0:
		tree, err = loadStoredTree(cmd.Context(), getDBDir(cmd), args[0], subtree)
	default:
		return errors.New("no site provided (specify a URL or --input)")
	}
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if output != "" {
		f, err := createReportFile(output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	w, err := newFormatWriter(format, out)
	if err != nil {
		return err
	}
	if _, err := w.Write(tree); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// loadReport reads a JSON report document from path.
func loadReport(path string) (*model.TreeNode, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided input path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	tree, err := sitemap.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	return tree, nil
}

// loadStoredTree reconstructs the tree of the crawl stored for root.
func loadStoredTree(ctx context.Context, dbDir, root, subtree string) (*model.TreeNode, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := openSiteDB(dbDir, root, false)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if subtree != "" {
		subtree, err = urlnorm.Canonicalize(subtree, "")
		if err != nil {
			return nil, fmt.Errorf("invalid --subtree: %w", err)
		}
	}

	tree, err := sitemap.Build(ctx, db, subtree)
	if errors.Is(err, sitemap.ErrNoRoot) {
		return nil, errNoCrawl
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build sitemap: %w", err)
	}
	return tree, nil
}
