package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitemapper/internal/config"
	"github.com/nao1215/sitemapper/internal/database"
	applog "github.com/nao1215/sitemapper/internal/log"
	"github.com/nao1215/sitemapper/internal/report"
)

// errNoCrawl is returned when a command needs a stored crawl that does not
// exist.
var errNoCrawl = errors.New("no crawl stored for this site (run 'sitemapper crawl' first)")

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getDBDir retrieves the database base directory, falling back to the XDG
// data directory when the command runs outside the root command.
func getDBDir(cmd *cobra.Command) string {
	dir, err := cmd.Flags().GetString("db-dir")
	if err != nil || dir == "" {
		return config.XDGDataDir()
	}
	return dir
}

// setupLogger creates a structured logger based on verbosity setting.
// Log lines go to stderr so that reports on stdout stay machine readable.
func setupLogger(verbose bool) *slog.Logger {
	return applog.NewLogger(os.Stderr, verbose)
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// openSiteDB opens the crawl database of the host of root below baseDir.
// When create is false a missing database is reported as errNoCrawl.
func openSiteDB(baseDir, root string, create bool) (*database.CrawlDB, error) {
	dir, err := config.SiteDBDir(baseDir, root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidRoot, err)
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = create
	if !create {
		if _, err := os.Stat(filepath.Join(dir, opts.FileName)); os.IsNotExist(err) {
			return nil, errNoCrawl
		}
	}

	db, err := database.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// newFormatWriter returns the writer for a user supplied format name.
// The text format includes the summary block.
func newFormatWriter(name string, output io.Writer) (report.Writer, error) {
	format, err := report.ParseFormat(name)
	if err != nil {
		return nil, err
	}
	if format == report.FormatText {
		return report.NewTextWriter(output, report.WithSummary(true)), nil
	}
	return report.NewWriter(format, output)
}

// createReportFile creates or truncates path, making parent directories as
// needed.
func createReportFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports may contain session-bound URLs, so only the owner can read them.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
