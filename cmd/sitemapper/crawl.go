package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitemapper/internal/config"
	"github.com/nao1215/sitemapper/internal/crawler"
	"github.com/nao1215/sitemapper/internal/database"
	"github.com/nao1215/sitemapper/internal/fetcher"
	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/report"
	"github.com/nao1215/sitemapper/internal/sitemap"
	"github.com/nao1215/sitemapper/internal/urlnorm"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a website and build its sitemap",
		Long: `Crawl walks a website breadth-first from the given root address.

Only addresses on the root's domain are followed. Every address found is
stored in a database under --db-dir, one per host, so running the same
command again resumes an interrupted crawl or one that hit its URL budget.
Press Ctrl-C to stop; pages already fetched are kept, the report of the
partial crawl is still printed and the command exits with an error.

Examples:
  # Crawl a site and print the sitemap as a tree
  sitemapper crawl https://example.com

  # Fetch at most 500 pages in this run, two at a time
  sitemapper crawl -n 500 -w 2 https://example.com

  # Mark pages mentioning a phrase and save the JSON document
  sitemapper crawl --search "out of stock" -o sitemap.json https://example.com

  # Start over, discarding the stored crawl
  sitemapper crawl --reset https://example.com

Configuration file (.sitemapper) example:
  defaults:
    delay: 500ms
  sites:
    example.com:
      cookie: "session_id=${EXAMPLE_SESSION}"
      ignorePatterns:
        - "/logout*"`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().DurationP("delay", "D", config.DefaultDelay,
		"Minimum interval between two fetches (0 disables throttling)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each fetch, including redirects")
	cmd.Flags().IntP("url-count-limit", "n", config.DefaultURLCountLimit,
		"Maximum number of fetches in this run")
	cmd.Flags().IntP("depth-limit", "d", config.DefaultDepthLimit,
		"Maximum link distance from the root (0 fetches only the root)")
	cmd.Flags().StringP("search", "s", "",
		"Mark pages whose text contains this string (case-insensitive)")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Number of concurrent fetches")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
	cmd.Flags().Int("max-redirects", config.DefaultMaxRedirects,
		"Maximum redirect hops per fetch")
	cmd.Flags().StringP("user-agent", "A", config.DefaultUserAgent,
		"User-Agent header sent with each request")
	cmd.Flags().String("proxy", "",
		"Proxy URL for all fetches (e.g., socks5://127.0.0.1:9050)")
	cmd.Flags().Bool("reset", false,
		"Discard the stored crawl of this site before starting")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitemapper in current or home directory)")

	// Report flags
	cmd.Flags().StringP("format", "f", config.DefaultReportFormat,
		"Report format printed to stdout: text, json, dot or markdown")
	cmd.Flags().StringP("output", "o", "",
		"Also save the JSON report to this file (creates directories if needed)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := signalContext(logger)
	defer cancel()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// buildConfig creates a Config from cobra command flags and the site file.
// Flags given on the command line win over site file values.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.Delay, err = cmd.Flags().GetDuration("delay")
	if err != nil {
		return nil, err
	}

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.URLCountLimit, err = cmd.Flags().GetInt("url-count-limit")
	if err != nil {
		return nil, err
	}

	cfg.DepthLimit, err = cmd.Flags().GetInt("depth-limit")
	if err != nil {
		return nil, err
	}

	cfg.SearchText, err = cmd.Flags().GetString("search")
	if err != nil {
		return nil, err
	}

	cfg.Workers, err = cmd.Flags().GetInt("workers")
	if err != nil {
		return nil, err
	}

	cfg.MaxBodySize, err = cmd.Flags().GetInt64("max-body-size")
	if err != nil {
		return nil, err
	}

	cfg.MaxRedirects, err = cmd.Flags().GetInt("max-redirects")
	if err != nil {
		return nil, err
	}

	cfg.UserAgent, err = cmd.Flags().GetString("user-agent")
	if err != nil {
		return nil, err
	}

	cfg.ProxyURL, err = cmd.Flags().GetString("proxy")
	if err != nil {
		return nil, err
	}

	cfg.Reset, err = cmd.Flags().GetBool("reset")
	if err != nil {
		return nil, err
	}

	cfg.ReportFormat, err = cmd.Flags().GetString("format")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.DBDir = getDBDir(cmd)

	if len(args) > 0 {
		cfg.Root = args[0]
	}

	// If the user explicitly specified a config file path, error if not found.
	// If no path was specified, silently use an empty config.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	applySiteConfig(cmd, cfg)

	return cfg, nil
}

// applySiteConfig copies site file values into cfg for every setting the
// user did not pass as a flag.
func applySiteConfig(cmd *cobra.Command, cfg *config.Config) {
	site := cfg.Site()
	unset := func(flag string) bool {
		return !cmd.Flags().Changed(flag)
	}

	if site.Depth > 0 && unset("depth-limit") {
		cfg.DepthLimit = site.Depth
	}
	if site.URLCountLimit > 0 && unset("url-count-limit") {
		cfg.URLCountLimit = site.URLCountLimit
	}
	if site.Delay > 0 && unset("delay") {
		cfg.Delay = site.Delay
	}
	if site.SearchText != "" && unset("search") {
		cfg.SearchText = site.SearchText
	}
	if site.UserAgent != "" && unset("user-agent") {
		cfg.UserAgent = site.UserAgent
	}
}

// runCrawl executes the crawl and prints the report of whatever the store
// holds afterwards, even when the run was interrupted.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) error {
	root, err := urlnorm.Canonicalize(cfg.Root, "")
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidRoot, err)
	}

	db, err := openSiteDB(cfg.DBDir, root, true)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database opened", "path", db.Path())

	// Bookkeeping after the crawl must survive cancellation.
	storeCtx := context.WithoutCancel(ctx)

	if cfg.Reset {
		if err := db.Reset(storeCtx); err != nil {
			return fmt.Errorf("failed to reset crawl: %w", err)
		}
		logger.Info("stored crawl discarded", "root", root)
	}

	site := cfg.Site()
	f, err := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:    cfg.UserAgent,
		Headers:      site.Headers,
		Cookie:       site.Cookie,
		Timeout:      cfg.Timeout,
		MaxBodyBytes: cfg.MaxBodySize,
		MaxRedirects: cfg.MaxRedirects,
		ProxyURL:     cfg.ProxyURL,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create fetcher: %w", err)
	}

	spider := crawler.NewSpider(db, f,
		crawler.WithDepthLimit(cfg.DepthLimit),
		crawler.WithURLCountLimit(cfg.URLCountLimit),
		crawler.WithDelay(cfg.Delay),
		crawler.WithWorkers(cfg.Workers),
		crawler.WithSearchText(cfg.SearchText),
		crawler.WithIgnorePatterns(site.IgnorePatterns),
		crawler.WithFollowPatterns(site.FollowPatterns),
		crawler.WithLogger(logger),
	)

	runID, err := db.StartRun(storeCtx, root)
	if err != nil {
		return err
	}

	fmt.Fprintf(stderr, "Crawling %s...\n", root)
	stats, crawlErr := spider.Crawl(ctx, root)
	if stats == nil {
		stats = &crawler.Stats{Root: root}
	}

	if err := db.FinishRun(storeCtx, runID, stats.Processed, stats.Discovered, stats.Outcome(crawlErr)); err != nil {
		logger.Error("failed to record run", "id", runID, "error", err)
	}
	printStats(stderr, stats, crawlErr)

	interrupted := errors.Is(crawlErr, context.Canceled) || errors.Is(crawlErr, context.DeadlineExceeded)
	if crawlErr != nil && !interrupted {
		if database.IsStorageError(crawlErr) {
			return fmt.Errorf("crawl aborted by a database error, progress before it is kept: %w", crawlErr)
		}
		return fmt.Errorf("crawl failed: %w", crawlErr)
	}

	tree, err := sitemap.Build(storeCtx, db, "")
	if err != nil {
		return fmt.Errorf("failed to build sitemap: %w", err)
	}
	if err := outputReport(cfg, tree, stdout); err != nil {
		return err
	}
	if interrupted {
		return fmt.Errorf("crawl interrupted, partial report written: %w", crawlErr)
	}
	return nil
}

// printStats writes a short account of the run.
func printStats(w io.Writer, stats *crawler.Stats, crawlErr error) {
	fmt.Fprintf(w, "Fetched %d page(s), discovered %d new address(es) in %s\n",
		stats.Processed, stats.Discovered, stats.Elapsed.Round(time.Millisecond))
	if stats.Failed > 0 {
		fmt.Fprintf(w, "%d fetch(es) failed without a response\n", stats.Failed)
	}

	switch stats.Outcome(crawlErr) {
	case model.RunOutcomeInterrupted:
		fmt.Fprintln(w, "Crawl interrupted. Run the same command again to resume.")
	case model.RunOutcomeBudget:
		fmt.Fprintf(w, "URL count limit reached with %d address(es) left. Run the same command again to continue.\n",
			stats.Remaining)
	case model.RunOutcomeCompleted:
		fmt.Fprintln(w, "Crawl complete.")
	}
}

// outputReport prints the tree in the requested format and saves the JSON
// document when a report file is configured.
func outputReport(cfg *config.Config, tree *model.TreeNode, stdout io.Writer) error {
	console, err := newFormatWriter(cfg.ReportFormat, stdout)
	if err != nil {
		return err
	}
	writers := []report.Writer{console}

	if cfg.ReportFile != "" {
		f, err := createReportFile(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		writers = append(writers, report.NewJSONWriter(f, report.WithPrettyPrint()))
	}

	if _, err := report.NewMultiWriter(writers...).Write(tree); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
