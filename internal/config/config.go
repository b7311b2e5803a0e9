package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/sitemapper/internal/sitemap"
	"github.com/nao1215/sitemapper/internal/urlnorm"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitemapper"

	// DefaultDelay is the minimum interval between two fetch dispatches.
	// 1 second keeps a single crawler well below what most sites tolerate.
	DefaultDelay = 1 * time.Second

	// DefaultTimeout bounds one fetch including redirects and body read.
	DefaultTimeout = 50 * time.Second

	// DefaultURLCountLimit caps the number of fetches per run.
	DefaultURLCountLimit = 1000000

	// DefaultDepthLimit caps the link distance from the root.
	DefaultDepthLimit = 1000

	// MaxDepthLimit is the deepest crawl a report can still represent.
	MaxDepthLimit = sitemap.MaxTreeDepth

	// DefaultWorkers is the number of concurrent fetches.
	// One worker reproduces a strictly sequential crawl.
	DefaultWorkers = 1

	// DefaultMaxBodySize limits how much of a response body is read.
	// 2MB is sufficient for HTML pages while preventing memory exhaustion.
	DefaultMaxBodySize = 2 * 1024 * 1024

	// DefaultMaxRedirects is how many redirect hops a fetch follows.
	DefaultMaxRedirects = 10

	// DefaultUserAgent identifies sitemapper in HTTP requests.
	// Using a descriptive User-Agent allows operators to identify crawler
	// traffic in their logs.
	DefaultUserAgent = "sitemapper/1.0 (+https://github.com/nao1215/sitemapper)"

	// DefaultReportFormat is the format printed when none is requested.
	DefaultReportFormat = "text"
)

// Config holds all configuration options for a crawl.
// This struct is populated from CLI flags and the site file and passed
// through the application via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, ReportConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// Root is the address the crawl starts from.
	// A missing scheme defaults to https.
	Root string

	// Delay is the minimum interval between fetch dispatches across all
	// workers. Zero disables throttling.
	Delay time.Duration

	// Timeout bounds each fetch, including redirects.
	Timeout time.Duration

	// URLCountLimit is the number of fetches one run may dispatch.
	// Nodes left over stay unvisited and a later run resumes them.
	URLCountLimit int

	// DepthLimit is the largest depth that is still fetched.
	// Depth 0 means only fetch the root.
	DepthLimit int

	// SearchText marks pages whose visible text contains it,
	// case-insensitively. Empty disables the search.
	SearchText string

	// Workers is the number of concurrent fetches.
	Workers int

	// MaxBodySize is the maximum response body size in bytes to read.
	// Larger responses are truncated before link extraction.
	MaxBodySize int64

	// MaxRedirects is the number of redirect hops a fetch follows.
	MaxRedirects int

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// ProxyURL routes fetches through an HTTP or SOCKS5 proxy when set,
	// e.g. "socks5://127.0.0.1:9050".
	ProxyURL string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// ConfigFilePath is the path to the site file.
	// If empty, FindConfigFile searches the usual locations.
	ConfigFilePath string

	// SiteConfigs holds per-host settings loaded from the site file.
	SiteConfigs *File

	// DBDir is the base directory for crawl databases. Each crawled host
	// gets its own subdirectory below it.
	// Defaults to XDG data directory (~/.local/share/sitemapper on Linux).
	DBDir string

	// ReportFormat is one of json, text, dot or markdown.
	ReportFormat string

	// ReportFile is the output file path for the JSON report document.
	// When empty, no file is written.
	ReportFile string

	// Reset clears the stored crawl before starting.
	Reset bool
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., timeout, limits).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Delay:         DefaultDelay,
		Timeout:       DefaultTimeout,
		URLCountLimit: DefaultURLCountLimit,
		DepthLimit:    DefaultDepthLimit,
		Workers:       DefaultWorkers,
		MaxBodySize:   DefaultMaxBodySize,
		MaxRedirects:  DefaultMaxRedirects,
		UserAgent:     DefaultUserAgent,
		DBDir:         XDGDataDir(),
		ReportFormat:  DefaultReportFormat,
	}
}

// XDGDataDir returns the XDG data directory for sitemapper.
// On Linux: ~/.local/share/sitemapper
// On macOS: ~/Library/Application Support/sitemapper
// On Windows: %LOCALAPPDATA%\sitemapper
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitemapper.
// On Linux: ~/.config/sitemapper
// On macOS: ~/Library/Application Support/sitemapper
// On Windows: %APPDATA%\sitemapper
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// SiteDBDir returns the database directory for the host of root below
// baseDir. Ports become part of the directory name, so
// example.com:8080 and example.com keep separate crawls.
func SiteDBDir(baseDir, root string) (string, error) {
	canonical, err := urlnorm.Canonicalize(root, "")
	if err != nil {
		return "", err
	}
	host, err := urlnorm.Domain(canonical)
	if err != nil {
		return "", err
	}

	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\', '@', '[', ']':
			return '_'
		}
		return r
	}, host)
	return filepath.Join(baseDir, name), nil
}

// Site returns the merged site file settings for the host of the root.
// It returns the zero SiteConfig when no site file was loaded.
func (c *Config) Site() SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}

	host := c.Root
	if canonical, err := urlnorm.Canonicalize(c.Root, ""); err == nil {
		if h, err := urlnorm.Domain(canonical); err == nil {
			host = h
		}
	}
	return c.SiteConfigs.GetSiteConfig(host)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any crawling begins.
//
// We chose to return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return ErrNoTarget
	}
	if _, err := urlnorm.Canonicalize(c.Root, ""); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}

	// Timeout must be positive; zero timeout would cause immediate failures
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	// Delay must be non-negative; zero disables throttling
	if c.Delay < 0 {
		return ErrInvalidDelay
	}

	if c.URLCountLimit <= 0 {
		return ErrInvalidURLCountLimit
	}

	if c.DepthLimit < 0 || c.DepthLimit > MaxDepthLimit {
		return ErrInvalidDepthLimit
	}

	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if c.MaxBodySize <= 0 {
		return ErrInvalidMaxBodySize
	}

	if c.MaxRedirects < 0 {
		return ErrInvalidMaxRedirects
	}

	switch strings.ToLower(c.ReportFormat) {
	case "json", "text", "dot", "markdown", "md":
	default:
		return ErrInvalidReportFormat
	}

	return nil
}
