package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitemapper/internal/config"
	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/sitemap"
)

// newTestSite starts a small website:
//
//	/        links /a, /b, /old and an external page
//	/a       says hello, links back to / and to /a/deep
//	/a/deep  leaf page
//	/b       404
//	/old     301 to /new
//	/new     leaf page
func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()

	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprintf(w, "<!DOCTYPE html><html><body>%s</body></html>", body)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", page(`<h1>Home</h1>
		<a href="/a">A</a>
		<a href="/b">B</a>
		<a href="/old">Old</a>
		<a href="https://other.test/x">Elsewhere</a>`))
	mux.HandleFunc("/a", page(`<p>Hello World</p><a href="/">Home</a><a href="/a/deep">Deep</a>`))
	mux.HandleFunc("/a/deep", page(`<p>The deep end</p>`))
	mux.HandleFunc("/b", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", page(`<p>New place</p>`))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// emptyConfig writes a site file without site entries so that tests never
// pick up a .sitemapper from the home directory.
func emptyConfig(t *testing.T) string {
	t.Helper()
	return writeConfig(t, "sites: {}\n")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".sitemapper")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// TestNewCrawlCmd tests the crawl command creation.
func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "crawl <url>" {
			t.Errorf("expected use 'crawl <url>', got %q", cmd.Use)
		}
	})

	t.Run("requires exactly one argument", func(t *testing.T) {
		t.Parallel()
		if err := cmd.Args(cmd, nil); err == nil {
			t.Error("expected error without arguments")
		}
		if err := cmd.Args(cmd, []string{"a", "b"}); err == nil {
			t.Error("expected error with two arguments")
		}
	})

	flags := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"delay", "D", config.DefaultDelay.String()},
		{"timeout", "t", config.DefaultTimeout.String()},
		{"url-count-limit", "n", "1000000"},
		{"depth-limit", "d", "1000"},
		{"search", "s", ""},
		{"workers", "w", "1"},
		{"user-agent", "A", config.DefaultUserAgent},
		{"format", "f", "text"},
		{"output", "o", ""},
		{"config", "c", ""},
		{"reset", "", "false"},
		{"max-body-size", "", "2097152"},
		{"max-redirects", "", "10"},
		{"proxy", "", ""},
	}
	for _, tt := range flags {
		t.Run("has "+tt.name+" flag", func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

// TestBuildConfig tests flag and site file merging.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	siteFile := `defaults:
  delay: 2s
  ignorePatterns: ["/logout*"]
sites:
  example.com:
    depth: 3
    searchText: sale
    cookie: "sid=1"
`

	t.Run("site file fills unset flags", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"-c", writeConfig(t, siteFile)}); err != nil {
			t.Fatal(err)
		}
		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Root != "https://example.com" {
			t.Errorf("Root = %q", cfg.Root)
		}
		if cfg.DepthLimit != 3 || cfg.Delay != 2*time.Second || cfg.SearchText != "sale" {
			t.Errorf("site values not applied: depth=%d delay=%v search=%q", cfg.DepthLimit, cfg.Delay, cfg.SearchText)
		}
		if site := cfg.Site(); site.Cookie != "sid=1" || len(site.IgnorePatterns) != 1 {
			t.Errorf("Site() = %+v", site)
		}
		if cfg.DBDir != config.XDGDataDir() {
			t.Errorf("DBDir = %q, want XDG default", cfg.DBDir)
		}
	})

	t.Run("flags win over site file", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		args := []string{"-c", writeConfig(t, siteFile), "-d", "7", "--delay", "0s", "-s", "clearance"}
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatal(err)
		}
		cfg, err := buildConfig(cmd, []string{"https://EXAMPLE.com/"})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.DepthLimit != 7 || cfg.Delay != 0 || cfg.SearchText != "clearance" {
			t.Errorf("flags overridden: depth=%d delay=%v search=%q", cfg.DepthLimit, cfg.Delay, cfg.SearchText)
		}
	})

	t.Run("other hosts use defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"-c", writeConfig(t, siteFile)}); err != nil {
			t.Fatal(err)
		}
		cfg, err := buildConfig(cmd, []string{"https://another.example"})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.DepthLimit != config.DefaultDepthLimit || cfg.Delay != 2*time.Second {
			t.Errorf("depth=%d delay=%v", cfg.DepthLimit, cfg.Delay)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"-c", filepath.Join(t.TempDir(), "missing.yaml")}); err != nil {
			t.Fatal(err)
		}
		if _, err := buildConfig(cmd, []string{"https://example.com"}); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("invalid config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		path := writeConfig(t, "defaults:\n  depth: -1\n")
		if err := cmd.ParseFlags([]string{"-c", path}); err != nil {
			t.Fatal(err)
		}
		if _, err := buildConfig(cmd, []string{"https://example.com"}); err == nil {
			t.Error("expected validation error")
		}
	})
}

// TestCrawl tests complete crawls against a local site.
func TestCrawl(t *testing.T) {
	t.Parallel()

	t.Run("builds the sitemap", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		stdout, stderr, err := execute(t, "crawl", srv.URL,
			"--db-dir", t.TempDir(), "-c", emptyConfig(t),
			"--delay", "0", "--search", "HELLO", "-f", "json")
		if err != nil {
			t.Fatalf("crawl failed: %v\nstderr: %s", err, stderr)
		}
		if !strings.Contains(stderr, "Crawl complete.") {
			t.Errorf("stderr = %q", stderr)
		}

		tree, err := sitemap.Decode(strings.NewReader(stdout))
		if err != nil {
			t.Fatalf("stdout is not a sitemap: %v\n%s", err, stdout)
		}
		if tree.URL != srv.URL+"/" {
			t.Errorf("root = %s", tree.URL)
		}
		if len(tree.Links) != 3 {
			t.Fatalf("expected 3 children of the root, got %d", len(tree.Links))
		}

		a, b, moved := tree.Links[0], tree.Links[1], tree.Links[2]
		if a.URL != srv.URL+"/a" || a.MatchResult == nil || *a.MatchResult != "HELLO" {
			t.Errorf("unexpected /a node %+v", a)
		}
		if len(a.Links) != 1 || a.Links[0].URL != srv.URL+"/a/deep" {
			t.Errorf("unexpected children of /a: %+v", a.Links)
		}
		if b.Status != model.Success(http.StatusNotFound) {
			t.Errorf("/b status = %v", b.Status)
		}
		if moved.URL != srv.URL+"/new" || moved.RedirectedFrom == nil || *moved.RedirectedFrom != srv.URL+"/old" {
			t.Errorf("unexpected redirect node %+v", moved)
		}
		if strings.Contains(stdout, "other.test") {
			t.Error("external link must not be recorded")
		}
	})

	t.Run("resumes after the URL budget", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		dbDir := t.TempDir()
		cfgPath := emptyConfig(t)

		stdout, stderr, err := execute(t, "crawl", srv.URL, "--db-dir", dbDir, "-c", cfgPath,
			"--delay", "0", "-n", "2")
		if err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		if !strings.Contains(stderr, "URL count limit reached") {
			t.Errorf("stderr = %q", stderr)
		}
		if !strings.Contains(stdout, "unvisited") {
			t.Errorf("expected unvisited nodes in the partial report:\n%s", stdout)
		}

		stdout, stderr, err = execute(t, "crawl", srv.URL, "--db-dir", dbDir, "-c", cfgPath,
			"--delay", "0", "-f", "json")
		if err != nil {
			t.Fatalf("second run failed: %v", err)
		}
		if !strings.Contains(stderr, "Crawl complete.") {
			t.Errorf("stderr = %q", stderr)
		}
		tree, err := sitemap.Decode(strings.NewReader(stdout))
		if err != nil {
			t.Fatal(err)
		}
		if s := sitemap.Summarize(tree); s.Total != 5 || s.Unvisited != 0 {
			t.Errorf("summary after resume = %+v", s)
		}

		stdout, _, err = execute(t, "history", srv.URL, "--db-dir", dbDir)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(stdout, model.RunOutcomeBudget) || !strings.Contains(stdout, model.RunOutcomeCompleted) {
			t.Errorf("history = %s", stdout)
		}
	})

	t.Run("depth limit zero fetches only the root", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		stdout, _, err := execute(t, "crawl", srv.URL, "--db-dir", t.TempDir(), "-c", emptyConfig(t),
			"--delay", "0", "-d", "0", "-f", "json")
		if err != nil {
			t.Fatal(err)
		}
		tree, err := sitemap.Decode(strings.NewReader(stdout))
		if err != nil {
			t.Fatal(err)
		}
		for _, child := range tree.Links {
			if child.Status.Kind != model.StatusUnvisited {
				t.Errorf("%s was fetched beyond the depth limit", child.URL)
			}
		}
	})

	t.Run("saves the report file and uses site settings", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		host := strings.TrimPrefix(srv.URL, "http://")
		cfgPath := writeConfig(t, fmt.Sprintf("sites:\n  %q:\n    searchText: deep end\n", host))
		reportPath := filepath.Join(t.TempDir(), "out", "sitemap.json")

		_, _, err := execute(t, "crawl", srv.URL, "--db-dir", t.TempDir(), "-c", cfgPath,
			"--delay", "0", "-o", reportPath)
		if err != nil {
			t.Fatal(err)
		}

		info, err := os.Stat(reportPath)
		if err != nil {
			t.Fatalf("report file not written: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("report permissions = %o, want 600", perm)
		}

		tree, err := loadReport(reportPath)
		if err != nil {
			t.Fatal(err)
		}
		var matched []string
		if err := sitemap.Walk(tree, func(n, _ *model.TreeNode, _ int) error {
			if n.Matched() {
				matched = append(matched, n.URL)
			}
			return nil
		}); err != nil {
			t.Fatal(err)
		}
		if len(matched) != 1 || matched[0] != srv.URL+"/a/deep" {
			t.Errorf("matched = %v", matched)
		}
	})

	t.Run("reset starts over", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		dbDir := t.TempDir()
		cfgPath := emptyConfig(t)

		if _, _, err := execute(t, "crawl", srv.URL, "--db-dir", dbDir, "-c", cfgPath, "--delay", "0"); err != nil {
			t.Fatal(err)
		}
		_, stderr, err := execute(t, "crawl", srv.URL, "--db-dir", dbDir, "-c", cfgPath, "--delay", "0", "--reset")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(stderr, "Fetched 5 page(s)") {
			t.Errorf("expected a full crawl after reset, stderr = %q", stderr)
		}
	})

	t.Run("interrupted crawl writes the report and fails", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		cfg := config.NewConfig()
		cfg.Root = srv.URL
		cfg.DBDir = t.TempDir()
		cfg.Delay = 0

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var stdout, stderr bytes.Buffer
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		err := runCrawl(ctx, cfg, logger, &stdout, &stderr)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected a cancellation error, got %v", err)
		}
		if !strings.Contains(stderr.String(), "Crawl interrupted.") {
			t.Errorf("stderr = %q", stderr.String())
		}
		if !strings.Contains(stdout.String(), srv.URL+"/") {
			t.Errorf("expected the partial report on stdout, got %q", stdout.String())
		}

		db, err := openSiteDB(cfg.DBDir, srv.URL, false)
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		runs, err := db.ListRuns(context.Background(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 1 || runs[0].Outcome != model.RunOutcomeInterrupted {
			t.Errorf("runs = %+v", runs)
		}
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name string
			args []string
		}{
			{"unsupported scheme", []string{"crawl", "ftp://example.com"}},
			{"negative delay", []string{"crawl", "https://example.com", "--delay", "-1s"}},
			{"zero workers", []string{"crawl", "https://example.com", "-w", "0"}},
			{"unknown format", []string{"crawl", "https://example.com", "-f", "pdf"}},
			{"depth beyond maximum", []string{"crawl", "https://example.com", "-d", "5000"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				args := append(tt.args, "--db-dir", t.TempDir(), "-c", emptyConfig(t))
				if _, _, err := execute(t, args...); err == nil {
					t.Error("expected error")
				}
			})
		}
	})
}
