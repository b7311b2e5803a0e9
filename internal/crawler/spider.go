package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitemapper/internal/fetcher"
	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/urlnorm"
)

const (
	// DefaultDepthLimit is the maximum hop distance from the root.
	DefaultDepthLimit = 1000

	// DefaultURLCountLimit is the maximum number of fetches per run.
	DefaultURLCountLimit = 1000000

	// DefaultDelay is the pause between consecutive fetch dispatches.
	DefaultDelay = 1 * time.Second
)

// Store is the persistent state the Spider drives.
// *database.CrawlDB implements it.
type Store interface {
	Seed(ctx context.Context, root string) (bool, error)
	PendingFrontier(ctx context.Context, depthLimit int) ([]model.FrontierItem, error)
	Node(ctx context.Context, url string) (*model.Node, error)
	MarkPending(ctx context.Context, url string) error
	CommitPage(ctx context.Context, p model.PageResult) (*model.CommitResult, error)
}

// Spider is the frontier controller.
// It walks a site breadth-first from a root, records every discovered
// address in the Store and stops when the frontier is empty or the fetch
// budget is spent. Because the Store holds all progress, calling Crawl
// again with the same root resumes where the previous run stopped.
//
// Design decision: One dispatcher goroutine owns the queue, the budget and
// every Store write, while fetches run on a bounded worker pool because:
//  1. Store mutations never race, so no locking is needed around them
//  2. The budget counts dispatches exactly, whatever the worker count
//  3. Slow servers only occupy workers, never the bookkeeping
type Spider struct {
	store   Store
	fetcher fetcher.Fetcher

	// depthLimit is the maximum depth of a node that may be fetched.
	depthLimit int

	// urlCountLimit is the maximum number of fetches dispatched per Crawl.
	urlCountLimit int

	// delay is the minimum interval between dispatches.
	delay time.Duration

	// throttle enforces delay. Built from delay when not set.
	throttle Throttle

	// workers is the number of concurrent fetches.
	workers int

	// matcher is the optional search predicate.
	matcher *Matcher

	// filter restricts candidate links by path.
	filter PathFilter

	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithDepthLimit sets the maximum crawl depth.
// 0 = only the root, 1 = the root plus the pages it links to, etc.
func WithDepthLimit(depth int) SpiderOption {
	return func(s *Spider) {
		s.depthLimit = depth
	}
}

// WithURLCountLimit sets the maximum number of fetches per run.
func WithURLCountLimit(n int) SpiderOption {
	return func(s *Spider) {
		s.urlCountLimit = n
	}
}

// WithDelay sets the delay between fetch dispatches.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithThrottle replaces the delay-based throttle.
func WithThrottle(t Throttle) SpiderOption {
	return func(s *Spider) {
		s.throttle = t
	}
}

// WithWorkers sets the number of concurrent fetches. Values below 1 mean 1.
func WithWorkers(n int) SpiderOption {
	return func(s *Spider) {
		s.workers = max(n, 1)
	}
}

// WithSearchText flags pages whose visible text contains text, ignoring case.
func WithSearchText(text string) SpiderOption {
	return func(s *Spider) {
		s.matcher = NewMatcher(text)
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.filter.Ignore = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow exclusively.
// Empty means all paths are allowed (subject to ignore patterns).
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.filter.Follow = patterns
	}
}

// WithLogger sets the logger for crawl progress.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpider creates a Spider that records into store and fetches with f.
func NewSpider(store Store, f fetcher.Fetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		store:         store,
		fetcher:       f,
		depthLimit:    DefaultDepthLimit,
		urlCountLimit: DefaultURLCountLimit,
		delay:         DefaultDelay,
		workers:       1,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.throttle == nil {
		s.throttle = NewDelayThrottle(s.delay)
	}

	return s
}

// Stats summarizes one Crawl call.
type Stats struct {
	// Root is the canonical root URL.
	Root string

	// Resumed is true when the store already held this crawl.
	Resumed bool

	// Processed counts dispatched fetches. It never exceeds the URL count limit.
	Processed int

	// Discovered counts nodes added to the store.
	Discovered int

	// Succeeded counts fetches that received an HTTP response.
	Succeeded int

	// Failed counts fetches that ended without a response.
	Failed int

	// Redirects counts fetches whose final address differed.
	Redirects int

	// Matches counts pages flagged by the search predicate.
	Matches int

	// Skipped counts queue entries dropped because another fetch had
	// already settled them.
	Skipped int

	// Remaining is the number of addresses a resumed run would still fetch.
	// It is zero after a storage failure.
	Remaining int

	// Elapsed is the wall time of the run.
	Elapsed time.Duration
}

// BudgetExhausted reports whether the run stopped because of the URL count
// limit while work was left.
func (st *Stats) BudgetExhausted() bool {
	return st.Remaining > 0
}

// Outcome maps the result of Crawl to a run outcome.
func (st *Stats) Outcome(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.RunOutcomeInterrupted
	case err != nil:
		return model.RunOutcomeFailed
	case st.BudgetExhausted():
		return model.RunOutcomeBudget
	default:
		return model.RunOutcomeCompleted
	}
}

// fetched carries one finished fetch back to the dispatcher.
type fetched struct {
	item model.FrontierItem
	page model.PageResult
}

// Crawl walks the site reachable from root.
//
// Cancelling ctx stops new dispatches; fetches already running are finished
// and committed, then Crawl returns the stats with ctx.Err(). A Store error
// aborts the run and is returned as-is. Running out of budget is not an
// error: the leftover frontier stays in the Store for the next run.
func (s *Spider) Crawl(ctx context.Context, root string) (*Stats, error) {
	start := time.Now()

	canonical, err := urlnorm.Canonicalize(root, "")
	if err != nil {
		return nil, fmt.Errorf("invalid root URL: %w", err)
	}
	domain, err := urlnorm.Domain(canonical)
	if err != nil {
		return nil, fmt.Errorf("invalid root URL: %w", err)
	}

	// Store writes and in-flight fetches outlive cancellation so that work
	// already started is never lost.
	storeCtx := context.WithoutCancel(ctx)

	created, err := s.store.Seed(storeCtx, canonical)
	if err != nil {
		return nil, err
	}
	queue, err := s.store.PendingFrontier(storeCtx, s.depthLimit)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Root: canonical, Resumed: !created}
	s.logger.Info("crawl started",
		"root", canonical,
		"resumed", stats.Resumed,
		"frontier", len(queue),
		"workers", s.workers,
	)

	results := make(chan fetched, s.workers)
	var g errgroup.Group
	g.SetLimit(s.workers)

	inflight := 0
	var runErr error

	for {
		for runErr == nil && ctx.Err() == nil && inflight < s.workers &&
			len(queue) > 0 && stats.Processed < s.urlCountLimit {
			item := queue[0]
			queue = queue[1:]

			ok, err := s.dispatchable(storeCtx, item)
			if err != nil {
				runErr = err
				break
			}
			if !ok {
				stats.Skipped++
				continue
			}

			if err := s.throttle.Wait(ctx); err != nil {
				queue = append([]model.FrontierItem{item}, queue...)
				break
			}

			if err := s.store.MarkPending(storeCtx, item.URL); err != nil {
				runErr = err
				break
			}
			stats.Processed++
			inflight++

			g.Go(func() error {
				results <- fetched{item: item, page: s.process(storeCtx, domain, item)}
				return nil
			})
		}

		if inflight == 0 {
			break
		}

		f := <-results
		inflight--
		if runErr != nil {
			continue
		}

		next, err := s.commit(storeCtx, f, stats)
		if err != nil {
			runErr = err
			continue
		}
		queue = append(queue, next...)
	}

	_ = g.Wait()

	// The queue may still hold entries that a redirect collapsed or settled,
	// so the remainder is what the next run would actually fetch.
	if runErr == nil {
		left, err := s.store.PendingFrontier(storeCtx, s.depthLimit)
		if err != nil {
			runErr = err
		} else {
			stats.Remaining = len(left)
		}
	}
	stats.Elapsed = time.Since(start)

	if runErr != nil {
		s.logger.Error("crawl aborted", "root", canonical, "error", runErr)
		return stats, runErr
	}
	if err := ctx.Err(); err != nil {
		s.logger.Warn("crawl interrupted", "root", canonical, "processed", stats.Processed)
		return stats, err
	}

	s.logger.Info("crawl finished",
		"root", canonical,
		"processed", stats.Processed,
		"discovered", stats.Discovered,
		"remaining", stats.Remaining,
		"elapsed", stats.Elapsed,
	)
	return stats, nil
}

// dispatchable reports whether item still needs a fetch. Entries whose node
// was collapsed by a redirect, or settled by one, are skipped.
func (s *Spider) dispatchable(ctx context.Context, item model.FrontierItem) (bool, error) {
	if item.Depth > s.depthLimit {
		return false, nil
	}
	n, err := s.store.Node(ctx, item.URL)
	if err != nil {
		return false, err
	}
	if n == nil || n.Status.IsTerminal() {
		return false, nil
	}
	return true, nil
}

// process fetches one address and derives everything that must be committed
// for it. It runs on a worker goroutine and touches no shared state.
func (s *Spider) process(ctx context.Context, domain string, item model.FrontierItem) model.PageResult {
	page := model.PageResult{Result: model.Result{URL: item.URL, FinalURL: item.URL}}

	res, err := s.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		s.logger.Warn("fetch failed", "url", item.URL, "error", err)
		page.Status = model.Failure(err.Error())
		return page
	}

	page.Status = model.Success(res.StatusCode)
	if final, err := urlnorm.Canonicalize(res.FinalURL, ""); err == nil {
		page.FinalURL = final
	}
	for _, hop := range res.Redirects {
		s.logger.Debug("redirect hop", "url", item.URL, "via", hop)
	}

	if res.StatusCode != http.StatusOK || !res.IsHTML() {
		return page
	}
	if !urlnorm.IsSameDomain(page.FinalURL, domain) {
		s.logger.Debug("redirected off domain, links not followed", "url", item.URL, "final", page.FinalURL)
		return page
	}

	for _, link := range ExtractLinks(res.Body, page.FinalURL) {
		if link == page.FinalURL || !urlnorm.IsSameDomain(link, domain) || !s.filter.Allows(link) {
			continue
		}
		page.Links = append(page.Links, link)
	}

	if s.matcher.Match(res.Body) {
		page.MatchResult = s.matcher.Marker()
	}
	return page
}

// commit records a finished fetch and returns the new queue entries.
func (s *Spider) commit(ctx context.Context, f fetched, stats *Stats) ([]model.FrontierItem, error) {
	res, err := s.store.CommitPage(ctx, f.page)
	if err != nil {
		return nil, err
	}

	switch f.page.Status.Kind {
	case model.StatusSuccess:
		stats.Succeeded++
	case model.StatusError:
		stats.Failed++
	}
	if f.page.Redirected() {
		stats.Redirects++
	}
	stats.Discovered += len(res.Added)

	if !res.Applied {
		s.logger.Debug("result dropped, final address already settled", "url", f.item.URL, "final", res.FinalURL)
		return nil, nil
	}
	if f.page.MatchResult != "" {
		stats.Matches++
	}

	s.logger.Info("page processed",
		"url", res.FinalURL,
		"status", f.page.Status.String(),
		"depth", f.item.Depth,
		"new_links", len(res.Added),
	)

	next := make([]model.FrontierItem, 0, len(res.Added))
	for _, item := range res.Added {
		if item.Depth <= s.depthLimit {
			next = append(next, item)
		}
	}
	return next, nil
}
