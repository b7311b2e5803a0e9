// Package crawler provides the frontier controller of sitemapper.
//
// # Architecture
//
// The package is designed around the Spider type, which coordinates the
// crawl. It pops addresses breadth-first from a work queue, hands them to a
// fetcher.Fetcher on a bounded worker pool and commits each result, together
// with the same-domain links found on the page, to a Store in one step.
//
// Design decision: The queue is the only in-memory state, and it can always
// be rebuilt from the Store because:
//  1. Every discovered address is a node before it is queued
//  2. A node's status says whether it still needs a fetch
//  3. Discovery order is persisted, so breadth-first order survives a restart
//
// # Components
//
//   - Spider: the frontier controller with depth, budget and politeness limits
//   - Parser / ExtractLinks: anchor extraction with <base href> support
//   - Matcher: the optional case-insensitive content search
//   - PathFilter: ignore/follow glob patterns on URL paths
//   - DelayThrottle: the minimum interval between fetch dispatches
//
// # Usage
//
//	spider := crawler.NewSpider(db, httpFetcher, crawler.WithDepthLimit(3))
//	stats, err := spider.Crawl(ctx, "https://example.com")
package crawler
