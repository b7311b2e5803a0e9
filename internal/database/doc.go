// Package database provides the SQLite-backed node store for sitemapper.
//
// The CrawlDB stores:
//   - One node per canonical URL with its status, parent and depth
//   - The seen-set of every URL ever admitted
//   - Redirect aliases for URLs that were collapsed into another node
//   - The history of crawler runs
//
// Design decision: We use SQLite (via modernc.org/sqlite) because:
// 1. The whole crawl state is a single file that can be copied or deleted
// 2. CGO-free implementation allows easy cross-compilation
// 3. Transactions make each processed page an atomic unit of progress
package database
