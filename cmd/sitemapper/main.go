// Package main provides the entry point for the sitemapper CLI.
//
// sitemapper crawls one website breadth-first, stays on the root's domain and
// records every address it finds in a local database. Interrupted or
// budget-limited crawls resume where they stopped, and the result can be
// exported as a nested sitemap in several formats.
//
// Usage:
//
//	sitemapper crawl <url>
//	sitemapper report <url>
//
// See --help for all available options.
package main

// main is the entry point for sitemapper.
func main() {
	Execute()
}
