// Package fetcher retrieves pages over HTTP for the crawler.
//
// HTTPFetcher follows redirects itself and reports the final address, caps
// the amount of content read per page and decodes gzip, deflate and brotli
// bodies. Truncation at the cap is not an error; the result is flagged
// instead.
package fetcher
