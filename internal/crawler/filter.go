package crawler

import (
	"net/url"
	"path"
	"strings"
)

// PathFilter restricts traversal by URL path.
//
// Logic:
//  1. If the path matches any ignore pattern, the URL is skipped
//  2. If follow patterns are set and none matches, the URL is skipped
//  3. Otherwise the URL is allowed
type PathFilter struct {
	// Ignore lists glob patterns of paths never to crawl (e.g. "/admin/*", "*.pdf").
	Ignore []string

	// Follow lists glob patterns of paths to crawl exclusively.
	// Empty means every path not ignored is allowed.
	Follow []string
}

// Allows reports whether targetURL passes the filter.
func (f PathFilter) Allows(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	p := u.Path
	if p == "" {
		p = "/"
	}

	for _, pattern := range f.Ignore {
		if matchPattern(pattern, p) {
			return false
		}
	}

	if len(f.Follow) == 0 {
		return true
	}
	for _, pattern := range f.Follow {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// IsZero reports whether the filter allows everything.
func (f PathFilter) IsZero() bool {
	return len(f.Ignore) == 0 && len(f.Follow) == 0
}

// matchPattern checks if a URL path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing "/*" to match the prefix and everything below it
//   - a leading "*." to match an extension anywhere
//
// Examples:
//   - "/admin/*" matches "/admin", "/admin/users" and "/admin/users/edit"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*."); ok {
		if strings.HasSuffix(p, "."+ext) {
			return true
		}
	}

	// URL paths always use "/", so path.Match is the right matcher even
	// on platforms with a different file separator.
	if matched, err := path.Match(pattern, p); err == nil && matched {
		return true
	}

	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
	}

	return false
}
