// Package log provides logging with automatic redaction of secrets, built
// on top of the standard slog package.
//
// A crawl is configured with cookies and authorization headers from the
// site file, and the URLs it logs may carry tokens in their query string.
// RedactingHandler masks all of these before a record reaches the output:
//   - attributes whose key names a secret (cookie, authorization, token, ...)
//   - string values that look like credentials (bearer tokens, JWTs)
//   - sensitive query parameters and passwords inside URL values
//   - sensitive entries of header maps
//
// Even in verbose mode, sensitive values are masked to prevent accidental
// exposure of secrets in logs that may be shared or stored.
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, verbose)
//	logger.Info("fetching", "url", "https://example.com/?token=abc") // token=***REDACTED***
//	slog.SetDefault(logger)
package log
