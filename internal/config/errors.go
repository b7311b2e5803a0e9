package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoTarget is returned when no root URL is given.
	ErrNoTarget = errors.New("no target specified: provide the root URL to crawl")

	// ErrInvalidRoot is returned when the root URL cannot be canonicalized.
	ErrInvalidRoot = errors.New("invalid root URL")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	// A timeout of zero or negative would cause immediate fetch failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidDelay is returned when the delay is negative.
	// Use 0 for no delay between requests.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidURLCountLimit is returned when the URL count limit is not positive.
	ErrInvalidURLCountLimit = errors.New("invalid url count limit: must be positive")

	// ErrInvalidDepthLimit is returned when the depth limit is negative or
	// deeper than a report can hold.
	ErrInvalidDepthLimit = errors.New("invalid depth limit: must be between 0 and 4096")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is not positive.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be positive")

	// ErrInvalidMaxRedirects is returned when the redirect limit is negative.
	ErrInvalidMaxRedirects = errors.New("invalid max redirects: must be non-negative")

	// ErrInvalidReportFormat is returned for an unknown report format.
	ErrInvalidReportFormat = errors.New("invalid report format: must be json, text, dot or markdown")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidConfigFile is returned when the site file fails validation.
	ErrInvalidConfigFile = errors.New("invalid configuration file")
)
