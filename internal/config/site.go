package config

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SiteConfig holds settings for a single host.
// This allows customizing crawl behavior per site.
type SiteConfig struct {
	// Cookie is an HTTP cookie to use when crawling this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the global User-Agent.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Depth overrides the global depth limit for this site.
	// If zero, the global DepthLimit is used.
	Depth int `yaml:"depth,omitempty"`

	// URLCountLimit overrides the global URL count limit.
	URLCountLimit int `yaml:"urlCountLimit,omitempty"`

	// Delay overrides the global delay, e.g. "500ms".
	Delay time.Duration `yaml:"delay,omitempty"`

	// SearchText overrides the global search text.
	SearchText string `yaml:"searchText,omitempty"`

	// IgnorePatterns are URL patterns to skip during crawling.
	// Patterns are matched against the URL path using glob syntax.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are URL patterns to follow during crawling.
	// If specified, only URLs matching these patterns are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// Validate validates the site settings.
func (s SiteConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Depth, validation.Min(0), validation.Max(MaxDepthLimit)),
		validation.Field(&s.URLCountLimit, validation.Min(0)),
		validation.Field(&s.Delay, validation.Min(time.Duration(0))),
		validation.Field(&s.Headers, validation.By(validHeaders)),
		validation.Field(&s.IgnorePatterns, validation.Each(validation.Required, validation.By(validPattern))),
		validation.Field(&s.FollowPatterns, validation.Each(validation.Required, validation.By(validPattern))),
	)
}

// validHeaders rejects header names net/http would refuse to send.
func validHeaders(value any) error {
	headers, _ := value.(map[string]string)
	for name := range headers {
		if name == "" || strings.ContainsAny(name, " \t\r\n:") {
			return fmt.Errorf("invalid header name %q", name)
		}
		if http.CanonicalHeaderKey(name) == "Host" {
			return errors.New("the Host header cannot be overridden")
		}
	}
	return nil
}

// validPattern rejects malformed glob patterns.
func validPattern(value any) error {
	pattern, _ := value.(string)
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("malformed pattern %q", pattern)
	}
	return nil
}

// File represents the structure of the .sitemapper site file.
type File struct {
	// Sites maps hosts to their settings.
	// Keys are the host with an optional port (e.g., "example.com:8080").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains default settings applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// Validate validates the defaults and every site entry.
func (cf *File) Validate() error {
	for host := range cf.Sites {
		if host == "" || strings.Contains(host, "/") {
			return fmt.Errorf("sites: key %q must be a host name", host)
		}
	}
	return validation.ValidateStruct(cf,
		validation.Field(&cf.Defaults),
		validation.Field(&cf.Sites),
	)
}

// GetSiteConfig returns the configuration for a host.
// It merges the site-specific configuration with defaults.
// Hosts are matched case-insensitively.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	// Start with defaults
	result := cf.Defaults
	result.Headers = cloneHeaders(cf.Defaults.Headers)

	siteConfig, ok := cf.Sites[host]
	if !ok {
		for key, sc := range cf.Sites {
			if strings.EqualFold(key, host) {
				siteConfig, ok = sc, true
				break
			}
		}
	}
	if !ok {
		return result
	}

	// Override with non-zero values
	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if siteConfig.Depth != 0 {
		result.Depth = siteConfig.Depth
	}
	if siteConfig.URLCountLimit != 0 {
		result.URLCountLimit = siteConfig.URLCountLimit
	}
	if siteConfig.Delay != 0 {
		result.Delay = siteConfig.Delay
	}
	if siteConfig.SearchText != "" {
		result.SearchText = siteConfig.SearchText
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}

	return result
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
