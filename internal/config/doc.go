// Package config provides configuration structures and utilities for
// sitemapper. It defines the crawl limits, fetch settings and report
// preferences, and loads per-host settings from the .sitemapper site file.
package config
