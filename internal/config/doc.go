// Package config provides configuration structures and utilities for
// brokenlink. It holds the crawl limits, transport settings, report outputs
// and server options, and loads per-site settings from a YAML file.
package config
