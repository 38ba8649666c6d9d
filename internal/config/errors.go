package config

import "errors"

// Configuration validation errors returned by Config.Validate and
// Config.ValidateServer.
var (
	// ErrNoTarget is returned when no start URL was given to scan.
	ErrNoTarget = errors.New("no target specified: provide at least one start URL")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidMaxURLs is returned when fewer than one URL may be validated.
	ErrInvalidMaxURLs = errors.New("invalid max URLs: must be at least 1")

	// ErrInvalidMaxDepth is returned when the crawl depth is negative.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidDelay is returned when the delay between requests is negative.
	// Use 0 for no delay.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 for the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidMaxConcurrent is returned when the server may not run any scan.
	ErrInvalidMaxConcurrent = errors.New("invalid max concurrent scans: must be positive")

	// ErrInvalidRetention is returned when the retention period is negative.
	ErrInvalidRetention = errors.New("invalid retention: must be non-negative")

	// ErrMissingListenAddress is returned when the server has nowhere to listen.
	ErrMissingListenAddress = errors.New("missing listen address")
)
