package model

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxURLs is the default upper bound on validated URLs per scan.
	DefaultMaxURLs = 100

	// DefaultMaxDepth is the default maximum link depth from the start URL.
	DefaultMaxDepth = 2

	// DefaultDelay is the default spacing between validation requests.
	DefaultDelay = time.Second
)

// ErrInvalidConfig is returned when a ScanConfig cannot be used to start a scan.
var ErrInvalidConfig = errors.New("invalid scan configuration")

// ScanConfig holds the parameters of one scan. It is treated as an immutable
// value once a scan has started.
type ScanConfig struct {
	// StartURL is the absolute http(s) URL the crawl starts from.
	StartURL string `json:"start_url"`

	// MaxURLs bounds how many URLs are validated. Must be at least 1.
	MaxURLs int `json:"max_urls"`

	// MaxDepth is the maximum link distance from StartURL.
	// Zero means only StartURL itself is validated.
	MaxDepth int `json:"max_depth"`

	// Delay is the minimum spacing between consecutive validation requests.
	Delay time.Duration `json:"delay"`

	// SameDomainOnly restricts page crawling to the start URL's domain.
	// Off-domain links are still validated, never crawled.
	SameDomainOnly bool `json:"same_domain_only"`
}

// DefaultScanConfig returns a ScanConfig for startURL with default limits.
func DefaultScanConfig(startURL string) ScanConfig {
	return ScanConfig{
		StartURL:       startURL,
		MaxURLs:        DefaultMaxURLs,
		MaxDepth:       DefaultMaxDepth,
		Delay:          DefaultDelay,
		SameDomainOnly: true,
	}
}

// Validate checks the numeric bounds and the presence of a start URL.
// URL syntax is checked by the crawler when it normalizes StartURL.
func (c ScanConfig) Validate() error {
	if c.StartURL == "" {
		return fmt.Errorf("%w: start URL is required", ErrInvalidConfig)
	}
	if c.MaxURLs < 1 {
		return fmt.Errorf("%w: max URLs must be at least 1, got %d", ErrInvalidConfig, c.MaxURLs)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("%w: max depth must not be negative, got %d", ErrInvalidConfig, c.MaxDepth)
	}
	if c.Delay < 0 {
		return fmt.Errorf("%w: delay must not be negative, got %s", ErrInvalidConfig, c.Delay)
	}
	return nil
}
