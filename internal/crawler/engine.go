package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/brokenlink/internal/httpclient"
	"github.com/nao1215/brokenlink/internal/model"
	"golang.org/x/time/rate"
)

// DefaultMaxBodySize limits how much of a page body is parsed for links.
const DefaultMaxBodySize = 5 * 1024 * 1024

// Engine runs scans. An Engine holds only configuration; every Run gets its
// own frontier and result, so one Engine may run several scans at once.
type Engine struct {
	client         *http.Client
	validator      *Validator
	logger         *slog.Logger
	maxBodySize    int64
	ignorePatterns []string
	followPatterns []string
	robots         *RobotsChecker
	onRecord       func(model.LinkRecord)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxBodySize sets the maximum page body size read for link extraction.
func WithMaxBodySize(size int64) Option {
	return func(e *Engine) {
		if size > 0 {
			e.maxBodySize = size
		}
	}
}

// WithIgnorePatterns sets URL path patterns that are never offered to the
// frontier. Patterns use glob syntax (e.g., "/admin/*", "*.pdf").
func WithIgnorePatterns(patterns []string) Option {
	return func(e *Engine) {
		e.ignorePatterns = patterns
	}
}

// WithFollowPatterns restricts page crawling to URL paths matching one of
// the patterns. Non-matching URLs are still validated.
func WithFollowPatterns(patterns []string) Option {
	return func(e *Engine) {
		e.followPatterns = patterns
	}
}

// WithRobots makes the engine skip crawling pages disallowed by robots.txt.
// Disallowed URLs are still validated.
func WithRobots(checker *RobotsChecker) Option {
	return func(e *Engine) {
		e.robots = checker
	}
}

// WithRecordHook registers a function called with every record right after
// it is added to the result. It runs on the scan goroutine.
func WithRecordHook(fn func(model.LinkRecord)) Option {
	return func(e *Engine) {
		e.onRecord = fn
	}
}

// NewEngine returns an Engine that issues requests through client.
func NewEngine(client *http.Client, opts ...Option) *Engine {
	e := &Engine{
		client:      client,
		validator:   NewValidator(client),
		logger:      slog.Default(),
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scan runs one scan with a default client and engine.
func Scan(ctx context.Context, cfg model.ScanConfig) (*model.ScanResult, error) {
	client, err := httpclient.New(httpclient.Options{})
	if err != nil {
		return nil, err
	}
	return NewEngine(client).Run(ctx, cfg)
}

// Run executes a scan and returns its frozen result.
func (e *Engine) Run(ctx context.Context, cfg model.ScanConfig) (*model.ScanResult, error) {
	return e.RunLive(ctx, cfg, model.NewLiveResult(cfg))
}

// RunLive executes a scan, writing records into live as they are produced so
// that other goroutines can read progress through live.Snapshot.
//
// An error is returned only when the scan cannot start: the configuration is
// invalid or the start URL does not normalize. Per-link failures become
// error records. Cancelling ctx stops the scan at the next iteration and the
// records gathered so far are returned with Cancelled set.
func (e *Engine) RunLive(ctx context.Context, cfg model.ScanConfig, live *model.LiveResult) (*model.ScanResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start, err := Normalize(cfg.StartURL, "")
	if err != nil {
		return nil, fmt.Errorf("%w: start URL: %w", model.ErrInvalidConfig, err)
	}

	domain := Domain(start)
	live.Begin(domain, time.Now())

	logger := e.logger.With("start_url", start)
	logger.Info("scan started",
		"max_urls", cfg.MaxURLs,
		"max_depth", cfg.MaxDepth,
		"delay", cfg.Delay,
		"same_domain_only", cfg.SameDomainOnly)

	frontier := NewFrontier(cfg.MaxURLs, cfg.MaxDepth)
	frontier.Offer(start, 0)

	limiter := newLimiter(cfg.Delay)
	cancelled := false

	for {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		entry, ok := frontier.Next()
		if !ok {
			break
		}

		if err := limiter.Wait(ctx); err != nil {
			cancelled = true
			break
		}

		outcome := e.validator.Validate(ctx, entry.URL)
		if ctx.Err() != nil {
			// The request was cut short by cancellation; its record is not trustworthy.
			cancelled = true
			break
		}

		rec := outcome.Record
		var children []string
		if e.shouldCrawl(ctx, cfg, domain, entry, outcome) {
			links, err := e.extract(ctx, outcome.FinalURL)
			if err != nil {
				logger.Warn("link extraction failed", "url", entry.URL, "error", err)
			} else {
				rec.Kind = model.KindPage
				children = links
			}
		}

		live.Add(rec)
		if e.onRecord != nil {
			e.onRecord(rec)
		}
		logger.Debug("link checked",
			"url", rec.URL,
			"status", rec.Status,
			"status_code", rec.StatusCode,
			"depth", entry.Depth,
			"kind", rec.Kind)

		for _, child := range children {
			if e.ignored(child) {
				continue
			}
			frontier.Offer(child, entry.Depth+1)
		}
	}

	result := live.Finish(time.Now(), cancelled)
	logger.Info("scan finished",
		"processed", result.Statistics.TotalProcessed,
		"working", result.Statistics.WorkingCount,
		"broken", result.Statistics.BrokenCount,
		"errors", result.Statistics.ErrorCount,
		"pages", result.Statistics.VisitedPagesCount,
		"cancelled", cancelled,
		"duration", result.Duration())
	return result, nil
}

// newLimiter spaces events by delay. A zero delay never waits.
func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// shouldCrawl decides whether a validated URL's body is parsed for links.
func (e *Engine) shouldCrawl(ctx context.Context, cfg model.ScanConfig, domain string, entry Entry, outcome Outcome) bool {
	if entry.Depth >= cfg.MaxDepth {
		return false
	}
	if outcome.Record.Status != model.StatusWorking || !isHTML(outcome.ContentType) {
		return false
	}
	// A same-domain link that redirects off-site is still external.
	if cfg.SameDomainOnly && (!SameDomain(domain, entry.URL) || !SameDomain(domain, canonical(outcome.FinalURL))) {
		return false
	}
	if !e.followed(entry.URL) {
		return false
	}
	if e.robots != nil && !e.robots.Allowed(ctx, entry.URL) {
		return false
	}
	return true
}

// canonical normalizes a response URL, keeping it as is when it cannot be.
func canonical(raw string) string {
	if n, err := Normalize(raw, ""); err == nil {
		return n
	}
	return raw
}

// extract fetches pageURL and returns the links it contains.
func (e *Engine) extract(ctx context.Context, pageURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d", errPageFetch, resp.StatusCode)
	}

	base := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL.String()
	}
	return ExtractLinks(io.LimitReader(resp.Body, e.maxBodySize), base)
}

var errPageFetch = errors.New("page fetch failed")

// ignored reports whether target matches an ignore pattern.
func (e *Engine) ignored(target string) bool {
	if len(e.ignorePatterns) == 0 {
		return false
	}
	path := urlPath(target)
	for _, pattern := range e.ignorePatterns {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// followed reports whether target may be crawled under the follow patterns.
// Empty follow patterns allow everything.
func (e *Engine) followed(target string) bool {
	if len(e.followPatterns) == 0 {
		return true
	}
	path := urlPath(target)
	for _, pattern := range e.followPatterns {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

func urlPath(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing "/*" to match everything below a prefix
//   - a leading "*." to match a file extension anywhere
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*."); ok {
		if strings.HasSuffix(path, "."+ext) {
			return true
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}
	return false
}
