package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/brokenlink/internal/httpclient"
	"github.com/nao1215/brokenlink/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "brokenlink"

	// DefaultTimeout bounds each validation or page request.
	DefaultTimeout = httpclient.DefaultTimeout

	// DefaultMaxRedirects bounds the redirect chain followed per request.
	DefaultMaxRedirects = httpclient.DefaultMaxRedirects

	// DefaultUserAgent identifies brokenlink in HTTP requests.
	DefaultUserAgent = httpclient.DefaultUserAgent

	// DefaultMaxBodySize limits how much of a page is read for links.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultBatchSize is the number of start URLs scanned at once.
	// One keeps per-site politeness simple: sites are scanned in turn.
	DefaultBatchSize = 1

	// DefaultListenAddress is where the API server listens.
	DefaultListenAddress = ":8000"

	// DefaultMaxConcurrent is the number of API scans run at once.
	DefaultMaxConcurrent = 4
)

// Config holds all configuration options for brokenlink.
// It is populated from CLI flags and the optional YAML file and passed
// through the application rather than kept in global state.
type Config struct {
	// Targets are the start URLs to scan.
	Targets []string

	// MaxURLs is the total number of URLs validated per scan.
	MaxURLs int

	// MaxDepth is the maximum link distance from the start URL.
	// Zero validates only the start URL.
	MaxDepth int

	// Delay is the minimum spacing between validation requests of a scan.
	Delay time.Duration

	// External disables the same-domain restriction, so links to other
	// hosts are validated and crawled too.
	External bool

	// Timeout is the timeout for each HTTP request.
	Timeout time.Duration

	// MaxRedirects is the longest redirect chain followed.
	MaxRedirects int

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// Proxy routes requests through an HTTP or SOCKS5 proxy
	// (e.g., "socks5://127.0.0.1:1080").
	Proxy string

	// RespectRobots skips crawling pages disallowed by robots.txt.
	// Disallowed URLs are still validated.
	RespectRobots bool

	// MaxBodySize is the maximum page body size in bytes read for links.
	// Zero means DefaultMaxBodySize.
	MaxBodySize int64

	// BatchSize is the number of start URLs scanned concurrently.
	BatchSize int

	// Verbose enables debug logging.
	Verbose bool

	// Quiet suppresses per-link progress lines.
	Quiet bool

	// FailOnBroken makes the scan command exit non-zero when broken or
	// error links were found.
	FailOnBroken bool

	// ConfigFilePath is the path to the YAML site file. When empty the
	// file is searched as described in FindConfigFile.
	ConfigFilePath string

	// SiteConfigs holds the site file contents, if one was loaded.
	SiteConfigs *File

	// JSONFile, CSVFile and MarkdownFile are report output paths.
	// Empty means the format is not written.
	JSONFile     string
	CSVFile      string
	MarkdownFile string

	// DBDir is the directory of the scan archive.
	DBDir string

	// SaveToDB stores finished scans in the archive.
	SaveToDB bool

	// ListenAddress is the API server address.
	ListenAddress string

	// DownloadDir receives the JSON report of every API scan.
	// Empty disables report files.
	DownloadDir string

	// MaxConcurrent is the number of API scans run at once.
	MaxConcurrent int

	// Retention drops finished API scans from memory after this period.
	// Zero keeps them until the server stops.
	Retention time.Duration

	// LogFile additionally writes server logs to a rotated file.
	LogFile string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxURLs:       model.DefaultMaxURLs,
		MaxDepth:      model.DefaultMaxDepth,
		Delay:         model.DefaultDelay,
		Timeout:       DefaultTimeout,
		MaxRedirects:  DefaultMaxRedirects,
		UserAgent:     DefaultUserAgent,
		MaxBodySize:   DefaultMaxBodySize,
		BatchSize:     DefaultBatchSize,
		DBDir:         XDGDataDir(),
		SaveToDB:      true,
		ListenAddress: DefaultListenAddress,
		DownloadDir:   filepath.Join(XDGDataDir(), "downloads"),
		MaxConcurrent: DefaultMaxConcurrent,
	}
}

// XDGDataDir returns the XDG data directory for brokenlink.
// On Linux: ~/.local/share/brokenlink
// On macOS: ~/Library/Application Support/brokenlink
// On Windows: %LOCALAPPDATA%\brokenlink
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for brokenlink.
// On Linux: ~/.config/brokenlink
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the options used by a scan and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	return c.validateCrawl()
}

// ValidateServer checks the options used by the API server.
func (c *Config) ValidateServer() error {
	if c.ListenAddress == "" {
		return ErrMissingListenAddress
	}
	if c.MaxConcurrent <= 0 {
		return ErrInvalidMaxConcurrent
	}
	if c.Retention < 0 {
		return ErrInvalidRetention
	}
	return c.validateCrawl()
}

func (c *Config) validateCrawl() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxURLs < 1 {
		return ErrInvalidMaxURLs
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.Delay < 0 {
		return ErrInvalidDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}

// ScanConfig returns the scan configuration for target. A depth set for
// the target's host in the site file overrides MaxDepth.
func (c *Config) ScanConfig(target string) model.ScanConfig {
	cfg := model.ScanConfig{
		StartURL:       target,
		MaxURLs:        c.MaxURLs,
		MaxDepth:       c.MaxDepth,
		Delay:          c.Delay,
		SameDomainOnly: !c.External,
	}
	if site := c.Site(target); site.Depth > 0 {
		cfg.MaxDepth = site.Depth
	}
	return cfg
}

// Site returns the merged site configuration for the host of target.
func (c *Config) Site(target string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(hostOf(target))
}

// HTTPClientOptions returns the transport options, including the headers
// and cookies of every configured site.
func (c *Config) HTTPClientOptions() httpclient.Options {
	opts := httpclient.Options{
		Timeout:      c.Timeout,
		MaxRedirects: c.MaxRedirects,
		UserAgent:    c.UserAgent,
		Proxy:        c.Proxy,
	}
	if c.SiteConfigs == nil {
		return opts
	}

	opts.Sites = make(map[string]httpclient.Site, len(c.SiteConfigs.Sites))
	for host := range c.SiteConfigs.Sites {
		site := c.SiteConfigs.GetSiteConfig(host)
		opts.Sites[strings.ToLower(host)] = httpclient.Site{
			Headers: site.Headers,
			Cookie:  site.Cookie,
		}
	}
	return opts
}

// hostOf returns the lower-cased host[:port] of a URL, or the input itself
// when it has no scheme.
func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return strings.ToLower(target)
	}
	return strings.ToLower(u.Host)
}
