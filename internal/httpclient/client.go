package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const (
	// DefaultTimeout bounds a single request including redirects.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRedirects is the redirect hop limit.
	DefaultMaxRedirects = 10

	// DefaultUserAgent identifies the checker to servers.
	DefaultUserAgent = "Mozilla/5.0 (compatible; brokenlink/1.0; +https://github.com/nao1215/brokenlink)"
)

// Site holds static request decorations for one host.
type Site struct {
	Headers map[string]string
	Cookie  string
}

// Options configures New.
type Options struct {
	// Timeout is the per-request timeout. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxRedirects is the redirect hop limit. Zero means DefaultMaxRedirects.
	MaxRedirects int

	// UserAgent is sent with every request. Empty means DefaultUserAgent.
	UserAgent string

	// Proxy is "socks5://host:port", "http://host:port" or empty for a direct connection.
	Proxy string

	// Sites maps a host (as in URL.Host) to its headers and cookie.
	Sites map[string]Site
}

// New returns an http.Client configured by opts.
func New(opts Options) (*http.Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	transport, err := newTransport(opts)
	if err != nil {
		return nil, err
	}

	sites := make(map[string]Site, len(opts.Sites))
	for host, site := range opts.Sites {
		sites[strings.ToLower(host)] = site
	}

	return &http.Client{
		Transport: &decoratingRoundTripper{
			base:      transport,
			userAgent: opts.UserAgent,
			sites:     sites,
		},
		Timeout:       opts.Timeout,
		CheckRedirect: RedirectPolicy(opts.MaxRedirects),
	}, nil
}

func newTransport(opts Options) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   opts.Timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.Timeout,
		ResponseHeaderTimeout: opts.Timeout,
	}

	if opts.Proxy == "" {
		return transport, nil
	}

	u, err := parseProxy(opts.Proxy)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		d, err := proxy.FromURL(u, dialer)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
		}
		transport.DialContext = contextDialer(d)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxy, u.Scheme)
	}
	return transport, nil
}

// parseProxy accepts a URL or a bare "host:port", which is treated as SOCKS5.
func parseProxy(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "socks5://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return nil, fmt.Errorf("%w: %q must be host:port", ErrInvalidProxy, raw)
	}
	return u, nil
}

func contextDialer(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}

// RedirectPolicy returns a CheckRedirect function that stops after maxHops
// redirects with ErrTooManyRedirects.
func RedirectPolicy(maxHops int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxHops {
			return ErrTooManyRedirects
		}
		return nil
	}
}

// decoratingRoundTripper sets the User-Agent and the per-site headers and cookie.
type decoratingRoundTripper struct {
	base      http.RoundTripper
	userAgent string
	sites     map[string]Site
}

func (d *decoratingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", d.userAgent)
	}
	if site, ok := d.sites[strings.ToLower(r.URL.Host)]; ok {
		for k, v := range site.Headers {
			r.Header.Set(k, v)
		}
		if site.Cookie != "" {
			r.Header.Set("Cookie", site.Cookie)
		}
	}
	return d.base.RoundTrip(r)
}
