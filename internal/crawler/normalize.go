package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrMalformedURL is returned for references that cannot be parsed or
	// resolve to a URL without a host.
	ErrMalformedURL = errors.New("malformed URL")

	// ErrUnsupportedScheme is returned for anything other than http and https
	// (mailto:, javascript:, tel:, data:, ftp: ...).
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
)

// Normalize resolves raw against base and returns its canonical form.
// base may be empty when raw is absolute.
//
// The canonical form has a lower-case scheme and host, no default port, no
// fragment, "/" as the root path and no trailing slash on other paths.
// Normalize is idempotent.
func Normalize(raw, base string) (string, error) {
	raw = strings.TrimSpace(raw)

	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, raw, err)
	}

	// Resolving an absolute reference against itself removes dot segments.
	u := ref.ResolveReference(ref)
	if base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("%w: base %q: %v", ErrMalformedURL, base, err)
		}
		u = b.ResolveReference(ref)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	switch u.Scheme {
	case "http", "https":
	case "":
		return "", fmt.Errorf("%w: %q has no scheme", ErrMalformedURL, raw)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}

	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrMalformedURL, raw)
	}
	u.Host = canonicalHost(u.Scheme, u.Host)

	u.Fragment = ""
	u.RawFragment = ""
	u.ForceQuery = false
	u.Opaque = ""

	// Work on the escaped path so an encoded "%2F" is not taken for a slash.
	escaped := u.EscapedPath()
	switch {
	case escaped == "" || escaped == "/":
		u.Path = "/"
		u.RawPath = ""
	case strings.HasSuffix(escaped, "/"):
		escaped = strings.TrimRight(escaped, "/")
		if escaped == "" {
			escaped = "/"
		}
		p, err := url.PathUnescape(escaped)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, raw, err)
		}
		u.Path = p
		u.RawPath = escaped
	}

	return u.String(), nil
}

// canonicalHost lower-cases host and drops the scheme's default port.
func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		return strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

// Domain returns the network location (host[:port]) of a normalized URL,
// or an empty string when it cannot be parsed.
func Domain(normalized string) string {
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// SameDomain reports whether target is on domain.
func SameDomain(domain, target string) bool {
	return domain != "" && Domain(target) == domain
}
