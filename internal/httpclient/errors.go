package httpclient

import "errors"

var (
	// ErrTooManyRedirects is returned when a redirect chain exceeds the hop limit.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrInvalidProxy is returned when the proxy setting cannot be parsed.
	ErrInvalidProxy = errors.New("invalid proxy address")
)
