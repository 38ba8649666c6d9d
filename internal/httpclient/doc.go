// Package httpclient builds the *http.Client used to validate links and to
// fetch pages.
//
// The client applies a per-request timeout, a bounded redirect policy, an
// optional SOCKS5 or HTTP proxy and per-site static headers and cookies.
package httpclient
