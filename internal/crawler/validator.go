package crawler

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/nao1215/brokenlink/internal/httpclient"
	"github.com/nao1215/brokenlink/internal/model"
)

// drainLimit caps how much of a validation response body is read before the
// connection is reused.
const drainLimit = 64 * 1024

// Outcome is the result of validating one URL.
type Outcome struct {
	Record model.LinkRecord

	// ContentType is the Content-Type of the final response, if any.
	ContentType string

	// FinalURL is the URL that produced the final response. It equals the
	// requested URL when no redirect happened.
	FinalURL string
}

// Validator checks a URL with a HEAD request and falls back to GET when the
// server rejects HEAD. Validate never fails: every outcome is a record.
type Validator struct {
	client *http.Client
	now    func() time.Time
}

// NewValidator returns a Validator using client.
func NewValidator(client *http.Client) *Validator {
	return &Validator{client: client, now: time.Now}
}

// Validate requests url and classifies the response. The returned record
// has Kind set to check; the engine upgrades it to page when it crawls the URL.
func (v *Validator) Validate(ctx context.Context, url string) Outcome {
	rec := model.LinkRecord{
		URL:          url,
		Kind:         model.KindCheck,
		DiscoveredAt: v.now(),
	}

	resp, err := v.do(ctx, http.MethodHead, url)
	if err == nil && headRejected(resp.StatusCode) {
		closeBody(resp)
		resp, err = v.do(ctx, http.MethodGet, url)
	}
	if err != nil {
		rec.Status = model.StatusError
		rec.ErrorMessage = DescribeError(err)
		return Outcome{Record: rec, FinalURL: url}
	}
	defer closeBody(resp)

	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	rec.Status = model.ClassifyStatusCode(resp.StatusCode)
	rec.StatusCode = resp.StatusCode
	if final != url {
		rec.FinalURL = final
	}
	return Outcome{
		Record:      rec,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    final,
	}
}

func (v *Validator) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	return v.client.Do(req)
}

// headRejected reports whether a HEAD status means the server does not
// support HEAD for this resource.
func headRejected(code int) bool {
	return code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented
}

func closeBody(resp *http.Response) {
	_, _ = io.CopyN(io.Discard, resp.Body, drainLimit)
	_ = resp.Body.Close()
}

// DescribeError turns a transport error into a short message prefixed by
// its class.
func DescribeError(err error) string {
	var (
		dnsErr   *net.DNSError
		certErr  *tls.CertificateVerificationError
		unknown  x509.UnknownAuthorityError
		hostname x509.HostnameError
		recordHd tls.RecordHeaderError
		netErr   net.Error
	)

	switch {
	case errors.Is(err, httpclient.ErrTooManyRedirects):
		return fmt.Sprintf("too many redirects: %v", err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Sprintf("timeout: %v", err)
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("request cancelled: %v", err)
	case errors.As(err, &dnsErr):
		return fmt.Sprintf("dns lookup failed: %v", err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Sprintf("connection refused: %v", err)
	case errors.Is(err, syscall.ECONNRESET):
		return fmt.Sprintf("connection reset: %v", err)
	case errors.As(err, &certErr), errors.As(err, &unknown), errors.As(err, &hostname), errors.As(err, &recordHd):
		return fmt.Sprintf("tls handshake failed: %v", err)
	default:
		return fmt.Sprintf("request failed: %v", err)
	}
}
