package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/brokenlink/internal/api"
	"github.com/nao1215/brokenlink/internal/metrics"
	"github.com/nao1215/brokenlink/internal/model"
	"github.com/nao1215/brokenlink/internal/registry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubRunner fills the live result with fixed records. When gate is set it
// blocks until gate is closed or the scan is cancelled.
type stubRunner struct {
	gate chan struct{}
	err  error
}

func (s *stubRunner) RunLive(ctx context.Context, cfg model.ScanConfig, live *model.LiveResult) (*model.ScanResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	live.Begin("example.com", time.Now())
	live.Add(model.LinkRecord{URL: cfg.StartURL, Status: model.StatusWorking, StatusCode: 200, Kind: model.KindPage})
	live.Add(model.LinkRecord{URL: cfg.StartURL + "/gone", Status: model.StatusBroken, StatusCode: 404, Kind: model.KindCheck})
	live.Add(model.LinkRecord{URL: "https://down.example", Status: model.StatusError, ErrorMessage: "dns lookup failed", Kind: model.KindCheck})
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return live.Finish(time.Now(), true), nil
		}
	}
	return live.Finish(time.Now(), false), nil
}

func newTestRouter(t *testing.T, runner *stubRunner, opts ...api.Option) (*gin.Engine, *registry.Registry) {
	t.Helper()
	reg := registry.New(func() registry.Runner { return runner })
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
	})
	return api.NewRouter(reg, opts...), reg
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func startScan(t *testing.T, router http.Handler, body string) string {
	t.Helper()
	w := doRequest(router, http.MethodPost, "/scan", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	return decode[api.StartResponse](t, w).ScanID
}

func waitScan(t *testing.T, reg *registry.Registry, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := reg.Wait(ctx, id); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
}

func TestStartScan(t *testing.T) {
	t.Parallel()

	t.Run("returns 202 with scan ID", func(t *testing.T) {
		t.Parallel()

		router, _ := newTestRouter(t, &stubRunner{})
		w := doRequest(router, http.MethodPost, "/scan", `{"url":"https://example.com","max_urls":5}`)

		if w.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d", w.Code)
		}
		resp := decode[api.StartResponse](t, w)
		if resp.ScanID == "" {
			t.Error("expected scan_id")
		}
		if resp.MaxURLs != 5 {
			t.Errorf("expected max_urls 5, got %d", resp.MaxURLs)
		}
	})

	t.Run("waits when asked", func(t *testing.T) {
		t.Parallel()

		router, _ := newTestRouter(t, &stubRunner{})
		for _, tc := range []struct{ path, body string }{
			{"/scan", `{"url":"https://example.com","wait":true}`},
			{"/scan?wait=true", `{"url":"https://example.com"}`},
		} {
			w := doRequest(router, http.MethodPost, tc.path, tc.body)
			if w.Code != http.StatusOK {
				t.Fatalf("%s: expected status 200, got %d: %s", tc.path, w.Code, w.Body.String())
			}
			resp := decode[api.CompletedResponse](t, w)
			if resp.Message != "Scan completed" {
				t.Errorf("expected completion message, got %q", resp.Message)
			}
			if resp.Statistics.TotalProcessed != 3 || resp.Statistics.BrokenCount != 1 {
				t.Errorf("unexpected statistics: %+v", resp.Statistics)
			}
			if resp.MaxURLs != model.DefaultMaxURLs {
				t.Errorf("expected default max_urls, got %d", resp.MaxURLs)
			}
		}
	})

	t.Run("rejects bad requests", func(t *testing.T) {
		t.Parallel()

		router, _ := newTestRouter(t, &stubRunner{})
		tests := []struct {
			name string
			body string
		}{
			{"malformed JSON", `{"url":`},
			{"missing url", `{"max_urls":5}`},
			{"unsupported scheme", `{"url":"ftp://example.com"}`},
			{"zero max_urls", `{"url":"https://example.com","max_urls":0}`},
			{"negative depth", `{"url":"https://example.com","max_depth":-1}`},
			{"negative delay", `{"url":"https://example.com","delay":-0.5}`},
		}
		for _, tt := range tests {
			w := doRequest(router, http.MethodPost, "/scan", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%s: expected status 400, got %d", tt.name, w.Code)
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("%s: expected error field, got %s", tt.name, w.Body.String())
			}
		}
	})

	t.Run("reports failed scans when waiting", func(t *testing.T) {
		t.Parallel()

		router, _ := newTestRouter(t, &stubRunner{err: errors.New("setup failed")})
		w := doRequest(router, http.MethodPost, "/scan?wait=true", `{"url":"https://example.com"}`)
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", w.Code)
		}
	})
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	t.Run("reports progress while running", func(t *testing.T) {
		t.Parallel()

		runner := &stubRunner{gate: make(chan struct{})}
		router, reg := newTestRouter(t, runner)
		id := startScan(t, router, `{"url":"https://example.com","delay":0.5,"same_domain_only":false}`)

		var resp api.StatusResponse
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			w := doRequest(router, http.MethodGet, "/status/"+id, "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			resp = decode[api.StatusResponse](t, w)
			if resp.Status == model.JobInProgress && resp.TotalURLsProcessed == 3 {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}

		if resp.Status != model.JobInProgress {
			t.Fatalf("expected in_progress, got %s", resp.Status)
		}
		if resp.BrokenLinks != 1 || len(resp.BrokenLinksList) != 1 {
			t.Errorf("expected 1 broken link, got %d (%d listed)", resp.BrokenLinks, len(resp.BrokenLinksList))
		}
		if resp.ErrorLinks != 1 || resp.ErrorLinksList[0].ErrorMessage != "dns lookup failed" {
			t.Errorf("expected error link, got %+v", resp.ErrorLinksList)
		}
		if resp.Delay != 0.5 || resp.SameDomainOnly {
			t.Errorf("expected config echoed back, got delay=%v same_domain_only=%v", resp.Delay, resp.SameDomainOnly)
		}
		if resp.StartDomain != "example.com" {
			t.Errorf("expected start_domain example.com, got %q", resp.StartDomain)
		}

		close(runner.gate)
		waitScan(t, reg, id)

		w := doRequest(router, http.MethodGet, "/status/"+id, "")
		if got := decode[api.StatusResponse](t, w).Status; got != model.JobCompleted {
			t.Errorf("expected completed, got %s", got)
		}
	})

	t.Run("returns 404 for unknown IDs", func(t *testing.T) {
		t.Parallel()

		router, _ := newTestRouter(t, &stubRunner{})
		w := doRequest(router, http.MethodGet, "/status/unknown", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
	})

	t.Run("includes failure reason", func(t *testing.T) {
		t.Parallel()

		router, reg := newTestRouter(t, &stubRunner{err: errors.New("setup failed")})
		id := startScan(t, router, `{"url":"https://example.com"}`)
		waitScan(t, reg, id)

		resp := decode[api.StatusResponse](t, doRequest(router, http.MethodGet, "/status/"+id, ""))
		if resp.Status != model.JobFailed || resp.Error != "setup failed" {
			t.Errorf("expected failed with reason, got %s %q", resp.Status, resp.Error)
		}
	})
}

func TestGetResults(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{gate: make(chan struct{})}
	router, reg := newTestRouter(t, runner)
	id := startScan(t, router, `{"url":"https://example.com"}`)

	if w := doRequest(router, http.MethodGet, "/results/"+id, ""); w.Code != http.StatusConflict {
		t.Errorf("expected status 409 while running, got %d", w.Code)
	}

	close(runner.gate)
	waitScan(t, reg, id)

	t.Run("json", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/results/"+id, "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var body map[string]map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		for _, key := range []string{"scan_info", "statistics", "results"} {
			if _, ok := body[key]; !ok {
				t.Errorf("expected %s section", key)
			}
		}
		if body["statistics"]["broken_links_count"] != float64(1) {
			t.Errorf("expected broken_links_count 1, got %v", body["statistics"]["broken_links_count"])
		}
	})

	t.Run("csv", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/results/"+id+"?format=csv", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv") {
			t.Errorf("expected text/csv, got %s", w.Header().Get("Content-Type"))
		}
		if lines := strings.Count(strings.TrimSpace(w.Body.String()), "\n"); lines != 3 {
			t.Errorf("expected header and 3 rows, got %d newlines", lines)
		}
	})

	t.Run("markdown", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/results/"+id+"?format=markdown", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "Broken Link Report") {
			t.Error("expected markdown heading")
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/results/"+id+"?format=xml", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("unknown ID", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/results/unknown", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
	})
}

func TestGetResultsFailedScan(t *testing.T) {
	t.Parallel()

	router, reg := newTestRouter(t, &stubRunner{err: errors.New("setup failed")})
	id := startScan(t, router, `{"url":"https://example.com"}`)
	waitScan(t, reg, id)

	if w := doRequest(router, http.MethodGet, "/results/"+id, ""); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", w.Code)
	}
}

func TestCancelScan(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{gate: make(chan struct{})}
	router, reg := newTestRouter(t, runner)
	id := startScan(t, router, `{"url":"https://example.com"}`)

	if w := doRequest(router, http.MethodDelete, "/scan/"+id, ""); w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", w.Code)
	}
	waitScan(t, reg, id)

	resp := decode[api.StatusResponse](t, doRequest(router, http.MethodGet, "/status/"+id, ""))
	if resp.Status != model.JobCompleted {
		t.Errorf("expected completed, got %s", resp.Status)
	}

	if w := doRequest(router, http.MethodDelete, "/scan/unknown", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestListScans(t *testing.T) {
	t.Parallel()

	router, reg := newTestRouter(t, &stubRunner{})
	first := startScan(t, router, `{"url":"https://a.example"}`)
	second := startScan(t, router, `{"url":"https://b.example"}`)
	waitScan(t, reg, first)
	waitScan(t, reg, second)

	w := doRequest(router, http.MethodGet, "/scans", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body struct {
		Scans []api.JobSummary `json:"scans"`
		Count int              `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || len(body.Scans) != 2 {
		t.Fatalf("expected 2 scans, got %d", body.Count)
	}
	urls := map[string]bool{body.Scans[0].StartURL: true, body.Scans[1].StartURL: true}
	if !urls["https://a.example"] || !urls["https://b.example"] {
		t.Errorf("expected both start URLs, got %v", urls)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	collector := metrics.NewCollector()
	router, _ := newTestRouter(t, &stubRunner{}, api.WithMetricsHandler(collector.Handler()))

	if w := doRequest(router, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	w := doRequest(router, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "brokenlink_scans_in_progress") {
		t.Error("expected scan metrics in output")
	}
}
