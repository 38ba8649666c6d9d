package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/brokenlink/internal/crawler"
	"github.com/nao1215/brokenlink/internal/database"
	"github.com/nao1215/brokenlink/internal/metrics"
	"github.com/nao1215/brokenlink/internal/model"
	"github.com/nao1215/brokenlink/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeRunner adds its records, signals started and then blocks until
// release is closed or the scan is cancelled.
type fakeRunner struct {
	records []model.LinkRecord
	err     error
	started chan struct{}
	release chan struct{}
}

func newFakeRunner(records ...model.LinkRecord) *fakeRunner {
	return &fakeRunner{
		records: records,
		started: make(chan struct{}, 16),
	}
}

func (f *fakeRunner) RunLive(ctx context.Context, _ model.ScanConfig, live *model.LiveResult) (*model.ScanResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	live.Begin("example.com", time.Now())
	for _, rec := range f.records {
		live.Add(rec)
	}
	f.started <- struct{}{}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return live.Finish(time.Now(), true), nil
		}
	}
	return live.Finish(time.Now(), false), nil
}

func (f *fakeRunner) factory() EngineFactory {
	return func() Runner { return f }
}

func waitStarted(t *testing.T, f *fakeRunner) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not start")
	}
}

func waitJob(t *testing.T, r *Registry, id string) model.ScanJob {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := r.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	return job
}

var (
	okRecord     = model.LinkRecord{URL: "https://example.com/", Status: model.StatusWorking, StatusCode: 200, Kind: model.KindPage}
	brokenRecord = model.LinkRecord{URL: "https://example.com/missing", Status: model.StatusBroken, StatusCode: 404, Kind: model.KindCheck}
)

func TestRegistryStart(t *testing.T) {
	t.Parallel()

	t.Run("rejects invalid config", func(t *testing.T) {
		t.Parallel()

		r := New(newFakeRunner().factory())
		cfg := model.DefaultScanConfig("https://example.com")
		cfg.MaxURLs = 0

		_, err := r.Start(cfg)
		if !errors.Is(err, model.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
		if len(r.List()) != 0 {
			t.Error("expected no job to be registered")
		}
	})

	t.Run("runs to completion", func(t *testing.T) {
		t.Parallel()

		r := New(newFakeRunner(okRecord, brokenRecord).factory())
		id, err := r.Start(model.DefaultScanConfig("https://example.com"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		job := waitJob(t, r, id)
		if job.Status != model.JobCompleted {
			t.Fatalf("expected completed, got %s", job.Status)
		}
		if job.StartedAt.IsZero() || job.FinishedAt.IsZero() {
			t.Error("expected start and finish times")
		}

		result, err := r.Result(id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Statistics.TotalProcessed != 2 || result.Statistics.BrokenCount != 1 {
			t.Errorf("expected 2 processed and 1 broken, got %+v", result.Statistics)
		}
	})

	t.Run("assigns unique IDs", func(t *testing.T) {
		t.Parallel()

		r := New(newFakeRunner().factory())
		seen := make(map[string]bool)
		for range 5 {
			id, err := r.Start(model.DefaultScanConfig("https://example.com"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if seen[id] {
				t.Errorf("duplicate id %s", id)
			}
			seen[id] = true
		}
	})
}

func TestRegistryInProgress(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner(okRecord, brokenRecord)
	runner.release = make(chan struct{})
	r := New(runner.factory())

	id, err := r.Start(model.DefaultScanConfig("https://example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitStarted(t, runner)

	job, err := r.Status(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != model.JobInProgress {
		t.Errorf("expected in_progress, got %s", job.Status)
	}
	if job.Result == nil || job.Result.Statistics.TotalProcessed != 2 {
		t.Errorf("expected live snapshot with 2 records, got %+v", job.Result)
	}

	// Mutating the snapshot must not reach the registry.
	job.Result.Broken = nil
	again, err := r.Status(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Result.Broken) != 1 {
		t.Errorf("expected snapshot isolation, got %d broken", len(again.Result.Broken))
	}

	if _, err := r.Result(id); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}

	close(runner.release)
	if job := waitJob(t, r, id); job.Status != model.JobCompleted {
		t.Errorf("expected completed, got %s", job.Status)
	}
}

func TestRegistryFailedScan(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner()
	runner.err = fmt.Errorf("%w: start URL: bad", model.ErrInvalidConfig)
	r := New(runner.factory())

	id, err := r.Start(model.DefaultScanConfig("https://example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job := waitJob(t, r, id)
	if job.Status != model.JobFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.Reason == "" {
		t.Error("expected a failure reason")
	}
	if job.Result != nil {
		t.Error("expected no result for a failed scan")
	}

	_, err = r.Result(id)
	if !errors.Is(err, ErrScanFailed) {
		t.Errorf("expected ErrScanFailed, got %v", err)
	}
}

func TestRegistryUnknownID(t *testing.T) {
	t.Parallel()

	r := New(newFakeRunner().factory())

	if _, err := r.Status("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Status: expected ErrNotFound, got %v", err)
	}
	if _, err := r.Result("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Result: expected ErrNotFound, got %v", err)
	}
	if _, err := r.Wait(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Wait: expected ErrNotFound, got %v", err)
	}
	if err := r.Cancel("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel: expected ErrNotFound, got %v", err)
	}
}

func TestRegistryCancel(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner(okRecord)
	runner.release = make(chan struct{})
	r := New(runner.factory())

	id, err := r.Start(model.DefaultScanConfig("https://example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitStarted(t, runner)

	if err := r.Cancel(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job := waitJob(t, r, id)
	if job.Status != model.JobCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if !job.Result.Cancelled {
		t.Error("expected cancelled result")
	}
	if job.Result.Statistics.TotalProcessed != 1 {
		t.Errorf("expected partial result with 1 record, got %d", job.Result.Statistics.TotalProcessed)
	}

	if err := r.Cancel(id); err != nil {
		t.Errorf("expected cancelling a finished scan to succeed, got %v", err)
	}
}

func TestRegistryMaxConcurrent(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner()
	runner.release = make(chan struct{})
	r := New(runner.factory(), WithMaxConcurrent(1))

	first, err := r.Start(model.DefaultScanConfig("https://a.example"))
	if err != nil {
		t.Fatal(err)
	}
	waitStarted(t, runner)

	second, err := r.Start(model.DefaultScanConfig("https://b.example"))
	if err != nil {
		t.Fatal(err)
	}

	// Give the second scan a chance to start if the bound were broken.
	time.Sleep(50 * time.Millisecond)
	job, err := r.Status(second)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobNotStarted {
		t.Errorf("expected second scan not_started, got %s", job.Status)
	}
	if job.Result != nil {
		t.Error("expected no result before the scan starts")
	}

	close(runner.release)
	if job := waitJob(t, r, first); job.Status != model.JobCompleted {
		t.Errorf("expected first completed, got %s", job.Status)
	}
	if job := waitJob(t, r, second); job.Status != model.JobCompleted {
		t.Errorf("expected second completed, got %s", job.Status)
	}
}

func TestRegistryCancelBeforeStart(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner()
	runner.release = make(chan struct{})
	defer close(runner.release)
	r := New(runner.factory(), WithMaxConcurrent(1))

	if _, err := r.Start(model.DefaultScanConfig("https://a.example")); err != nil {
		t.Fatal(err)
	}
	waitStarted(t, runner)

	queued, err := r.Start(model.DefaultScanConfig("https://b.example"))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Cancel(queued); err != nil {
		t.Fatal(err)
	}

	job := waitJob(t, r, queued)
	if job.Status != model.JobFailed {
		t.Errorf("expected failed, got %s", job.Status)
	}
}

func TestRegistryList(t *testing.T) {
	t.Parallel()

	r := New(newFakeRunner(okRecord).factory())
	var ids []string
	for _, u := range []string{"https://a.example", "https://b.example"} {
		id, err := r.Start(model.DefaultScanConfig(u))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitJob(t, r, id)
	}

	jobs := r.List()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	for _, job := range jobs {
		if job.Result != nil {
			t.Error("expected List to omit results")
		}
	}
}

func TestRegistryPrune(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	r := New(newFakeRunner().factory())
	r.now = clock

	id, err := r.Start(model.DefaultScanConfig("https://example.com"))
	if err != nil {
		t.Fatal(err)
	}
	waitJob(t, r, id)

	if n := r.Prune(time.Hour); n != 0 {
		t.Errorf("expected nothing pruned yet, got %d", n)
	}
	if n := r.Prune(0); n != 0 {
		t.Errorf("expected zero retention to keep everything, got %d", n)
	}

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	if n := r.Prune(time.Hour); n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
	if _, err := r.Status(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected pruned scan to be gone, got %v", err)
	}
}

func TestRegistryArchiveFallback(t *testing.T) {
	t.Parallel()

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	r := New(newFakeRunner(okRecord, brokenRecord).factory(),
		WithArchive(db),
		WithPipeline(func() *pipeline.Pipeline {
			p := pipeline.New()
			p.AddStep(pipeline.NewArchiveStep(db))
			return p
		}),
	)

	id, err := r.Start(model.DefaultScanConfig("https://example.com"))
	if err != nil {
		t.Fatal(err)
	}
	waitJob(t, r, id)

	// A new registry over the same archive still knows the scan.
	restarted := New(newFakeRunner().factory(), WithArchive(db))
	job, err := restarted.Status(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != model.JobCompleted {
		t.Errorf("expected completed, got %s", job.Status)
	}
	result, err := restarted.Result(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Statistics.BrokenCount != 1 {
		t.Errorf("expected 1 broken link, got %d", result.Statistics.BrokenCount)
	}

	if _, err := restarted.Status("unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryResultFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r := New(newFakeRunner(okRecord).factory(),
		WithPipeline(func() *pipeline.Pipeline {
			p := pipeline.New()
			p.AddStep(pipeline.NewDirFileStep("json", dir))
			return p
		}),
	)

	id, err := r.Start(model.DefaultScanConfig("https://example.com"))
	if err != nil {
		t.Fatal(err)
	}
	job := waitJob(t, r, id)
	if filepath.Dir(job.ResultFile) != dir {
		t.Errorf("expected result file in %s, got %q", dir, job.ResultFile)
	}
}

func TestRegistryMetrics(t *testing.T) {
	t.Parallel()

	collector := metrics.NewCollector()
	r := New(newFakeRunner(okRecord).factory(), WithMetrics(collector))

	id, err := r.Start(model.DefaultScanConfig("https://example.com"))
	if err != nil {
		t.Fatal(err)
	}
	waitJob(t, r, id)

	if got := testutil.ToFloat64(collector.ScansStarted); got != 1 {
		t.Errorf("expected 1 started scan, got %v", got)
	}
	if got := testutil.ToFloat64(collector.ScansFinished.WithLabelValues("completed")); got != 1 {
		t.Errorf("expected 1 completed scan, got %v", got)
	}
	if got := testutil.ToFloat64(collector.ScansRunning); got != 0 {
		t.Errorf("expected no running scans, got %v", got)
	}
}

func TestRegistryShutdown(t *testing.T) {
	t.Parallel()

	runner := newFakeRunner(okRecord)
	runner.release = make(chan struct{})
	r := New(runner.factory())

	id, err := r.Start(model.DefaultScanConfig("https://example.com"))
	if err != nil {
		t.Fatal(err)
	}
	waitStarted(t, runner)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job, err := r.Status(id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobCompleted || !job.Result.Cancelled {
		t.Errorf("expected cancelled completed scan, got %s", job.Status)
	}

	if _, err := r.Start(model.DefaultScanConfig("https://example.com")); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}

func TestRegistryWithEngine(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/ok">ok</a><a href="/gone">gone</a></body></html>`)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
	})
	mux.HandleFunc("/gone", http.NotFound)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := New(func() Runner { return crawler.NewEngine(srv.Client()) }, WithMaxConcurrent(2))

	var ids []string
	for range 3 {
		cfg := model.DefaultScanConfig(srv.URL)
		cfg.Delay = 0
		id, err := r.Start(cfg)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	for _, id := range ids {
		job := waitJob(t, r, id)
		if job.Status != model.JobCompleted {
			t.Fatalf("expected completed, got %s", job.Status)
		}
		st := job.Result.Statistics
		if st.TotalProcessed != 3 || st.WorkingCount != 2 || st.BrokenCount != 1 {
			t.Errorf("scan %s: expected 3/2/1, got %+v", id, st)
		}
	}
}
