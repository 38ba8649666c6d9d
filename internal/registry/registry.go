package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/brokenlink/internal/database"
	"github.com/nao1215/brokenlink/internal/metrics"
	"github.com/nao1215/brokenlink/internal/model"
	"github.com/nao1215/brokenlink/internal/pipeline"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent is the number of scans allowed to run at once.
const DefaultMaxConcurrent = 4

// Runner runs one scan, writing progress into live.
// *crawler.Engine implements Runner.
type Runner interface {
	RunLive(ctx context.Context, cfg model.ScanConfig, live *model.LiveResult) (*model.ScanResult, error)
}

// EngineFactory returns the Runner for a new scan. It is called once per
// scan so that scans never share crawl state.
type EngineFactory func() Runner

// Archive looks up finished scans that are no longer held in memory.
// *database.ScanDB implements Archive.
type Archive interface {
	GetScan(ctx context.Context, id string) (*model.ScanResult, error)
}

// entry is the registry's private state for one scan.
type entry struct {
	job    model.ScanJob
	live   *model.LiveResult
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry owns all asynchronous scans.
type Registry struct {
	factory         EngineFactory
	logger          *slog.Logger
	maxConcurrent   int
	pipelineFactory func() *pipeline.Pipeline
	archive         Archive
	metrics         *metrics.Collector
	now             func() time.Time

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu           sync.RWMutex
	entries      map[string]*entry
	shuttingDown bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxConcurrent bounds how many scans run at the same time. Scans over
// the bound stay not_started until a slot frees up.
func WithMaxConcurrent(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxConcurrent = n
		}
	}
}

// WithPipeline runs a pipeline from factory after every completed scan.
// The path of the JSON file it writes becomes the job's ResultFile.
func WithPipeline(factory func() *pipeline.Pipeline) Option {
	return func(r *Registry) {
		r.pipelineFactory = factory
	}
}

// WithArchive makes Status, Result and Wait fall back to archive for IDs
// that are not in memory.
func WithArchive(archive Archive) Option {
	return func(r *Registry) {
		r.archive = archive
	}
}

// WithMetrics records scan starts and finishes in collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(r *Registry) {
		r.metrics = collector
	}
}

// New returns an empty Registry.
func New(factory EngineFactory, opts ...Option) *Registry {
	r := &Registry{
		factory:       factory,
		logger:        slog.Default(),
		maxConcurrent: DefaultMaxConcurrent,
		now:           time.Now,
		entries:       make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sem = semaphore.NewWeighted(int64(r.maxConcurrent))
	return r
}

// Start registers a scan and runs it in the background.
// An invalid configuration is rejected without creating a job.
func (r *Registry) Start(cfg model.ScanConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shuttingDown {
		return "", ErrShuttingDown
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		job: model.ScanJob{
			ID:        id,
			Status:    model.JobNotStarted,
			Config:    cfg,
			CreatedAt: r.now(),
		},
		live:   model.NewLiveResult(cfg),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.entries[id] = e

	r.wg.Add(1)
	go r.run(ctx, e)

	r.logger.Info("scan registered", "scan_id", id, "start_url", cfg.StartURL)
	return id, nil
}

// run drives one job to a terminal status.
func (r *Registry) run(ctx context.Context, e *entry) {
	defer r.wg.Done()
	defer close(e.done)
	defer e.cancel()

	id := e.job.ID
	logger := r.logger.With("scan_id", id)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.fail(e, false, "cancelled before start")
		logger.Info("scan cancelled before start")
		return
	}

	r.transition(e, model.JobInProgress, func(job *model.ScanJob) {
		job.StartedAt = r.now()
	})
	if r.metrics != nil {
		r.metrics.ScanStarted()
	}

	result, err := r.factory().RunLive(ctx, e.job.Config, e.live)
	r.sem.Release(1)
	if err != nil {
		r.fail(e, true, err.Error())
		logger.Warn("scan failed", "error", err)
		return
	}

	var resultFile string
	if r.pipelineFactory != nil {
		scan := pipeline.NewScan(id, e.job.Config, result)
		// Outputs of a cancelled scan are still written.
		if err := r.pipelineFactory().Execute(context.WithoutCancel(ctx), scan); err != nil {
			logger.Warn("post-scan pipeline failed", "error", err)
		}
		resultFile = scan.Files["json"]
	}

	var startedAt time.Time
	r.transition(e, model.JobCompleted, func(job *model.ScanJob) {
		job.FinishedAt = r.now()
		job.ResultFile = resultFile
		startedAt = job.StartedAt
	})
	if r.metrics != nil {
		r.metrics.ScanFinished(model.JobCompleted, true, r.now().Sub(startedAt))
	}
	logger.Info("scan completed",
		"processed", result.Statistics.TotalProcessed,
		"broken", result.Statistics.BrokenCount,
		"errors", result.Statistics.ErrorCount,
		"cancelled", result.Cancelled)
}

// transition moves e to next under the write lock. Invalid transitions are
// ignored and logged.
func (r *Registry) transition(e *entry, next model.JobStatus, update func(job *model.ScanJob)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !e.job.Status.CanTransitionTo(next) {
		r.logger.Error("invalid job transition",
			"scan_id", e.job.ID,
			"from", e.job.Status,
			"to", next)
		return
	}
	e.job.Status = next
	if update != nil {
		update(&e.job)
	}
}

func (r *Registry) fail(e *entry, started bool, reason string) {
	var startedAt time.Time
	r.transition(e, model.JobFailed, func(job *model.ScanJob) {
		job.Reason = reason
		job.FinishedAt = r.now()
		startedAt = job.StartedAt
	})
	if r.metrics != nil {
		r.metrics.ScanFinished(model.JobFailed, started, r.now().Sub(startedAt))
	}
}

// snapshot copies the job of e. Must be called with r.mu held.
func (r *Registry) snapshot(e *entry, withResult bool) model.ScanJob {
	job := e.job
	job.Result = nil
	if withResult && (job.Status == model.JobInProgress || job.Status == model.JobCompleted) {
		job.Result = e.live.Snapshot()
	}
	return job
}

// Status returns a copy of the job. While the scan runs, Result holds the
// records gathered so far.
func (r *Registry) Status(id string) (model.ScanJob, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	if ok {
		job := r.snapshot(e, true)
		r.mu.RUnlock()
		return job, nil
	}
	r.mu.RUnlock()
	return r.archived(id)
}

// Result returns the frozen result of a completed scan.
func (r *Registry) Result(id string) (*model.ScanResult, error) {
	job, err := r.Status(id)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case model.JobCompleted:
		return job.Result, nil
	case model.JobFailed:
		return nil, fmt.Errorf("%w: %s", ErrScanFailed, job.Reason)
	default:
		return nil, ErrNotReady
	}
}

// Wait blocks until the scan is terminal or ctx is done.
func (r *Registry) Wait(ctx context.Context, id string) (model.ScanJob, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return r.archived(id)
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return model.ScanJob{}, ctx.Err()
	}
	return r.Status(id)
}

// Cancel asks a running scan to stop. The scan still completes, with the
// records gathered so far and Cancelled set. Cancelling a finished scan is a
// no-op.
func (r *Registry) Cancel(id string) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	e.cancel()
	r.logger.Info("scan cancellation requested", "scan_id", id)
	return nil
}

// List returns all in-memory jobs, oldest first. Results are not included.
func (r *Registry) List() []model.ScanJob {
	r.mu.RLock()
	jobs := make([]model.ScanJob, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, r.snapshot(e, false))
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// Prune drops terminal jobs that finished more than olderThan ago and
// returns how many were dropped. Archived scans stay reachable through the
// archive. A non-positive olderThan keeps everything.
func (r *Registry) Prune(olderThan time.Duration) int {
	if olderThan <= 0 {
		return 0
	}
	cutoff := r.now().Add(-olderThan)

	r.mu.Lock()
	defer r.mu.Unlock()
	pruned := 0
	for id, e := range r.entries {
		if e.job.Status.Terminal() && e.job.FinishedAt.Before(cutoff) {
			delete(r.entries, id)
			pruned++
		}
	}
	if pruned > 0 {
		r.logger.Info("pruned finished scans", "count", pruned)
	}
	return pruned
}

// Shutdown rejects new scans, cancels running ones and waits for them to
// finish or for ctx to be done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.shuttingDown = true
	for _, e := range r.entries {
		e.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// archived builds a completed job from the archive.
func (r *Registry) archived(id string) (model.ScanJob, error) {
	if r.archive == nil {
		return model.ScanJob{}, ErrNotFound
	}
	result, err := r.archive.GetScan(context.Background(), id)
	if err != nil {
		if errors.Is(err, database.ErrScanNotFound) {
			return model.ScanJob{}, ErrNotFound
		}
		return model.ScanJob{}, fmt.Errorf("failed to read archived scan %s: %w", id, err)
	}
	return model.ScanJob{
		ID:         id,
		Status:     model.JobCompleted,
		Config:     result.Config,
		CreatedAt:  result.StartTime,
		StartedAt:  result.StartTime,
		FinishedAt: result.EndTime,
		Result:     result,
	}, nil
}
