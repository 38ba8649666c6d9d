package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/brokenlink/internal/model"
	"golang.org/x/sync/errgroup"
)

// defaultConcurrency bounds how many scans a batch runs at once.
const defaultConcurrency = 10

// RunFunc runs a single scan.
type RunFunc func(ctx context.Context, cfg model.ScanConfig) (*model.ScanResult, error)

// BatchProcessor scans several start URLs concurrently.
type BatchProcessor struct {
	run             RunFunc
	pipelineFactory func() *Pipeline
	concurrency     int
	logger          *slog.Logger
	newID           func() string

	mu      sync.Mutex
	results []*Scan
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithConcurrency sets the number of scans running at the same time.
// Non-positive values are ignored.
func WithConcurrency(n int) BatchOption {
	return func(bp *BatchProcessor) {
		if n > 0 {
			bp.concurrency = n
		}
	}
}

// WithBatchLogger sets a custom logger for the batch processor.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(bp *BatchProcessor) {
		bp.logger = logger
	}
}

// WithPipelineFactory runs a fresh pipeline from factory after every scan.
// A factory is needed because pipelines are not shared between goroutines.
func WithPipelineFactory(factory func() *Pipeline) BatchOption {
	return func(bp *BatchProcessor) {
		bp.pipelineFactory = factory
	}
}

// NewBatchProcessor returns a processor that scans with run.
func NewBatchProcessor(run RunFunc, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		run:         run,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(bp)
	}
	return bp
}

// ProcessBatch scans every configuration and returns one Scan per entry in
// input order. Entries whose scan never started because ctx was cancelled
// are nil. A scan that fails to start is returned with Err set; it does not
// stop the others.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, cfgs []model.ScanConfig) ([]*Scan, error) {
	bp.mu.Lock()
	bp.results = make([]*Scan, len(cfgs))
	bp.mu.Unlock()

	err := bp.ProcessBatchWithCallback(ctx, cfgs, func(scan *Scan, index int) {
		bp.mu.Lock()
		bp.results[index] = scan
		bp.mu.Unlock()
	})

	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.results, err
}

// ProcessBatchWithCallback scans every configuration and calls callback
// with each finished scan and its index in cfgs. The callback runs on the
// goroutine that finished the scan, so it must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	cfgs []model.ScanConfig,
	callback func(scan *Scan, index int),
) error {
	bp.logger.Info("starting batch scan",
		"total_targets", len(cfgs),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, cfg := range cfgs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("scanning target",
				"start_url", cfg.StartURL,
				"index", i+1,
				"total", len(cfgs),
			)
			callback(bp.scanOne(ctx, cfg), i)
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Info("batch scan complete",
		"total_targets", len(cfgs),
		"elapsed", time.Since(startTime),
	)
	return err
}

func (bp *BatchProcessor) scanOne(ctx context.Context, cfg model.ScanConfig) *Scan {
	result, err := bp.run(ctx, cfg)
	scan := NewScan(bp.newID(), cfg, result)
	if err != nil {
		bp.logger.Warn("scan failed", "start_url", cfg.StartURL, "error", err)
		scan.Err = err
		return scan
	}

	if bp.pipelineFactory != nil {
		// Outputs of an interrupted scan are still written.
		_ = bp.pipelineFactory().Execute(context.WithoutCancel(ctx), scan) //nolint:errcheck // Error is stored in scan
	}
	return scan
}
