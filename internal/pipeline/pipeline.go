package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/brokenlink/internal/model"
)

// ErrNoResult is returned by steps that need a finished scan result.
var ErrNoResult = errors.New("scan has no result")

// Scan is the value passed through a pipeline.
type Scan struct {
	// ID identifies the scan in the registry and the archive.
	ID string

	// Config is the configuration the scan ran with.
	Config model.ScanConfig

	// Result is the finished (possibly cancelled) scan result.
	// It is nil when the scan could not start.
	Result *model.ScanResult

	// Files maps an output format ("json", "csv", "markdown") to the path
	// of the file written for it.
	Files map[string]string

	// PerformedSteps lists the steps that completed without error.
	PerformedSteps []string

	// Err is the last error recorded for this scan.
	Err error
}

// NewScan returns a Scan for a finished result.
func NewScan(id string, cfg model.ScanConfig, result *model.ScanResult) *Scan {
	return &Scan{
		ID:     id,
		Config: cfg,
		Result: result,
		Files:  make(map[string]string),
	}
}

// Step defines the interface that all pipeline steps must implement.
type Step interface {
	// Do executes the step. A returned error stops the pipeline unless
	// it was built with WithContinueOnError.
	Do(ctx context.Context, scan *Scan) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline executes steps in the order they were added.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps executing later steps after a step fails.
// A report file that cannot be written should not stop the scan from
// being archived.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
//
// Cancellation is checked before each step, not during one. Callers that
// want the outputs of a cancelled crawl written anyway pass a context that
// outlives the crawl.
//
// Returns the first error encountered if continueOnError is false; with
// continueOnError the last error is returned after every step has run.
func (p *Pipeline) Execute(ctx context.Context, scan *Scan) error {
	var lastErr error
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"scan_id", scan.ID,
				"reason", ctx.Err(),
			)
			scan.Err = ctx.Err()
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"scan_id", scan.ID,
		)

		if err := step.Do(ctx, scan); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"scan_id", scan.ID,
				"error", err,
			)
			scan.Err = err
			lastErr = err
			if !p.continueOnError {
				return err
			}
			continue
		}
		scan.PerformedSteps = append(scan.PerformedSteps, step.Name())
	}
	return lastErr
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
