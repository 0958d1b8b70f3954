package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/docmirror/internal/report"
)

// Run carries the state of one export run through the pipeline.
type Run struct {
	// ExportDir is the export root.
	ExportDir string

	// Seeds are the crawl seeds. Snapshot seeding appends to them.
	Seeds []string

	// Resume restores the persisted queue before crawling.
	Resume bool

	// SnapshotsIngested counts browser-saved pages stored as ingested_local.
	SnapshotsIngested int

	// SnapshotsBlocked counts browser-saved pages that were bot-protection
	// challenges and therefore skipped.
	SnapshotsBlocked int

	// Report accumulates the step results.
	Report *report.RunReport

	// PerformedSteps lists the steps that ran, in order.
	PerformedSteps []string

	// Err is the last step error, if any.
	Err error
}

// NewRun creates a Run for exportDir.
func NewRun(exportDir string, seeds []string, resume bool) *Run {
	return &Run{
		ExportDir: exportDir,
		Seeds:     seeds,
		Resume:    resume,
		Report:    &report.RunReport{ExportDir: exportDir},
	}
}

// Step defines the interface that all pipeline steps must implement.
type Step interface {
	// Do executes the step. Results are recorded on run.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger

	// continueOnError keeps executing steps after one fails.
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

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. The last error is kept in Run.Err.
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

// Execute runs all steps in sequence. Cancellation is checked before each
// step; a running step handles ctx itself.
//
// It returns the first error unless continueOnError is set, in which case
// it returns the last error after all steps ran.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			run.Err = ctx.Err()
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"export", run.ExportDir,
		)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"export", run.ExportDir,
				"error", err,
			)
			run.Err = err
			if !p.continueOnError {
				return err
			}
		} else {
			p.logger.Debug("step completed",
				"step", step.Name(),
				"export", run.ExportDir,
			)
		}

		run.PerformedSteps = append(run.PerformedSteps, step.Name())
	}

	return run.Err
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
