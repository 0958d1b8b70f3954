package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of exports processed at once.
const DefaultConcurrency = 4

// BatchProcessor runs one pipeline per export directory with bounded
// concurrency. It serves the offline commands (normalize, inspect), which
// touch only local files; crawls always run one at a time.
type BatchProcessor struct {
	// pipelineFactory builds a fresh pipeline for each export.
	pipelineFactory func(exportDir string) *Pipeline

	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of exports processed at once.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func(exportDir string) *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch runs the pipeline for every directory and returns the runs
// in input order. A failing export does not stop the others; its error is
// kept in Run.Err. The returned error is non-nil only when ctx ends first.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, dirs []string) ([]*Run, error) {
	bp.logger.Debug("starting batch processing",
		"exports", len(dirs),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	// Each goroutine writes only its own index.
	runs := make([]*Run, len(dirs))
	for i, dir := range dirs {
		runs[i] = NewRun(dir, nil, false)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, dir := range dirs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				runs[i].Err = ctx.Err()
				return ctx.Err()
			default:
			}

			if err := bp.pipelineFactory(dir).Execute(ctx, runs[i]); err != nil {
				bp.logger.Warn("export failed",
					"export", dir,
					"error", err,
				)
			}
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Debug("batch processing complete",
		"exports", len(dirs),
		"elapsed", time.Since(startTime),
	)
	return runs, err
}
