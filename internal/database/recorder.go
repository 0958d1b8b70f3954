package database

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nao1215/docmirror/internal/model"
)

// Recorder stores crawl events of one run as they are emitted.
// It satisfies crawler.Observer. Write failures are logged and kept;
// they never stop the crawl.
type Recorder struct {
	ctx    context.Context //nolint:containedctx // observers have no per-call context
	db     *CrawlDB
	runID  string
	logger *slog.Logger

	mu       sync.Mutex
	firstErr error
}

// NewRecorder returns a Recorder writing events of runID into db.
func NewRecorder(ctx context.Context, db *CrawlDB, runID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{ctx: ctx, db: db, runID: runID, logger: logger}
}

// OnEvent records ev.
func (r *Recorder) OnEvent(ev model.Event) {
	if err := r.db.RecordEvent(r.ctx, r.runID, ev); err != nil {
		r.logger.Warn("failed to record crawl history", "url", ev.URL, "error", err)
		r.mu.Lock()
		if r.firstErr == nil {
			r.firstErr = err
		}
		r.mu.Unlock()
	}
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstErr
}
