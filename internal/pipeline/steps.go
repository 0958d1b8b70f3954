package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nao1215/docmirror/internal/citation"
	"github.com/nao1215/docmirror/internal/crawler"
	"github.com/nao1215/docmirror/internal/database"
	"github.com/nao1215/docmirror/internal/fsutil"
	"github.com/nao1215/docmirror/internal/inspect"
	"github.com/nao1215/docmirror/internal/metrics"
	"github.com/nao1215/docmirror/internal/model"
	"github.com/nao1215/docmirror/internal/render"
	"github.com/nao1215/docmirror/internal/report"
	"github.com/nao1215/docmirror/internal/urlscope"
)

// ErrMissingFiles is returned by a failing InspectStep when the manifest
// references files that are not in the export.
var ErrMissingFiles = errors.New("export references missing files")

// SnapshotStep seeds a crawl from browser-saved HTML pages. Each usable
// snapshot is ingested as if it had been fetched, and its links become
// crawl seeds. Bot-protection challenge pages are skipped.
type SnapshotStep struct {
	crawler    *crawler.Crawler
	files      []string
	defaultURL string
	logger     *slog.Logger
}

// SnapshotStepOption configures a SnapshotStep.
type SnapshotStepOption func(*SnapshotStep)

// WithSnapshotDefaultURL sets the page URL used for snapshots without a
// "saved from" comment.
func WithSnapshotDefaultURL(u string) SnapshotStepOption {
	return func(s *SnapshotStep) {
		s.defaultURL = u
	}
}

// WithSnapshotLogger sets a custom logger for the snapshot step.
func WithSnapshotLogger(logger *slog.Logger) SnapshotStepOption {
	return func(s *SnapshotStep) {
		s.logger = logger
	}
}

// NewSnapshotStep creates a step ingesting files through c.
func NewSnapshotStep(c *crawler.Crawler, files []string, opts ...SnapshotStepOption) *SnapshotStep {
	s := &SnapshotStep{
		crawler: c,
		files:   files,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *SnapshotStep) Name() string {
	return "snapshot_seed"
}

// Do ingests every snapshot and appends its links to run.Seeds.
func (s *SnapshotStep) Do(ctx context.Context, run *Run) error {
	seen := make(map[string]struct{}, len(run.Seeds))
	for _, u := range run.Seeds {
		seen[urlscope.Normalize(u)] = struct{}{}
	}
	addSeed := func(u string) {
		u = urlscope.Normalize(u)
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		run.Seeds = append(run.Seeds, u)
	}

	for _, path := range s.files {
		snap, err := crawler.ParseSnapshot(path, s.defaultURL)
		if err != nil {
			return err
		}
		if snap.IsWAFChallenge() {
			s.logger.Warn("seed HTML is a bot-protection challenge; skipping",
				"path", path,
			)
			run.SnapshotsBlocked++
			continue
		}
		if snap.URL == "" {
			s.logger.Warn("seed HTML has no saved-from URL and no default URL; skipping",
				"path", path,
			)
			continue
		}
		if err := s.crawler.IngestLocalHTML(ctx, snap.URL, snap.Body); err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		run.SnapshotsIngested++

		links := snap.Links()
		s.logger.Info("seed HTML ingested",
			"path", path,
			"url", snap.URL,
			"inferred", snap.Inferred,
			"links", len(links),
		)
		for _, link := range links {
			addSeed(link)
		}
	}
	return nil
}

// CrawlStep runs the crawler over run.Seeds.
type CrawlStep struct {
	crawler *crawler.Crawler
}

// NewCrawlStep creates a crawl step.
func NewCrawlStep(c *crawler.Crawler) *CrawlStep {
	return &CrawlStep{crawler: c}
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do crawls and stores the summary on the run report. An interrupted crawl
// still records its summary before the error is returned.
func (s *CrawlStep) Do(ctx context.Context, run *Run) error {
	summary, err := s.crawler.Crawl(ctx, run.Seeds, run.Resume)
	if summary != nil {
		run.Report.Summary = summary
		run.Report.Citations = len(s.crawler.Citations())
	}
	return err
}

// NormalizeStep renders missing variants of an existing export.
type NormalizeStep struct {
	normalizer *render.Normalizer
}

// NewNormalizeStep creates a normalize step.
func NewNormalizeStep(n *render.Normalizer) *NormalizeStep {
	return &NormalizeStep{normalizer: n}
}

// Name returns the step name.
func (s *NormalizeStep) Name() string {
	return "normalize"
}

// Do runs the HTML, non-HTML and endpoint passes.
func (s *NormalizeStep) Do(ctx context.Context, run *Run) error {
	counts, err := s.normalizer.Run(ctx)
	run.Report.Normalize = &counts
	return err
}

// CitationStep writes the citation files of the pages rendered in a run.
type CitationStep struct {
	source  func() []model.Citation
	formats []citation.Format
}

// NewCitationStep creates a citation step. source is called when the step
// runs, so it sees the citations collected by earlier steps.
func NewCitationStep(source func() []model.Citation, formats ...citation.Format) *CitationStep {
	return &CitationStep{source: source, formats: formats}
}

// Name returns the step name.
func (s *CitationStep) Name() string {
	return "citations"
}

// Do writes one file per format under <export>/citations.
func (s *CitationStep) Do(_ context.Context, run *Run) error {
	items := s.source()
	written, err := citation.WriteFiles(run.ExportDir, items, s.formats...)
	if err != nil {
		return err
	}
	run.Report.Citations = len(items)
	run.Report.CitationFiles = run.Report.CitationFiles[:0]
	for _, f := range s.formats {
		path, ok := written[f]
		if !ok {
			continue
		}
		rel, err := fsutil.RelSlash(run.ExportDir, path)
		if err != nil {
			rel = path
		}
		run.Report.CitationFiles = append(run.Report.CitationFiles, rel)
	}
	return nil
}

// InspectStep verifies that every file the manifest references exists.
type InspectStep struct {
	opts          []inspect.Option
	failOnMissing bool
}

// NewInspectStep creates an inspection step. With failOnMissing the step
// fails with ErrMissingFiles when any referenced file is absent.
func NewInspectStep(failOnMissing bool, opts ...inspect.Option) *InspectStep {
	return &InspectStep{opts: opts, failOnMissing: failOnMissing}
}

// Name returns the step name.
func (s *InspectStep) Name() string {
	return "inspect"
}

// Do inspects the export and stores the result on the run report.
func (s *InspectStep) Do(ctx context.Context, run *Run) error {
	result, err := inspect.Inspect(ctx, run.ExportDir, s.opts...)
	if err != nil {
		return err
	}
	run.Report.Inspection = result
	if s.failOnMissing && result.MissingFiles > 0 {
		return fmt.Errorf("%w: %d file(s)", ErrMissingFiles, result.MissingFiles)
	}
	return nil
}

// HistoryStep stores the run summary in the history database and diffs the
// run against the previous run of the same export.
type HistoryStep struct {
	db     *database.CrawlDB
	logger *slog.Logger
}

// NewHistoryStep creates a history step.
func NewHistoryStep(db *database.CrawlDB, logger *slog.Logger) *HistoryStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryStep{db: db, logger: logger}
}

// Name returns the step name.
func (s *HistoryStep) Name() string {
	return "history"
}

// Do records the summary. A first run has nothing to compare with.
func (s *HistoryStep) Do(ctx context.Context, run *Run) error {
	summary := run.Report.Summary
	if summary == nil {
		return nil
	}
	exportDir := absPath(run.ExportDir)
	if err := s.db.FinishRun(ctx, exportDir, summary); err != nil {
		return err
	}

	diff, err := s.db.CompareLatest(ctx, exportDir)
	if err != nil {
		if errors.Is(err, database.ErrNotEnoughRuns) {
			s.logger.Debug("no previous run to compare", "export", exportDir)
			return nil
		}
		return err
	}
	run.Report.Diff = diff
	return nil
}

// MetricsStep writes the run metrics as a Prometheus textfile.
type MetricsStep struct {
	collector *metrics.Collector
	path      string
}

// NewMetricsStep creates a metrics step writing to path.
func NewMetricsStep(c *metrics.Collector, path string) *MetricsStep {
	return &MetricsStep{collector: c, path: path}
}

// Name returns the step name.
func (s *MetricsStep) Name() string {
	return "metrics"
}

// Do records the summary gauges and writes the textfile.
func (s *MetricsStep) Do(_ context.Context, run *Run) error {
	if run.Report.Summary != nil {
		s.collector.ObserveSummary(run.Report.Summary)
	}
	return s.collector.WriteTextfile(s.path)
}

// ReportStep writes the run report.
type ReportStep struct {
	writer  report.Writer
	version string
}

// NewReportStep creates a report step.
func NewReportStep(w report.Writer, version string) *ReportStep {
	return &ReportStep{writer: w, version: version}
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Do writes the accumulated report.
func (s *ReportStep) Do(_ context.Context, run *Run) error {
	run.Report.Version = s.version
	_, err := s.writer.Write(run.Report)
	return err
}

// absPath returns the absolute form of dir, or dir itself on failure.
func absPath(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}
