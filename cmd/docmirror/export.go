package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/docmirror/internal/config"
	"github.com/nao1215/docmirror/internal/crawler"
	"github.com/nao1215/docmirror/internal/database"
	"github.com/nao1215/docmirror/internal/fetch"
	"github.com/nao1215/docmirror/internal/fsutil"
	"github.com/nao1215/docmirror/internal/log"
	"github.com/nao1215/docmirror/internal/metrics"
	"github.com/nao1215/docmirror/internal/pipeline"
	"github.com/nao1215/docmirror/internal/render"
	"github.com/nao1215/docmirror/internal/report"
)

// wafBlockedMessage is printed when every page was a bot-protection challenge.
const wafBlockedMessage = "Blocked by AWS WAF JS challenge; no pages fetched. See manifest.jsonl for details."

// newLogger creates the command logger. With a log file the output is
// written to both stderr and the rotated file; the returned function
// closes the file.
func newLogger(cmd *cobra.Command, logFile string, verbose bool) (*slog.Logger, func() error) {
	w := cmd.ErrOrStderr()
	closer := func() error { return nil }
	if logFile != "" {
		fw := log.NewFileWriter(logFile)
		w = io.MultiWriter(w, fw)
		closer = fw.Close
	}
	return log.NewSecureLogger(w, verbose), closer
}

// withSignals returns a context cancelled on SIGINT or SIGTERM.
func withSignals(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, saving crawl state...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// exportJob owns the collaborators of one crawl of one export directory.
type exportJob struct {
	cfg       *config.Config
	logger    *slog.Logger
	crawler   *crawler.Crawler
	db        *database.CrawlDB
	recorder  *database.Recorder
	collector *metrics.Collector
	progress  *progressObserver
	snapshots []string
}

// newExportJob builds the HTTP client, the crawler and its observers.
// Call Close when done.
func newExportJob(ctx context.Context, cfg *config.Config, logger *slog.Logger, stderr io.Writer) (*exportJob, error) {
	snapshots, err := snapshotFiles(cfg)
	if err != nil {
		return nil, err
	}

	fetchOpts := []fetch.Option{
		fetch.WithMaxRetries(cfg.MaxRetries),
		fetch.WithBackoffBase(cfg.BackoffBase),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithLogger(logger),
	}
	if cfg.ProxyAddress != "" {
		fetchOpts = append(fetchOpts, fetch.WithProxy(cfg.ProxyAddress))
	}
	if cfg.Cookie != "" || len(cfg.Headers) > 0 {
		fetchOpts = append(fetchOpts, fetch.WithHeaders(cfg.Cookie, cfg.Headers))
	}
	client, err := fetch.NewClient(cfg.Timeout, fetchOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	job := &exportJob{
		cfg:       cfg,
		logger:    logger,
		collector: metrics.NewCollector(),
		snapshots: snapshots,
	}
	observers := []crawler.Observer{job.collector}
	if cfg.Progress {
		job.progress = newProgressObserver(stderr, cfg.MaxPages)
		observers = append(observers, job.progress)
	}

	runID := uuid.NewString()
	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.BeginRun(ctx, runID, absDir(cfg.OutDir), time.Now()); err != nil {
			_ = db.Close() //nolint:errcheck // already failing
			return nil, err
		}
		job.db = db
		job.recorder = database.NewRecorder(ctx, db, runID, logger)
		observers = append(observers, job.recorder)
		logger.Debug("database opened", "dir", cfg.DBDir, "run_id", runID)
	}

	c, err := crawler.New(crawler.Config{
		OutDir:         cfg.OutDir,
		Scope:          cfg.Scope(),
		MaxPages:       cfg.MaxPages,
		MaxDepth:       cfg.MaxDepth,
		PerHostDelay:   cfg.PerHostDelay,
		RespectRobots:  cfg.RespectRobots,
		RefreshCache:   cfg.RefreshCache,
		Revalidate:     cfg.Revalidate,
		MaxRenderChars: cfg.MaxRenderChars,
	}, client,
		crawler.WithLogger(logger),
		crawler.WithObserver(observers...),
		crawler.WithRunID(runID),
	)
	if err != nil {
		_ = job.Close() //nolint:errcheck // already failing
		return nil, err
	}
	job.crawler = c
	return job, nil
}

// Close finishes the progress bar and closes the database.
func (j *exportJob) Close() error {
	if j.progress != nil {
		j.progress.Finish()
	}
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// recordInterrupted stores the partial summary of a cancelled crawl, which
// the pipeline never reaches the history step for.
func (j *exportJob) recordInterrupted(run *pipeline.Run) {
	if j.db == nil || run.Report.Summary == nil {
		return
	}
	if err := j.db.FinishRun(context.Background(), absDir(j.cfg.OutDir), run.Report.Summary); err != nil {
		j.logger.Warn("failed to record interrupted run", "error", err)
	}
}

// seedPipeline ingests the browser-saved pages.
func (j *exportJob) seedPipeline() *pipeline.Pipeline {
	p := pipeline.New(pipeline.WithLogger(j.logger))
	p.AddStep(pipeline.NewSnapshotStep(j.crawler, j.snapshots,
		pipeline.WithSnapshotDefaultURL(j.cfg.SeedURL),
		pipeline.WithSnapshotLogger(j.logger),
	))
	return p
}

// crawlPipeline crawls, renders the missing variants, writes citations,
// inspects the export and records history, metrics and the report.
// A nil writer skips the report.
func (j *exportJob) crawlPipeline(w report.Writer) *pipeline.Pipeline {
	cfg := j.cfg
	p := pipeline.New(pipeline.WithLogger(j.logger))
	p.AddSteps(
		pipeline.NewCrawlStep(j.crawler),
		pipeline.NewNormalizeStep(newNormalizer(cfg.OutDir, cfg.EndpointRule, cfg.MaxRenderChars, j.logger)),
	)
	if len(cfg.CitationFormats) > 0 {
		p.AddStep(pipeline.NewCitationStep(j.crawler.Citations, cfg.CitationFormats...))
	}
	p.AddStep(pipeline.NewInspectStep(false))
	if j.db != nil {
		p.AddStep(pipeline.NewHistoryStep(j.db, j.logger))
	}
	if cfg.MetricsFile != "" {
		p.AddStep(pipeline.NewMetricsStep(j.collector, cfg.MetricsFile))
	}
	if w != nil {
		p.AddStep(pipeline.NewReportStep(w, getVersion()))
	}
	return p
}

// newNormalizer returns a Normalizer for dir.
func newNormalizer(dir string, rule render.EndpointRule, maxChars int, logger *slog.Logger) *render.Normalizer {
	return render.NewNormalizer(dir,
		render.WithEndpointRule(rule),
		render.WithRenderer(render.NewRenderer(dir, render.WithMaxChars(maxChars))),
		render.WithLogger(logger),
	)
}

// snapshotFiles lists the browser-saved pages named by the configuration.
func snapshotFiles(cfg *config.Config) ([]string, error) {
	files := append([]string(nil), cfg.SeedHTML...)
	if cfg.SeedHTMLDir != "" {
		found, err := crawler.CollectSnapshotFiles(cfg.SeedHTMLDir)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

// exportOptions tune runExport for one command.
type exportOptions struct {
	// writeReport adds the report step.
	writeReport bool
	// requireSnapshotLinks fails the run when the saved pages yield no links.
	requireSnapshotLinks bool
}

// runExport executes a full crawl of cfg.OutDir and returns the run.
// Errors carry their exit code.
func runExport(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, opts exportOptions) (*pipeline.Run, error) {
	job, err := newExportJob(ctx, cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		return nil, withCode(exitFailure, err)
	}
	defer func() {
		if err := job.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}()

	run := pipeline.NewRun(cfg.OutDir, cfg.Seeds, cfg.Resume)
	if len(job.snapshots) > 0 {
		if err := job.seedPipeline().Execute(ctx, run); err != nil {
			return run, withCode(exitFailure, err)
		}
		if opts.requireSnapshotLinks && len(run.Seeds) == 0 {
			return run, usageError("No links found in provided seed HTML; cannot bootstrap crawl.")
		}
	}

	var w report.Writer
	if opts.writeReport {
		out, closeOut, err := reportOutput(cmd, cfg.ReportFile)
		if err != nil {
			return run, withCode(exitFailure, err)
		}
		defer closeOut()
		if w, err = report.NewWriter(cfg.ReportFormat, out); err != nil {
			return run, withCode(exitFailure, err)
		}
	}

	if err := job.crawlPipeline(w).Execute(ctx, run); err != nil {
		if errors.Is(err, context.Canceled) {
			job.recordInterrupted(run)
			return run, withCode(exitInterrupted,
				fmt.Errorf("crawl interrupted; run the same command again to resume (%s)", cfg.OutDir))
		}
		return run, withCode(exitFailure, err)
	}
	if job.recorder != nil {
		if err := job.recorder.Err(); err != nil {
			logger.Warn("crawl history is incomplete", "error", err)
		}
	}
	return run, nil
}

// checkRun maps the outcome of a finished run to an exit code.
func checkRun(run *pipeline.Run, validate bool) error {
	if run.Report.Summary.WAFBlockedOnly() {
		return withCode(exitBlocked, errors.New(wafBlockedMessage))
	}
	if validate && run.Report.Inspection != nil && run.Report.Inspection.MissingFiles > 0 {
		return withCode(exitInvalid,
			fmt.Errorf("%w: missing_files=%d", pipeline.ErrMissingFiles, run.Report.Inspection.MissingFiles))
	}
	return nil
}

// reportOutput opens the report destination: path, or stdout when empty.
func reportOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, fsutil.DirPerm); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // operator-chosen path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil //nolint:errcheck // write errors surface from Write
}

// absDir returns the absolute form of dir, or dir itself on failure.
func absDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}
