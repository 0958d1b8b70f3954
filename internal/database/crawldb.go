package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/docmirror/internal/model"
)

// FileName is the database file created inside the database directory.
const FileName = "docmirror.db"

var (
	// ErrRunNotFound is returned when a run ID is unknown.
	ErrRunNotFound = errors.New("run not found")
	// ErrNotEnoughRuns is returned when a comparison needs two runs.
	ErrNotEnoughRuns = errors.New("at least two runs are required to compare")
)

// CrawlDB stores crawl runs and their per-URL outcomes.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per crawl run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		export_dir TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		duration_seconds REAL DEFAULT 0,
		fetched INTEGER DEFAULT 0,
		blocked INTEGER DEFAULT 0,
		blocked_waf INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		ingested_local INTEGER DEFAULT 0,
		cache_hits INTEGER DEFAULT 0,
		remaining_queue INTEGER DEFAULT 0,
		interrupted INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_export ON runs(export_dir);

	-- The outcome of every URL processed by a run
	CREATE TABLE IF NOT EXISTS fetches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		kind TEXT NOT NULL,
		status_code INTEGER,
		content_type TEXT,
		title TEXT,
		raw_path TEXT,
		reason TEXT,
		at TEXT,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_fetches_run ON fetches(run_id);
	CREATE INDEX IF NOT EXISTS idx_fetches_url ON fetches(url);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunRecord is one stored crawl run.
type RunRecord struct {
	ID              int64
	RunID           string
	ExportDir       string
	StartedAt       time.Time
	FinishedAt      time.Time
	DurationSeconds float64
	Fetched         int
	Blocked         int
	BlockedWAF      int
	Errors          int
	IngestedLocal   int
	CacheHits       int
	RemainingQueue  int
	Interrupted     bool
}

// BeginRun registers a run before its first event is recorded.
// Registering the same run twice is a no-op.
func (cdb *CrawlDB) BeginRun(ctx context.Context, runID, exportDir string, startedAt time.Time) error {
	query := `
	INSERT INTO runs (run_id, export_dir, started_at)
	VALUES (?, ?, ?)
	ON CONFLICT(run_id) DO NOTHING
	`
	if _, err := cdb.db.ExecContext(ctx, query, runID, exportDir, model.FormatTimestamp(startedAt)); err != nil {
		return fmt.Errorf("failed to begin run: %w", err)
	}
	return nil
}

// FinishRun stores the summary counters of a run, creating the run if needed.
func (cdb *CrawlDB) FinishRun(ctx context.Context, exportDir string, s *model.Summary) error {
	query := `
	INSERT INTO runs (run_id, export_dir, started_at, finished_at, duration_seconds,
		fetched, blocked, blocked_waf, errors, ingested_local, cache_hits, remaining_queue, interrupted)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		finished_at = excluded.finished_at,
		duration_seconds = excluded.duration_seconds,
		fetched = excluded.fetched,
		blocked = excluded.blocked,
		blocked_waf = excluded.blocked_waf,
		errors = excluded.errors,
		ingested_local = excluded.ingested_local,
		cache_hits = excluded.cache_hits,
		remaining_queue = excluded.remaining_queue,
		interrupted = excluded.interrupted
	`
	_, err := cdb.db.ExecContext(ctx, query,
		s.RunID,
		exportDir,
		s.StartedAt,
		s.FinishedAt,
		s.DurationSeconds,
		s.Stat(model.StatFetched),
		s.Stat(model.StatBlocked),
		s.Stat(model.StatBlockedWAF),
		s.Stat(model.StatError),
		s.Stat(model.StatIngestedLocal),
		s.Stat(model.StatCacheHit),
		s.RemainingQueue,
		s.Interrupted,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// ListRuns returns the runs of exportDir, newest first. An empty
// exportDir lists every run.
func (cdb *CrawlDB) ListRuns(ctx context.Context, exportDir string) ([]RunRecord, error) {
	query := `
	SELECT id, run_id, export_dir, started_at, COALESCE(finished_at, ''), duration_seconds,
		fetched, blocked, blocked_waf, errors, ingested_local, cache_hits, remaining_queue, interrupted
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0)
	if exportDir != "" {
		query += " AND export_dir = ?"
		args = append(args, exportDir)
	}
	query += " ORDER BY started_at DESC, id DESC"

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished string
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.ExportDir, &started, &finished, &r.DurationSeconds,
			&r.Fetched, &r.Blocked, &r.BlockedWAF, &r.Errors, &r.IngestedLocal,
			&r.CacheHits, &r.RemainingQueue, &r.Interrupted,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = parseTimestamp(started)
		r.FinishedAt = parseTimestamp(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FetchRecord is the stored outcome of one URL in one run.
type FetchRecord struct {
	RunID       string
	URL         string
	Kind        string
	StatusCode  int
	ContentType string
	Title       string
	RawPath     string
	Reason      string
	At          time.Time
}

// recordedKinds are the event kinds that describe a URL outcome.
var recordedKinds = map[model.EventKind]bool{
	model.EventFetched:       true,
	model.EventBlocked:       true,
	model.EventError:         true,
	model.EventIngestedLocal: true,
}

// RecordEvent stores the outcome described by ev. Events that do not
// describe a URL outcome (normalize passes) are ignored.
func (cdb *CrawlDB) RecordEvent(ctx context.Context, runID string, ev model.Event) error {
	if !recordedKinds[ev.Kind] {
		return nil
	}

	reason := ev.Reason
	if reason == "" {
		reason = ev.BlockedBy
	}
	if reason == "" {
		reason = ev.Error
	}

	query := `
	INSERT INTO fetches (run_id, url, kind, status_code, content_type, title, raw_path, reason, at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, url) DO UPDATE SET
		kind = excluded.kind,
		status_code = excluded.status_code,
		content_type = excluded.content_type,
		title = excluded.title,
		raw_path = excluded.raw_path,
		reason = excluded.reason,
		at = excluded.at
	`
	_, err := cdb.db.ExecContext(ctx, query,
		runID,
		ev.URL,
		string(ev.Kind),
		ev.StatusCode,
		ev.ContentType,
		ev.Title,
		ev.Path(model.PathRaw),
		reason,
		ev.At,
	)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", ev.Kind, err)
	}
	return nil
}

// GetFetches returns the outcomes recorded for runID ordered by URL.
func (cdb *CrawlDB) GetFetches(ctx context.Context, runID string) ([]FetchRecord, error) {
	query := `
	SELECT run_id, url, kind, COALESCE(status_code, 0), COALESCE(content_type, ''),
		COALESCE(title, ''), COALESCE(raw_path, ''), COALESCE(reason, ''), COALESCE(at, '')
	FROM fetches
	WHERE run_id = ?
	ORDER BY url
	`
	rows, err := cdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get fetches: %w", err)
	}
	defer rows.Close()

	var records []FetchRecord
	for rows.Next() {
		var r FetchRecord
		var at string
		if err := rows.Scan(&r.RunID, &r.URL, &r.Kind, &r.StatusCode, &r.ContentType,
			&r.Title, &r.RawPath, &r.Reason, &at); err != nil {
			return nil, fmt.Errorf("failed to scan fetch: %w", err)
		}
		r.At = parseTimestamp(at)
		records = append(records, r)
	}
	return records, rows.Err()
}

// RunDiff lists the URL-level differences between two runs.
type RunDiff struct {
	OldRunID string `json:"old_run_id"`
	NewRunID string `json:"new_run_id"`
	// Added are URLs fetched by the new run only.
	Added []string `json:"added"`
	// Removed are URLs fetched by the old run only.
	Removed []string `json:"removed"`
	// Changed are URLs whose status or stored content differs.
	Changed []string `json:"changed"`
}

// HasChanges reports whether the diff is non-empty.
func (d *RunDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Changed) > 0
}

// CompareRuns diffs the fetched URLs of two runs. Raw paths are content
// addressed, so a different raw path means different content.
func (cdb *CrawlDB) CompareRuns(ctx context.Context, oldRunID, newRunID string) (*RunDiff, error) {
	oldSet, err := cdb.fetchedSet(ctx, oldRunID)
	if err != nil {
		return nil, err
	}
	newSet, err := cdb.fetchedSet(ctx, newRunID)
	if err != nil {
		return nil, err
	}

	diff := &RunDiff{OldRunID: oldRunID, NewRunID: newRunID}
	for u, rec := range newSet {
		prev, ok := oldSet[u]
		switch {
		case !ok:
			diff.Added = append(diff.Added, u)
		case prev.RawPath != rec.RawPath || prev.StatusCode != rec.StatusCode:
			diff.Changed = append(diff.Changed, u)
		}
	}
	for u := range oldSet {
		if _, ok := newSet[u]; !ok {
			diff.Removed = append(diff.Removed, u)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Changed)
	return diff, nil
}

// CompareLatest diffs the two most recent runs of exportDir.
func (cdb *CrawlDB) CompareLatest(ctx context.Context, exportDir string) (*RunDiff, error) {
	runs, err := cdb.ListRuns(ctx, exportDir)
	if err != nil {
		return nil, err
	}
	if len(runs) < 2 {
		return nil, ErrNotEnoughRuns
	}
	return cdb.CompareRuns(ctx, runs[1].RunID, runs[0].RunID)
}

// fetchedSet returns the fetched and ingested URLs of runID keyed by URL.
func (cdb *CrawlDB) fetchedSet(ctx context.Context, runID string) (map[string]FetchRecord, error) {
	var exists int
	err := cdb.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE run_id = ?", runID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	records, err := cdb.GetFetches(ctx, runID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]FetchRecord, len(records))
	for _, r := range records {
		if r.Kind == string(model.EventFetched) || r.Kind == string(model.EventIngestedLocal) {
			set[r.URL] = r
		}
	}
	return set, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	model.TimestampFormat,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// parseTimestamp parses s with each known format and returns the zero
// time when none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
