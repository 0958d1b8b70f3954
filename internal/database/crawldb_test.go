package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/docmirror/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CrawlDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func fetched(u, raw string, status int) model.Event {
	return model.Event{
		Kind:       model.EventFetched,
		URL:        u,
		At:         "2026-01-02T03:04:05Z",
		StatusCode: status,
		Paths:      map[string]string{model.PathRaw: raw},
	}
}

func summary(runID, started string, fetchedCount int) *model.Summary {
	return &model.Summary{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: started,
		Stats: map[string]int{
			model.StatFetched:    fetchedCount,
			model.StatBlockedWAF: 1,
		},
		RemainingQueue: 3,
		Interrupted:    true,
	}
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if err == nil {
			t.Error("expected error for missing database")
		}
	})

	t.Run("reopens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if err := db.BeginRun(context.Background(), "r1", "/out", time.Now()); err != nil {
			t.Fatal(err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen: %v", err)
		}
		defer db.Close()
		runs, err := db.ListRuns(context.Background(), "")
		if err != nil || len(runs) != 1 {
			t.Errorf("ListRuns() = %v, %v", runs, err)
		}
	})
}

func TestRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	started := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	if err := db.BeginRun(ctx, "r1", "/out", started); err != nil {
		t.Fatal(err)
	}
	if err := db.BeginRun(ctx, "r1", "/out", started); err != nil {
		t.Fatalf("second BeginRun() error = %v", err)
	}
	if err := db.FinishRun(ctx, "/out", summary("r1", "2026-01-02T03:00:00Z", 5)); err != nil {
		t.Fatal(err)
	}
	if err := db.FinishRun(ctx, "/other", summary("r2", "2026-01-03T03:00:00Z", 1)); err != nil {
		t.Fatal(err)
	}

	runs, err := db.ListRuns(ctx, "/out")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	r := runs[0]
	if r.RunID != "r1" || r.Fetched != 5 || r.BlockedWAF != 1 || r.RemainingQueue != 3 || !r.Interrupted {
		t.Errorf("run = %+v", r)
	}
	if !r.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", r.StartedAt, started)
	}

	all, err := db.ListRuns(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].RunID != "r2" {
		t.Errorf("all runs = %+v", all)
	}
}

func TestRecordEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	events := []model.Event{
		fetched("https://x/a", "raw/html/1.html", 200),
		{Kind: model.EventBlocked, URL: "https://x/b", Reason: model.ReasonRobots},
		{Kind: model.EventBlocked, URL: "https://x/w", BlockedBy: model.BlockedByAWSWAF, StatusCode: 403},
		{Kind: model.EventError, URL: "https://x/e", Error: "boom"},
		{Kind: model.EventRenderedVariants, URL: "https://x/a"},
	}
	for _, ev := range events {
		if err := db.RecordEvent(ctx, "r1", ev); err != nil {
			t.Fatalf("RecordEvent(%s) error = %v", ev.Kind, err)
		}
	}

	records, err := db.GetFetches(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 {
		t.Fatalf("records = %d, want 4 (rendered events are ignored)", len(records))
	}
	byURL := make(map[string]FetchRecord)
	for _, r := range records {
		byURL[r.URL] = r
	}
	if got := byURL["https://x/a"]; got.Kind != "fetched" || got.RawPath != "raw/html/1.html" || got.At.IsZero() {
		t.Errorf("fetched record = %+v", got)
	}
	if got := byURL["https://x/b"].Reason; got != model.ReasonRobots {
		t.Errorf("robots reason = %q", got)
	}
	if got := byURL["https://x/w"].Reason; got != model.BlockedByAWSWAF {
		t.Errorf("waf reason = %q", got)
	}
	if got := byURL["https://x/e"].Reason; got != "boom" {
		t.Errorf("error reason = %q", got)
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)

	record := func(runID, started string, events ...model.Event) {
		t.Helper()
		if err := db.FinishRun(ctx, "/out", summary(runID, started, len(events))); err != nil {
			t.Fatal(err)
		}
		for _, ev := range events {
			if err := db.RecordEvent(ctx, runID, ev); err != nil {
				t.Fatal(err)
			}
		}
	}

	record("old", "2026-01-01T00:00:00Z",
		fetched("https://x/same", "raw/html/1.html", 200),
		fetched("https://x/changed", "raw/html/2.html", 200),
		fetched("https://x/gone", "raw/html/3.html", 200),
	)
	record("new", "2026-01-02T00:00:00Z",
		fetched("https://x/same", "raw/html/1.html", 200),
		fetched("https://x/changed", "raw/html/9.html", 200),
		fetched("https://x/added", "raw/html/4.html", 200),
		model.Event{Kind: model.EventBlocked, URL: "https://x/gone", Reason: model.ReasonRobots},
	)

	diff, err := db.CompareLatest(ctx, "/out")
	if err != nil {
		t.Fatalf("CompareLatest() error = %v", err)
	}
	if diff.OldRunID != "old" || diff.NewRunID != "new" {
		t.Errorf("compared %s -> %s", diff.OldRunID, diff.NewRunID)
	}
	if len(diff.Added) != 1 || diff.Added[0] != "https://x/added" {
		t.Errorf("Added = %v", diff.Added)
	}
	if len(diff.Removed) != 1 || diff.Removed[0] != "https://x/gone" {
		t.Errorf("Removed = %v", diff.Removed)
	}
	if len(diff.Changed) != 1 || diff.Changed[0] != "https://x/changed" {
		t.Errorf("Changed = %v", diff.Changed)
	}
	if !diff.HasChanges() {
		t.Error("HasChanges() = false")
	}

	if _, err := db.CompareRuns(ctx, "old", "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("CompareRuns() error = %v, want ErrRunNotFound", err)
	}
	if _, err := db.CompareLatest(ctx, "/elsewhere"); !errors.Is(err, ErrNotEnoughRuns) {
		t.Errorf("CompareLatest() error = %v, want ErrNotEnoughRuns", err)
	}
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := setupTestDB(t)
	rec := NewRecorder(ctx, db, "r1", nil)

	rec.OnEvent(fetched("https://x/a", "raw/html/1.html", 200))
	rec.OnEvent(fetched("https://x/a", "raw/html/2.html", 200))
	if err := rec.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	records, err := db.GetFetches(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].RawPath != "raw/html/2.html" {
		t.Errorf("records = %+v", records)
	}

	_ = db.Close()
	rec.OnEvent(fetched("https://x/b", "raw/html/3.html", 200))
	if rec.Err() == nil {
		t.Error("Err() = nil after writing to a closed database")
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		zero bool
	}{
		{"2026-01-02T03:04:05Z", false},
		{"2026-01-02 03:04:05", false},
		{"", true},
		{"garbage", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := parseTimestamp(tt.in); got.IsZero() != tt.zero {
				t.Errorf("parseTimestamp(%q) = %v", tt.in, got)
			}
		})
	}
}
