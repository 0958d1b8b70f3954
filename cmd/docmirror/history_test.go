package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/docmirror/internal/database"
)

func TestHistoryEmpty(t *testing.T) {
	t.Parallel()

	res := execute(t, t.TempDir(), "history")
	if res.code != exitOK {
		t.Fatalf("code = %d, stderr:\n%s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "No runs recorded.") {
		t.Errorf("output = %q", res.stdout)
	}

	res = execute(t, t.TempDir(), "history", "--json")
	if res.code != exitOK {
		t.Fatalf("code = %d", res.code)
	}
	if strings.TrimSpace(res.stdout) != "[]" {
		t.Errorf("json output = %q, want []", res.stdout)
	}
}

func TestHistoryCompareRequiresExport(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"history", "--compare"},
		{"history", "--with-run", "abc"},
	} {
		res := execute(t, t.TempDir(), args...)
		if res.code != exitFailure {
			t.Errorf("%v: code = %d, want %d", args, res.code, exitFailure)
		}
		if !strings.Contains(res.stderr, "--compare requires --export") {
			t.Errorf("%v: stderr = %q", args, res.stderr)
		}
	}
}

func TestHistoryRuns(t *testing.T) {
	t.Parallel()

	srv := newDocSite(t)
	out := t.TempDir()
	dbDir := t.TempDir()

	if res := execute(t, dbDir, crawlArgs(t, srv, out)...); res.code != exitOK {
		t.Fatalf("crawl failed with %d:\n%s", res.code, res.stderr)
	}

	listRuns := func(t *testing.T) []runSummary {
		t.Helper()
		res := execute(t, dbDir, "history", "--export", out, "--json")
		if res.code != exitOK {
			t.Fatalf("code = %d, stderr:\n%s", res.code, res.stderr)
		}
		var runs []runSummary
		if err := json.Unmarshal([]byte(res.stdout), &runs); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, res.stdout)
		}
		return runs
	}

	runs := listRuns(t)
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	first := runs[0]
	if first.ExportDir != out || first.Fetched != 3 || first.Blocked != 1 {
		t.Errorf("unexpected run %+v", first)
	}
	if first.FinishedAt.IsZero() || first.Interrupted {
		t.Errorf("run was not finished cleanly: %+v", first)
	}

	res := execute(t, dbDir, "history", "--export", out, "--compare")
	if res.code != exitFailure {
		t.Errorf("compare with one run: code = %d, want %d", res.code, exitFailure)
	}
	if !strings.Contains(res.stderr, "at least 2 runs are required") {
		t.Errorf("stderr = %q", res.stderr)
	}

	// A completed export resumes with nothing left to fetch.
	if res := execute(t, dbDir, crawlArgs(t, srv, out)...); res.code != exitOK {
		t.Fatalf("second crawl failed with %d:\n%s", res.code, res.stderr)
	}
	runs = listRuns(t)
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}

	res = execute(t, dbDir, "history", "--export", out, "--with-run", first.RunID, "--json")
	if res.code != exitOK {
		t.Fatalf("code = %d, stderr:\n%s", res.code, res.stderr)
	}
	var cmp ComparisonResult
	if err := json.Unmarshal([]byte(res.stdout), &cmp); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, res.stdout)
	}
	if cmp.Previous.RunID != first.RunID || cmp.Current.RunID == first.RunID {
		t.Errorf("compared %s with %s", cmp.Previous.RunID, cmp.Current.RunID)
	}
	if cmp.Diff == nil {
		t.Fatal("diff is nil")
	}

	res = execute(t, dbDir, "history", "--export", out, "--with-run", "no-such-run")
	if res.code != exitFailure {
		t.Errorf("unknown run: code = %d", res.code)
	}

	res = execute(t, dbDir, "history")
	if !strings.Contains(res.stdout, "Recorded runs (2):") || !strings.Contains(res.stdout, first.RunID) {
		t.Errorf("list output:\n%s", res.stdout)
	}
}

func TestFormatDelta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta int
		want  string
	}{
		{delta: 0, want: "0"},
		{delta: 3, want: "+3"},
		{delta: -2, want: "-2"},
	}
	for _, tt := range tests {
		if got := formatDelta(tt.delta); got != tt.want {
			t.Errorf("formatDelta(%d) = %q, want %q", tt.delta, got, tt.want)
		}
	}
}

func TestNewRunSummaryKeepsUnfinishedRuns(t *testing.T) {
	t.Parallel()

	s := newRunSummary(database.RunRecord{RunID: "r1", StartedAt: time.Now()})
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "finished_at") {
		t.Errorf("unfinished run should omit finished_at: %s", data)
	}
}
