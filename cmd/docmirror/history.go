package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/docmirror/internal/database"
)

// NewHistoryCmd creates the history command.
// It lists recorded runs and compares the fetched URLs of two runs.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded crawl runs and compare them",
		Long: `History shows the crawl runs recorded in the history database.

Every crawl and uspto-data run stores its counters and the outcome of each
URL. Comparing two runs of the same export lists the URLs that are new,
gone, or whose content or status changed.

Examples:
  # List every recorded run
  docmirror history

  # List the runs of one export
  docmirror history --export ./export

  # Compare the latest two runs of an export
  docmirror history --export ./export --compare

  # Compare the latest run with a specific earlier run
  docmirror history --export ./export --compare --with-run 7f0c...

  # JSON output
  docmirror history --export ./export --compare --json`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("export", "e", "", "Export directory whose runs are shown")
	cmd.Flags().Bool("compare", false, "Compare the latest run with the previous one (requires --export)")
	cmd.Flags().String("with-run", "", "Run ID compared with the latest run instead of the previous one")
	cmd.Flags().BoolP("json", "j", false, "Output in JSON format")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	exportDir, err := flags.GetString("export")
	if err != nil {
		return err
	}
	compare, err := flags.GetBool("compare")
	if err != nil {
		return err
	}
	withRun, err := flags.GetString("with-run")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	if (compare || withRun != "") && exportDir == "" {
		return usageError("--compare requires --export")
	}
	if exportDir != "" {
		exportDir = absDir(exportDir)
	}

	db, err := database.Open(getDBDir(cmd), database.DefaultOptions())
	if err != nil {
		return withCode(exitFailure, fmt.Errorf("failed to open database: %w", err))
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if compare || withRun != "" {
		result, err := compareRuns(ctx, db, exportDir, withRun)
		if err != nil {
			return withCode(exitFailure, err)
		}
		if jsonOutput {
			return writeJSON(out, result)
		}
		writeComparisonText(out, result)
		return nil
	}

	runs, err := db.ListRuns(ctx, exportDir)
	if err != nil {
		return withCode(exitFailure, err)
	}
	if jsonOutput {
		summaries := make([]runSummary, 0, len(runs))
		for _, r := range runs {
			summaries = append(summaries, newRunSummary(r))
		}
		return writeJSON(out, summaries)
	}
	writeRunList(out, runs, exportDir)
	return nil
}

// runSummary is the JSON form of a recorded run.
type runSummary struct {
	RunID           string    `json:"run_id"`
	ExportDir       string    `json:"export_dir"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at,omitzero"`
	DurationSeconds float64   `json:"duration_seconds"`
	Fetched         int       `json:"fetched"`
	Blocked         int       `json:"blocked"`
	BlockedWAF      int       `json:"blocked_waf"`
	Errors          int       `json:"error"`
	IngestedLocal   int       `json:"ingested_local"`
	CacheHits       int       `json:"cache_hit"`
	RemainingQueue  int       `json:"remaining_queue"`
	Interrupted     bool      `json:"interrupted"`
}

func newRunSummary(r database.RunRecord) runSummary {
	return runSummary{
		RunID:           r.RunID,
		ExportDir:       r.ExportDir,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		DurationSeconds: r.DurationSeconds,
		Fetched:         r.Fetched,
		Blocked:         r.Blocked,
		BlockedWAF:      r.BlockedWAF,
		Errors:          r.Errors,
		IngestedLocal:   r.IngestedLocal,
		CacheHits:       r.CacheHits,
		RemainingQueue:  r.RemainingQueue,
		Interrupted:     r.Interrupted,
	}
}

// ComparisonResult holds the result of comparing two runs of one export.
type ComparisonResult struct {
	ExportDir string            `json:"export_dir"`
	Previous  runSummary        `json:"previous_run"`
	Current   runSummary        `json:"current_run"`
	Diff      *database.RunDiff `json:"diff"`
}

// compareRuns diffs the latest run of exportDir with withRun, or with the
// run before it when withRun is empty.
func compareRuns(ctx context.Context, db *database.CrawlDB, exportDir, withRun string) (*ComparisonResult, error) {
	runs, err := db.ListRuns(ctx, exportDir)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs recorded for %s", exportDir)
	}
	current := runs[0]

	var previous *database.RunRecord
	if withRun != "" {
		for i := range runs {
			if runs[i].RunID == withRun {
				previous = &runs[i]
				break
			}
		}
		if previous == nil {
			return nil, fmt.Errorf("run %s not found for %s", withRun, exportDir)
		}
		if previous.RunID == current.RunID {
			return nil, fmt.Errorf("run %s is the latest run; choose an earlier one", withRun)
		}
	} else {
		if len(runs) < 2 {
			return nil, fmt.Errorf("%w: at least 2 runs are required for comparison (found %d)",
				database.ErrNotEnoughRuns, len(runs))
		}
		previous = &runs[1]
	}

	diff, err := db.CompareRuns(ctx, previous.RunID, current.RunID)
	if err != nil {
		return nil, err
	}
	return &ComparisonResult{
		ExportDir: exportDir,
		Previous:  newRunSummary(*previous),
		Current:   newRunSummary(current),
		Diff:      diff,
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return withCode(exitFailure, err)
	}
	return nil
}

// writeRunList prints the runs as a table. The export column is shown
// only when runs of several exports are listed.
func writeRunList(w io.Writer, runs []database.RunRecord, exportDir string) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		fmt.Fprintln(w, "\nUse 'docmirror crawl' to mirror a site.")
		return
	}

	if exportDir != "" {
		fmt.Fprintf(w, "Runs of %s (%d):\n\n", exportDir, len(runs))
	} else {
		fmt.Fprintf(w, "Recorded runs (%d):\n\n", len(runs))
	}
	fmt.Fprintf(w, "  %-36s  %-19s  %7s  %7s  %5s  %5s  %s\n",
		"Run ID", "Started", "Fetched", "Blocked", "WAF", "Error", "Notes")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 100))
	for _, r := range runs {
		var notes []string
		if r.Interrupted {
			notes = append(notes, "interrupted")
		}
		if r.FinishedAt.IsZero() {
			notes = append(notes, "unfinished")
		}
		if exportDir == "" {
			notes = append(notes, r.ExportDir)
		}
		fmt.Fprintf(w, "  %-36s  %-19s  %7d  %7d  %5d  %5d  %s\n",
			r.RunID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Fetched, r.Blocked, r.BlockedWAF, r.Errors,
			strings.Join(notes, " "),
		)
	}

	if exportDir == "" {
		fmt.Fprintln(w, "\nUse 'docmirror history --export <dir> --compare' to compare the latest two runs.")
	}
}

// writeComparisonText prints a comparison in human-readable text format.
func writeComparisonText(w io.Writer, result *ComparisonResult) {
	fmt.Fprintf(w, "Run Comparison: %s\n", result.ExportDir)
	fmt.Fprintln(w, strings.Repeat("=", 60))

	prev, cur := result.Previous, result.Current
	fmt.Fprintf(w, "\nPrevious run: %s (%s)\n", prev.RunID, prev.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Current run:  %s (%s)\n", cur.RunID, cur.StartedAt.Local().Format(time.DateTime))

	fmt.Fprintln(w, "\nCounters:")
	fmt.Fprintf(w, "  %-14s  %-10s  %-10s  %-10s\n", "Stat", "Previous", "Current", "Change")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 50))
	for _, row := range []struct {
		label     string
		prev, cur int
	}{
		{"fetched", prev.Fetched, cur.Fetched},
		{"cache_hit", prev.CacheHits, cur.CacheHits},
		{"blocked", prev.Blocked, cur.Blocked},
		{"blocked_waf", prev.BlockedWAF, cur.BlockedWAF},
		{"error", prev.Errors, cur.Errors},
		{"ingested_local", prev.IngestedLocal, cur.IngestedLocal},
	} {
		fmt.Fprintf(w, "  %-14s  %-10d  %-10d  %-10s\n", row.label, row.prev, row.cur, formatDelta(row.cur-row.prev))
	}

	diff := result.Diff
	if !diff.HasChanges() {
		fmt.Fprintln(w, "\nNo URL changes.")
		return
	}
	writeURLs(w, "Added", "+", diff.Added)
	writeURLs(w, "Removed", "-", diff.Removed)
	writeURLs(w, "Changed", "~", diff.Changed)
}

func writeURLs(w io.Writer, title, marker string, urls []string) {
	if len(urls) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s URLs (%d):\n", title, len(urls))
	for _, u := range urls {
		fmt.Fprintf(w, "  [%s] %s\n", marker, u)
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
