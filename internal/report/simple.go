package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/docmirror/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs plain text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty prints zero counters and empty sections.
	showEmpty bool

	// verbose lists the URLs of a run diff and the missing path sample.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *RunReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeStats(&sb, report.Summary)
	w.writeNormalize(&sb, report)
	w.writeInspection(&sb, report.Inspection)
	w.writeDiff(&sb, report)

	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *RunReport) {
	s := report.Summary
	if s == nil {
		s = &model.Summary{}
	}

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                        DOCMIRROR RUN REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Run ID:          %s\n", s.RunID)
	fmt.Fprintf(sb, "Export:          %s\n", report.ExportDir)
	fmt.Fprintf(sb, "Started:         %s\n", s.StartedAt)
	fmt.Fprintf(sb, "Duration:        %.3fs\n", s.DurationSeconds)
	fmt.Fprintf(sb, "Remaining queue: %d\n", s.RemainingQueue)

	switch report.Status() {
	case "blocked":
		sb.WriteString("Status:          BLOCKED (bot protection, nothing fetched)\n")
	case "interrupted":
		sb.WriteString("Status:          INTERRUPTED (run again to resume)\n")
	case "incomplete":
		sb.WriteString("Status:          INCOMPLETE (missing files)\n")
	default:
		sb.WriteString("Status:          Complete\n")
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeStats(sb *strings.Builder, s *model.Summary) {
	section(sb, "CRAWL STATISTICS")
	for _, row := range statRows {
		n := s.Stat(row.key)
		if n == 0 && !w.showEmpty && row.key != model.StatFetched {
			continue
		}
		fmt.Fprintf(sb, "  %-18s %d\n", row.label+":", n)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeNormalize(sb *strings.Builder, report *RunReport) {
	if report.Normalize == nil && len(report.CitationFiles) == 0 {
		if w.showEmpty {
			section(sb, "NORMALIZATION")
			sb.WriteString("  Not run\n\n")
		}
		return
	}
	section(sb, "NORMALIZATION")
	if n := report.Normalize; n != nil {
		fmt.Fprintf(sb, "  html=%d non_html=%d endpoints=%d\n", n.HTML, n.NonHTML, n.Endpoints)
	}
	for _, f := range report.CitationFiles {
		fmt.Fprintf(sb, "  [+] %s\n", f)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeInspection(sb *strings.Builder, in *model.Inspection) {
	if in == nil {
		return
	}
	section(sb, "EXPORT INSPECTION")
	fmt.Fprintf(sb, "  lines=%d invalid_json=%d referenced_files=%d missing_files=%d\n",
		in.LinesTotal, in.LinesInvalidJSON, in.ReferencedFiles, in.MissingFiles)
	for _, c := range model.SortedCounts(in.MissingByKey) {
		fmt.Fprintf(sb, "  [!] %s: %d missing\n", c.Key, c.Value)
	}
	if w.verbose {
		for _, p := range in.MissingPathsSample {
			fmt.Fprintf(sb, "      %s\n", p)
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeDiff(sb *strings.Builder, report *RunReport) {
	d := report.Diff
	if d == nil {
		return
	}
	section(sb, "CHANGES SINCE PREVIOUS RUN")
	fmt.Fprintf(sb, "  %s -> %s\n", d.OldRunID, d.NewRunID)
	fmt.Fprintf(sb, "  added=%d removed=%d changed=%d\n", len(d.Added), len(d.Removed), len(d.Changed))
	if w.verbose {
		for _, u := range d.Added {
			fmt.Fprintf(sb, "  + %s\n", u)
		}
		for _, u := range d.Removed {
			fmt.Fprintf(sb, "  - %s\n", u)
		}
		for _, u := range d.Changed {
			fmt.Fprintf(sb, "  ~ %s\n", u)
		}
	}
	sb.WriteString("\n")
}
