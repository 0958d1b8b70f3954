package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/docmirror/internal/database"
	"github.com/nao1215/docmirror/internal/model"
	"github.com/nao1215/docmirror/internal/render"
)

// ErrUnknownFormat is returned by NewWriter for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown report format")

// Format names accepted by NewWriter.
const (
	FormatMarkdown = "md"
	FormatJSON     = "json"
	FormatText     = "text"
)

// RunReport is everything known about a finished run.
// Only Summary is required; the other sections are omitted when nil.
type RunReport struct {
	// Version is the docmirror version that produced the export.
	Version string `json:"version,omitempty"`
	// ExportDir is the export root the run wrote to.
	ExportDir string `json:"export_dir"`
	// Summary is the crawl summary as written to manifest.json.
	Summary *model.Summary `json:"summary"`
	// Normalize holds the counts of the normalization pass, if it ran.
	Normalize *render.Counts `json:"normalize,omitempty"`
	// CitationFiles are the citation exports written for the run.
	CitationFiles []string `json:"citation_files,omitempty"`
	// Citations is the number of rendered pages with a citation.
	Citations int `json:"citations"`
	// Inspection is the export validation result, if it ran.
	Inspection *model.Inspection `json:"inspection,omitempty"`
	// Diff compares the run with the previous run of the same export.
	Diff *database.RunDiff `json:"diff,omitempty"`
}

// Status is a one-word description of how the run ended.
func (r *RunReport) Status() string {
	switch {
	case r.Summary == nil:
		return "unknown"
	case r.Summary.WAFBlockedOnly():
		return "blocked"
	case r.Summary.Interrupted:
		return "interrupted"
	case r.Inspection != nil && r.Inspection.MissingFiles > 0:
		return "incomplete"
	default:
		return "complete"
	}
}

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the report and returns the number of bytes written.
	Write(report *RunReport) (int, error)
}

// NewWriter returns the writer for a format name (md, json or text).
func NewWriter(format string, output io.Writer) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatMarkdown, "markdown":
		return NewMarkdownWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatText, "txt", "":
		return NewSimpleWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to multiple Writers in order.
// It stops at the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
func (m *MultiWriter) Write(report *RunReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statRows lists the crawl counters in a fixed order.
var statRows = []struct {
	key   string
	label string
}{
	{model.StatFetched, "Fetched"},
	{model.StatCacheHit, "Cache hits"},
	{model.StatBlocked, "Blocked"},
	{model.StatBlockedWAF, "Blocked (WAF)"},
	{model.StatError, "Errors"},
	{model.StatIngestedLocal, "Ingested locally"},
}

// truncateString truncates a string to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
