package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/docmirror/internal/model"
)

// MarkdownWriter outputs reports in GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeStats(md, report)
	w.writeConfig(md, report)
	w.writeNormalize(md, report)
	w.writeCitations(md, report)
	w.writeInspection(md, report)
	w.writeDiff(md, report)
	w.writeFooter(md, report)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *RunReport) {
	md.H1("docmirror Run Report")
	md.PlainText("")

	s := report.Summary
	if s == nil {
		s = &model.Summary{}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + s.RunID + "`"},
			{"Export", "`" + report.ExportDir + "`"},
			{"Started", s.StartedAt},
			{"Finished", s.FinishedAt},
			{"Duration", strconv.FormatFloat(s.DurationSeconds, 'f', 3, 64) + "s"},
			{"Remaining queue", strconv.Itoa(s.RemainingQueue)},
			{"Status", statusText(report)},
		},
	})
	md.PlainText("")
}

func statusText(report *RunReport) string {
	switch report.Status() {
	case "blocked":
		return "⛔ Blocked by bot protection"
	case "interrupted":
		return "⚠️ Interrupted (resumable)"
	case "incomplete":
		return "❌ Export has missing files"
	case "complete":
		return "✅ Complete"
	default:
		return "Unknown"
	}
}

func (w *MarkdownWriter) writeStats(md *markdown.Markdown, report *RunReport) {
	md.H2("Crawl Statistics")
	md.PlainText("")

	rows := make([][]string, 0, len(statRows))
	total := 0
	for _, row := range statRows {
		n := report.Summary.Stat(row.key)
		rows = append(rows, []string{row.label, strconv.Itoa(n)})
		if row.key != model.StatCacheHit {
			total += n
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if total > 0 {
		w.writePieChart(md, report.Summary)
	}
	w.writeAlert(md, report.Summary)
}

// writePieChart writes a mermaid pie chart of URL outcomes.
// Cache hits are a subset of fetched URLs and are left out.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("URL Outcomes"),
		piechart.WithShowData(true),
	)
	for _, row := range statRows {
		if row.key == model.StatCacheHit {
			continue
		}
		if n := s.Stat(row.key); n > 0 {
			chart.LabelAndIntValue(row.label, uint64(n)) //nolint:gosec // n is positive
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *model.Summary) {
	switch {
	case s.WAFBlockedOnly():
		md.Cautionf(
			"Nothing was fetched: %d request(s) hit a bot-protection challenge. Seed the crawl from browser-saved pages.",
			s.Stat(model.StatBlockedWAF),
		)
	case s != nil && s.Interrupted:
		md.Warningf(
			"The run was interrupted with %d URL(s) still queued. Run the same command again to resume.",
			s.RemainingQueue,
		)
	case s.Stat(model.StatError) > 0:
		md.Importantf("%d URL(s) failed and will not be retried on resume.", s.Stat(model.StatError))
	case s.Stat(model.StatBlockedWAF) > 0:
		md.Note(fmt.Sprintf("%d response(s) were bot-protection challenges.", s.Stat(model.StatBlockedWAF)))
	default:
		md.Tip("All reachable URLs were captured.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeConfig(md *markdown.Markdown, report *RunReport) {
	if report.Summary == nil {
		return
	}
	c := report.Summary.Config

	md.H2("Configuration")
	md.PlainText("")
	suffixes := "-"
	if len(c.AllowHostSuffixes) > 0 {
		suffixes = "`" + strings.Join(c.AllowHostSuffixes, "`, `") + "`"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Setting", "Value"},
		Rows: [][]string{
			{"Allowed host suffixes", suffixes},
			{"Follow offsite", strconv.FormatBool(c.FollowOffsite)},
			{"Max pages", strconv.Itoa(c.MaxPages)},
			{"Max depth", strconv.Itoa(c.MaxDepth)},
			{"Per-host delay", strconv.FormatFloat(c.PerHostDelayS, 'f', -1, 64) + "s"},
			{"Respect robots.txt", strconv.FormatBool(c.RespectRobots)},
			{"Refresh cache", strconv.FormatBool(c.RefreshCache)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeNormalize(md *markdown.Markdown, report *RunReport) {
	if report.Normalize == nil {
		return
	}
	md.H2("Normalization")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Pass", "Rendered"},
		Rows: [][]string{
			{"HTML pages", strconv.Itoa(report.Normalize.HTML)},
			{"Non-HTML documents", strconv.Itoa(report.Normalize.NonHTML)},
			{"Endpoint responses", strconv.Itoa(report.Normalize.Endpoints)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeCitations(md *markdown.Markdown, report *RunReport) {
	if len(report.CitationFiles) == 0 {
		return
	}
	md.H2("Citations")
	md.PlainText("")
	md.PlainTextf("%d page(s) cited.", report.Citations)
	md.PlainText("")
	files := make([]string, len(report.CitationFiles))
	for i, f := range report.CitationFiles {
		files[i] = "`" + f + "`"
	}
	md.BulletList(files...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeInspection(md *markdown.Markdown, report *RunReport) {
	in := report.Inspection
	if in == nil {
		return
	}
	md.H2("Export Inspection")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Check", "Value"},
		Rows: [][]string{
			{"Manifest lines", strconv.Itoa(in.LinesTotal)},
			{"Invalid JSON lines", strconv.Itoa(in.LinesInvalidJSON)},
			{"Referenced files", strconv.Itoa(in.ReferencedFiles)},
			{"Missing files", strconv.Itoa(in.MissingFiles)},
		},
	})
	md.PlainText("")

	if kinds := model.SortedCounts(in.Kinds); len(kinds) > 0 {
		rows := make([][]string, len(kinds))
		for i, k := range kinds {
			rows[i] = []string{"`" + k.Key + "`", strconv.Itoa(k.Value)}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Event kind", "Count"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if in.MissingFiles == 0 {
		md.Tip("Every file referenced by the manifest exists.")
		md.PlainText("")
		return
	}

	md.Warningf("%d referenced file(s) are missing from the export.", in.MissingFiles)
	md.PlainText("")
	byKey := model.SortedCounts(in.MissingByKey)
	rows := make([][]string, len(byKey))
	for i, k := range byKey {
		rows[i] = []string{"`" + k.Key + "`", strconv.Itoa(k.Value)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Path key", "Missing"},
		Rows:   rows,
	})
	md.PlainText("")
	if len(in.MissingPathsSample) > 0 {
		md.Details("Missing paths (sample)", strings.Join(in.MissingPathsSample, "\n"))
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeDiff(md *markdown.Markdown, report *RunReport) {
	d := report.Diff
	if d == nil {
		return
	}
	md.H2("Changes Since Previous Run")
	md.PlainText("")
	md.PlainTextf("Compared `%s` with `%s`.", d.OldRunID, d.NewRunID)
	md.PlainText("")

	if !d.HasChanges() {
		md.Note("No URLs were added, removed or changed.")
		md.PlainText("")
		return
	}

	md.Table(markdown.TableSet{
		Header: []string{"Change", "URLs"},
		Rows: [][]string{
			{"Added", strconv.Itoa(len(d.Added))},
			{"Removed", strconv.Itoa(len(d.Removed))},
			{"Changed", strconv.Itoa(len(d.Changed))},
		},
	})
	md.PlainText("")

	for _, section := range []struct {
		title string
		urls  []string
	}{
		{"Added URLs", d.Added},
		{"Removed URLs", d.Removed},
		{"Changed URLs", d.Changed},
	} {
		if len(section.urls) == 0 {
			continue
		}
		lines := make([]string, len(section.urls))
		for i, u := range section.urls {
			lines[i] = truncateString(u, 120)
		}
		md.Details(section.title, strings.Join(lines, "\n"))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown, report *RunReport) {
	md.HorizontalRule()
	md.PlainText("")
	if report.Version != "" {
		md.PlainTextf("*Report generated by docmirror %s*", report.Version)
		return
	}
	md.PlainText("*Report generated by docmirror*")
}
