// Package report renders the outcome of a docmirror run.
//
// A RunReport gathers the crawl summary together with the optional results
// of the follow-up passes (normalization, citation export, inspection and
// the diff against the previous run). Writers turn it into:
//   - MarkdownWriter: a Markdown document with tables, a mermaid pie chart
//     and GitHub alerts, suitable for committing next to the export
//   - JSONWriter: structured output for tool integration
//   - SimpleWriter: plain text for terminal display
//
// Writers implement the Writer interface and can be combined with
// MultiWriter.
package report
