package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/nao1215/docmirror/internal/fsutil"
	"github.com/nao1215/docmirror/internal/model"
	"github.com/nao1215/docmirror/internal/urlscope"
)

// PagesDir is the export-relative directory holding rendered variants.
const PagesDir = "pages"

// Renderer writes variant files into the pages directory of an export.
type Renderer struct {
	outDir   string
	pagesDir string
	maxChars int
	now      func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithMaxChars sets the character cap for non-HTML text variants.
func WithMaxChars(n int) Option {
	return func(r *Renderer) {
		r.maxChars = n
	}
}

// WithClock overrides the time source for generated_at.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		r.now = now
	}
}

// NewRenderer returns a Renderer for the export rooted at outDir.
func NewRenderer(outDir string, opts ...Option) *Renderer {
	r := &Renderer{
		outDir:   outDir,
		pagesDir: filepath.Join(outDir, PagesDir),
		maxChars: DefaultMaxChars,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Source describes one stored artifact to render.
type Source struct {
	URL         string
	Title       string
	Body        []byte
	RawPath     string // export-relative
	StartedAt   string
	StatusCode  int
	ContentType string
	// Stem overrides the derived file stem, keeping earlier file names stable.
	Stem string
}

func (s *Source) stem() string {
	if s.Stem != "" {
		return s.Stem
	}
	return urlscope.Stem(s.Title, s.URL)
}

// sidecar is the JSON metadata written next to page variants.
type sidecar struct {
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	GeneratedAt string            `json:"generated_at"`
	StartedAt   string            `json:"started_at"`
	StatusCode  int               `json:"status_code,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Kind        string            `json:"kind,omitempty"`
	Paths       map[string]string `json:"paths"`
}

// responseSidecar is the .resp.json document of an endpoint.
type responseSidecar struct {
	URL         string          `json:"url"`
	Title       string          `json:"title"`
	GeneratedAt string          `json:"generated_at"`
	StatusCode  int             `json:"status_code,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	RawPath     string          `json:"raw_path"`
	Payload     ResponsePayload `json:"payload"`
}

// WritePage writes the .md, .html, .txt and .json variants of an HTML page
// and returns their export-relative paths keyed by logical name.
func (r *Renderer) WritePage(src Source) (map[string]string, error) {
	stem := src.stem()
	htmlText := DecodeText(src.Body)

	files := []variantFile{
		{key: model.PathPageMD, name: stem + ".md", data: []byte(HTMLToMarkdown(htmlText, src.URL))},
		{key: model.PathPageHTML, name: stem + ".html", data: []byte(htmlText)},
		{key: model.PathPageTXT, name: stem + ".txt", data: []byte(HTMLToText(htmlText))},
	}
	return r.writeWithSidecar(src, stem, files, "")
}

// WriteNonHTML writes the .md, .txt and .json variants of a JSON, XML, PDF
// or text body. It returns an error for kinds that have no text rendering.
func (r *Renderer) WriteNonHTML(src Source, kind model.Kind) (map[string]string, error) {
	if kind == model.KindHTML || !kind.Renderable() {
		return nil, fmt.Errorf("render: %s bodies have no non-HTML variants", kind)
	}
	stem := src.stem()

	text, fence := FormatNonHTML(kind, src.Body)
	text, truncated := Truncate(text, r.maxChars)

	note := ""
	if truncated {
		note = "(Output truncated.)"
	}
	mdText := markdown.NewMarkdown(io.Discard).
		H1(src.Title).
		PlainText("").
		PlainTextf("URL: %s", src.URL).
		PlainTextf("Content-Type: %s", src.ContentType).
		PlainTextf("Status: %s", statusText(src.StatusCode)).
		PlainTextf("Kind: %s", kind).
		PlainText("").
		CodeBlocks(markdown.SyntaxHighlight(fence), strings.TrimRight(text, "\n")).
		PlainText(note).
		PlainText("").
		String()

	files := []variantFile{
		{key: model.PathPageMD, name: stem + ".md", data: []byte(mdText)},
		{key: model.PathPageTXT, name: stem + ".txt", data: []byte(text)},
	}
	return r.writeWithSidecar(src, stem, files, kind.String())
}

// WriteEndpoint writes the .resp.md, .resp.html, .resp.txt and .resp.json
// variants of an API endpoint response. Existing page variants are left
// untouched.
func (r *Renderer) WriteEndpoint(src Source) (map[string]string, error) {
	stem := src.stem()
	text, payload := FormatResponse(src.Body, src.ContentType)

	mdText := markdown.NewMarkdown(io.Discard).
		H1(src.Title).
		PlainText("").
		PlainTextf("URL: %s", src.URL).
		PlainTextf("Content-Type: %s", src.ContentType).
		PlainTextf("Status: %s", statusText(src.StatusCode)).
		PlainText("").
		CodeBlocks(markdown.SyntaxHighlightNone, strings.TrimRight(text, "\n")).
		PlainText("").
		String()

	htmlText := strings.Join([]string{
		"<!doctype html>",
		`<meta charset="utf-8">`,
		"<title>" + html.EscapeString(src.Title) + "</title>",
		"<pre>",
		html.EscapeString(text),
		"</pre>",
		"",
	}, "\n")

	jsonData, err := encodeJSON(responseSidecar{
		URL:         src.URL,
		Title:       src.Title,
		GeneratedAt: model.FormatTimestamp(r.now()),
		StatusCode:  src.StatusCode,
		ContentType: src.ContentType,
		RawPath:     src.RawPath,
		Payload:     payload,
	})
	if err != nil {
		return nil, err
	}

	files := []variantFile{
		{key: model.PathRespMD, name: stem + ".resp.md", data: []byte(mdText)},
		{key: model.PathRespHTML, name: stem + ".resp.html", data: []byte(htmlText)},
		{key: model.PathRespTXT, name: stem + ".resp.txt", data: []byte(text)},
		{key: model.PathRespJSON, name: stem + ".resp.json", data: jsonData},
	}
	paths := map[string]string{model.PathRaw: src.RawPath}
	if err := r.writeFiles(files, paths); err != nil {
		return nil, err
	}
	return paths, nil
}

type variantFile struct {
	key  string
	name string
	data []byte
}

// writeWithSidecar writes files plus the <stem>.json sidecar listing them.
func (r *Renderer) writeWithSidecar(src Source, stem string, files []variantFile, kind string) (map[string]string, error) {
	paths := map[string]string{model.PathRaw: src.RawPath}
	if err := r.writeFiles(files, paths); err != nil {
		return nil, err
	}

	metaPath := filepath.Join(r.pagesDir, stem+".json")
	rel, err := fsutil.RelSlash(r.outDir, metaPath)
	if err != nil {
		return nil, err
	}
	paths[model.PathPageJSON] = rel

	data, err := encodeJSON(sidecar{
		URL:         src.URL,
		Title:       src.Title,
		GeneratedAt: model.FormatTimestamp(r.now()),
		StartedAt:   src.StartedAt,
		StatusCode:  src.StatusCode,
		ContentType: src.ContentType,
		Kind:        kind,
		Paths:       paths,
	})
	if err != nil {
		return nil, err
	}
	if err := fsutil.WriteFileAtomic(metaPath, data); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", metaPath, err)
	}
	return paths, nil
}

func (r *Renderer) writeFiles(files []variantFile, paths map[string]string) error {
	if err := os.MkdirAll(r.pagesDir, fsutil.DirPerm); err != nil {
		return fmt.Errorf("failed to create pages directory: %w", err)
	}
	for _, f := range files {
		path := filepath.Join(r.pagesDir, f.name)
		if err := fsutil.WriteFileAtomic(path, f.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		rel, err := fsutil.RelSlash(r.outDir, path)
		if err != nil {
			return err
		}
		paths[f.key] = rel
	}
	return nil
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode sidecar: %w", err)
	}
	return buf.Bytes(), nil
}

func statusText(code int) string {
	if code == 0 {
		return ""
	}
	return strconv.Itoa(code)
}
