package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/nao1215/docmirror/internal/content"
	"github.com/nao1215/docmirror/internal/fsutil"
	"github.com/nao1215/docmirror/internal/manifest"
	"github.com/nao1215/docmirror/internal/model"
	"github.com/nao1215/docmirror/internal/urlscope"
)

// EndpointRule selects the URLs that get .resp.* response variants.
type EndpointRule struct {
	Host       string `yaml:"host"`
	PathPrefix string `yaml:"pathPrefix"`
}

// DefaultEndpointRule matches the USPTO data portal API pages.
var DefaultEndpointRule = EndpointRule{Host: "data.uspto.gov", PathPrefix: "/apis/"}

// Matches reports whether rawURL is an endpoint under the rule.
func (e EndpointRule) Matches(rawURL string) bool {
	if e.Host == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, e.Host) && strings.HasPrefix(u.Path, e.PathPrefix)
}

// Counts reports how many artifacts each normalize pass rendered.
type Counts struct {
	HTML      int `json:"html"`
	NonHTML   int `json:"non_html"`
	Endpoints int `json:"endpoints"`
}

// Normalizer re-renders the variants of an existing export from its
// manifest and raw files, appending one rendered_* event per artifact.
type Normalizer struct {
	dir      string
	renderer *Renderer
	writer   *manifest.Writer
	rule     EndpointRule
	logger   *slog.Logger
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithEndpointRule replaces DefaultEndpointRule.
func WithEndpointRule(rule EndpointRule) NormalizerOption {
	return func(n *Normalizer) {
		n.rule = rule
	}
}

// WithRenderer replaces the default Renderer.
func WithRenderer(r *Renderer) NormalizerOption {
	return func(n *Normalizer) {
		n.renderer = r
	}
}

// WithManifestWriter replaces the default manifest writer.
func WithManifestWriter(w *manifest.Writer) NormalizerOption {
	return func(n *Normalizer) {
		n.writer = w
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) NormalizerOption {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

// NewNormalizer returns a Normalizer for the export rooted at dir.
func NewNormalizer(dir string, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		dir:    dir,
		rule:   DefaultEndpointRule,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.renderer == nil {
		n.renderer = NewRenderer(dir)
	}
	if n.writer == nil {
		n.writer = manifest.NewWriter(dir)
	}
	return n
}

// Run executes the HTML, non-HTML and endpoint passes in that order.
func (n *Normalizer) Run(ctx context.Context) (Counts, error) {
	var counts Counts
	var err error
	if counts.HTML, err = n.EnsureHTMLVariants(ctx); err != nil {
		return counts, err
	}
	if counts.NonHTML, err = n.EnsureNonHTMLVariants(ctx); err != nil {
		return counts, err
	}
	if counts.Endpoints, err = n.EnsureEndpointVariants(ctx); err != nil {
		return counts, err
	}
	return counts, nil
}

// EnsureHTMLVariants renders page variants for every fetched, blocked or
// ingested HTML artifact. Existing page_md stems are reused.
func (n *Normalizer) EnsureHTMLVariants(ctx context.Context) (int, error) {
	return n.pass(ctx, func(ev model.Event, body []byte) (model.Event, bool, error) {
		switch ev.Kind {
		case model.EventFetched, model.EventIngestedLocal, model.EventBlocked:
		default:
			return model.Event{}, false, nil
		}
		raw := ev.Path(model.PathRaw)
		if !strings.HasPrefix(strings.ToLower(ev.ContentType), "text/html") &&
			!strings.HasSuffix(strings.ToLower(raw), ".html") {
			return model.Event{}, false, nil
		}

		title := ev.Title
		if title == "" {
			title = ExtractTitle(DecodeText(body))
		}
		paths, err := n.renderer.WritePage(n.source(ev, title, body, true))
		if err != nil {
			return model.Event{}, false, err
		}
		return model.Event{Kind: model.EventRenderedVariants, URL: ev.URL, Title: title, Paths: paths}, true, nil
	})
}

// EnsureNonHTMLVariants renders text variants for fetched or ingested JSON,
// XML, PDF and text artifacts with a successful (or absent) status.
func (n *Normalizer) EnsureNonHTMLVariants(ctx context.Context) (int, error) {
	return n.pass(ctx, func(ev model.Event, body []byte) (model.Event, bool, error) {
		if ev.Kind != model.EventFetched && ev.Kind != model.EventIngestedLocal {
			return model.Event{}, false, nil
		}
		kind := content.Sniff(ev.URL, ev.ContentType, body)
		if kind == model.KindHTML || !kind.Renderable() || !ev.SuccessStatus() {
			return model.Event{}, false, nil
		}

		title := ev.Title
		if title == "" {
			title = urlscope.TitleFromURL(ev.URL)
		}
		paths, err := n.renderer.WriteNonHTML(n.source(ev, title, body, true), kind)
		if err != nil {
			return model.Event{}, false, err
		}
		return model.Event{Kind: model.EventRenderedNonHTMLVariants, URL: ev.URL, Title: title, Paths: paths}, true, nil
	})
}

// EnsureEndpointVariants renders .resp.* variants for every artifact whose
// URL matches the endpoint rule.
func (n *Normalizer) EnsureEndpointVariants(ctx context.Context) (int, error) {
	return n.pass(ctx, func(ev model.Event, body []byte) (model.Event, bool, error) {
		switch ev.Kind {
		case model.EventFetched, model.EventIngestedLocal, model.EventBlocked:
		default:
			return model.Event{}, false, nil
		}
		if !n.rule.Matches(ev.URL) {
			return model.Event{}, false, nil
		}

		title := ev.Title
		if title == "" {
			title = urlscope.TitleFromURL(ev.URL)
		}
		paths, err := n.renderer.WriteEndpoint(n.source(ev, title, body, false))
		if err != nil {
			return model.Event{}, false, err
		}
		return model.Event{Kind: model.EventRenderedEndpointVariants, URL: ev.URL, Title: title, Paths: paths}, true, nil
	})
}

// renderFunc renders one event whose raw artifact has been read. It returns
// the event to append and whether anything was rendered.
type renderFunc func(ev model.Event, body []byte) (model.Event, bool, error)

// pass snapshots the manifest, renders every eligible event and appends
// the resulting events afterwards.
func (n *Normalizer) pass(ctx context.Context, render renderFunc) (int, error) {
	events, err := manifest.ReadAll(n.writer.EventsPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read manifest: %w", err)
	}

	rendered := 0
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return rendered, err
		}
		if ev.URL == "" {
			continue
		}
		body, ok := n.readRaw(ev.Path(model.PathRaw))
		if !ok {
			continue
		}

		out, ok, err := render(ev, body)
		if err != nil {
			return rendered, err
		}
		if !ok {
			continue
		}
		if _, err := n.writer.Append(out); err != nil {
			return rendered, err
		}
		rendered++
	}
	n.logger.Debug("normalize pass finished", "dir", n.dir, "rendered", rendered)
	return rendered, nil
}

// readRaw reads an export-relative raw file. Paths that escape the export
// or do not name a regular file are skipped.
func (n *Normalizer) readRaw(rel string) ([]byte, bool) {
	if rel == "" {
		return nil, false
	}
	p, ok := fsutil.ResolveWithin(n.dir, rel)
	if !ok {
		return nil, false
	}
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	body, err := os.ReadFile(p) //nolint:gosec // confined to the export directory
	if err != nil {
		return nil, false
	}
	return body, true
}

// source builds a render Source for ev. When keepStem is set the stem of an
// existing page_md path is reused.
func (n *Normalizer) source(ev model.Event, title string, body []byte, keepStem bool) Source {
	src := Source{
		URL:         ev.URL,
		Title:       title,
		Body:        body,
		RawPath:     ev.Path(model.PathRaw),
		StartedAt:   ev.At,
		StatusCode:  ev.StatusCode,
		ContentType: ev.ContentType,
	}
	if keepStem {
		if mdPath := ev.Path(model.PathPageMD); mdPath != "" {
			src.Stem = strings.TrimSuffix(path.Base(mdPath), ".md")
		}
	}
	return src
}
