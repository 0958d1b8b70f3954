package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/docmirror/internal/cache"
	"github.com/nao1215/docmirror/internal/content"
	"github.com/nao1215/docmirror/internal/fsutil"
	"github.com/nao1215/docmirror/internal/manifest"
	"github.com/nao1215/docmirror/internal/model"
	"github.com/nao1215/docmirror/internal/render"
	"github.com/nao1215/docmirror/internal/robots"
	"github.com/nao1215/docmirror/internal/state"
	"github.com/nao1215/docmirror/internal/urlscope"
)

const (
	// DefaultSnapshotEvery is how many fetches pass between queue snapshots.
	DefaultSnapshotEvery = 25

	// maxLinkPathLen guards against URL explosion from generated links.
	maxLinkPathLen = 500

	// robotsDirName is the state subdirectory holding robots.txt copies.
	robotsDirName = "robots"
)

// ErrNoOutDir is returned by New when Config.OutDir is empty.
var ErrNoOutDir = errors.New("crawler: output directory is required")

// errCacheWrite marks a response that was fetched but could not be cached.
// It stops the crawl instead of failing the URL.
var errCacheWrite = errors.New("failed to cache response")

// Fetcher performs HTTP GETs. *fetch.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*model.FetchResult, error)
	GetConditional(ctx context.Context, rawURL, etag, lastModified string) (*model.FetchResult, error)
}

// Config holds the parameters of one crawl.
type Config struct {
	// OutDir is the export root.
	OutDir string
	// Scope decides which URLs may be fetched and which links are followed.
	Scope urlscope.Scope
	// MaxPages bounds the number of fetched URLs per run. Zero means no bound.
	MaxPages int
	// MaxDepth bounds link-following depth; seeds have depth 0.
	MaxDepth int
	// PerHostDelay is the minimum interval between requests to one host.
	PerHostDelay time.Duration
	// RespectRobots enables robots.txt checks.
	RespectRobots bool
	// RefreshCache ignores cached responses.
	RefreshCache bool
	// Revalidate sends conditional GETs for cached responses that carry
	// an ETag or Last-Modified validator.
	Revalidate bool
	// SnapshotEvery is the queue snapshot interval in fetches.
	SnapshotEvery int
	// MaxRenderChars caps non-HTML text variants.
	MaxRenderChars int
}

// Crawler is the single-worker, resumable crawl orchestrator.
// It is not safe for concurrent use; one Crawler owns one export directory.
type Crawler struct {
	cfg       Config
	fetcher   Fetcher
	logger    *slog.Logger
	observers []Observer
	now       func() time.Time
	runID     string

	cache    *cache.Cache
	state    *state.State
	manifest *manifest.Writer
	renderer *render.Renderer
	pacer    *Pacer
	robots   *robots.Resolver

	stats     map[string]int
	citations []model.Citation
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// WithObserver registers observers notified of every manifest event.
func WithObserver(observers ...Observer) Option {
	return func(c *Crawler) {
		c.observers = append(c.observers, observers...)
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) {
		c.now = now
	}
}

// WithRunID sets the run identifier recorded in the summary.
func WithRunID(id string) Option {
	return func(c *Crawler) {
		c.runID = id
	}
}

// New creates a Crawler writing into cfg.OutDir. The output, cache and
// state directories are created as needed.
func New(cfg Config, fetcher Fetcher, opts ...Option) (*Crawler, error) {
	if cfg.OutDir == "" {
		return nil, ErrNoOutDir
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = DefaultSnapshotEvery
	}
	if cfg.MaxRenderChars <= 0 {
		cfg.MaxRenderChars = render.DefaultMaxChars
	}

	c := &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  slog.Default(),
		now:     time.Now,
		runID:   uuid.NewString(),
		stats:   newStats(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := os.MkdirAll(cfg.OutDir, fsutil.DirPerm); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	respCache, err := cache.Open(filepath.Join(cfg.OutDir, cache.DirName))
	if err != nil {
		return nil, err
	}
	st, err := state.Open(filepath.Join(cfg.OutDir, state.DirName))
	if err != nil {
		return nil, err
	}

	c.cache = respCache
	c.state = st
	c.manifest = manifest.NewWriter(cfg.OutDir, manifest.WithClock(c.now))
	c.renderer = render.NewRenderer(cfg.OutDir,
		render.WithMaxChars(cfg.MaxRenderChars),
		render.WithClock(c.now),
	)
	c.pacer = NewPacer(cfg.PerHostDelay)
	c.robots = robots.NewResolver(
		robots.NewStore(filepath.Join(st.Dir(), robotsDirName)),
		c.pacedGet,
		robots.WithLogger(c.logger),
	)
	return c, nil
}

func newStats() map[string]int {
	return map[string]int{
		model.StatFetched:       0,
		model.StatBlocked:       0,
		model.StatBlockedWAF:    0,
		model.StatError:         0,
		model.StatIngestedLocal: 0,
		model.StatCacheHit:      0,
	}
}

// RunID returns the identifier of this crawler's run.
func (c *Crawler) RunID() string {
	return c.runID
}

// Citations returns the citations collected so far, in render order.
func (c *Crawler) Citations() []model.Citation {
	out := make([]model.Citation, len(c.citations))
	copy(out, c.citations)
	return out
}

// pacedGet is the fetch function handed to the robots resolver.
func (c *Crawler) pacedGet(ctx context.Context, rawURL string) (*model.FetchResult, error) {
	if err := c.pacer.Wait(ctx, urlscope.Host(rawURL)); err != nil {
		return nil, err
	}
	return c.fetcher.Get(ctx, rawURL)
}

// run is the mutable state of one Crawl call.
type run struct {
	queue    []model.QueueEntry
	enqueued map[string]struct{}
	done     map[string]struct{}
	failed   map[string]struct{}
	fetched  int
	started  time.Time
}

func (r *run) known(u string) bool {
	if _, ok := r.enqueued[u]; ok {
		return true
	}
	if _, ok := r.done[u]; ok {
		return true
	}
	_, ok := r.failed[u]
	return ok
}

func (r *run) terminal(u string) bool {
	if _, ok := r.done[u]; ok {
		return true
	}
	_, ok := r.failed[u]
	return ok
}

func (r *run) push(e model.QueueEntry) {
	r.enqueued[e.URL] = struct{}{}
	r.queue = append(r.queue, e)
}

// Crawl processes seeds breadth-first until the queue is empty, MaxPages
// URLs were fetched, or ctx is done. With resume the persisted queue is
// restored first. Done and failed URLs are never fetched again.
//
// The summary is written to manifest.json and returned even when ctx is
// cancelled; in that case ctx.Err() is returned alongside it.
func (c *Crawler) Crawl(ctx context.Context, seeds []string, resume bool) (*model.Summary, error) {
	r, err := c.prepare(seeds, resume)
	if err != nil {
		return nil, err
	}

	c.logger.Info("crawl started",
		"run_id", c.runID,
		"out", c.cfg.OutDir,
		"queue", len(r.queue),
		"done", len(r.done),
	)

	var stopErr error
	for len(r.queue) > 0 && (c.cfg.MaxPages <= 0 || r.fetched < c.cfg.MaxPages) {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}

		entry := r.queue[0]
		r.queue = r.queue[1:]
		if r.terminal(entry.URL) {
			continue
		}

		if err := c.process(ctx, r, entry); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
				// Not yet attempted: put it back for the next run.
				r.queue = append([]model.QueueEntry{entry}, r.queue...)
				stopErr = err
				break
			}
			return nil, err
		}
	}

	if err := c.state.SaveQueue(r.queue); err != nil {
		return nil, err
	}
	summary := c.summary(r, stopErr != nil)
	if err := c.manifest.WriteSummary(summary); err != nil {
		return nil, err
	}

	c.logger.Info("crawl finished",
		"run_id", c.runID,
		"fetched", c.stats[model.StatFetched],
		"blocked", c.stats[model.StatBlocked],
		"blocked_waf", c.stats[model.StatBlockedWAF],
		"error", c.stats[model.StatError],
		"remaining_queue", len(r.queue),
	)
	return summary, stopErr
}

// prepare loads durable state and builds the initial queue.
func (c *Crawler) prepare(seeds []string, resume bool) (*run, error) {
	done, err := c.state.LoadDone()
	if err != nil {
		return nil, err
	}
	failed, err := c.state.LoadFailed()
	if err != nil {
		return nil, err
	}

	r := &run{
		enqueued: make(map[string]struct{}),
		done:     done,
		failed:   failed,
		started:  c.now(),
	}

	if resume {
		restored, err := c.state.LoadQueue()
		if err != nil {
			return nil, err
		}
		for _, e := range restored {
			e.URL = urlscope.Normalize(e.URL)
			if e.URL == "" {
				continue
			}
			if _, dup := r.enqueued[e.URL]; dup {
				continue
			}
			r.push(e)
		}
	}

	for _, seed := range seeds {
		u := urlscope.Normalize(seed)
		if u == "" || r.known(u) {
			continue
		}
		r.push(model.QueueEntry{URL: u})
	}
	return r, nil
}

// process handles one queue entry. A returned error stops the crawl:
// context errors leave the entry unprocessed, anything else is fatal.
func (c *Crawler) process(ctx context.Context, r *run, entry model.QueueEntry) error {
	if reason, err := c.blockReason(ctx, entry.URL); err != nil {
		return err
	} else if reason != "" {
		c.stats[model.StatBlocked]++
		if err := c.markDone(r, entry.URL); err != nil {
			return err
		}
		return c.emit(model.Event{
			Kind:           model.EventBlocked,
			URL:            entry.URL,
			Reason:         reason,
			Depth:          entry.Depth,
			DiscoveredFrom: entry.DiscoveredFrom,
		})
	}

	if err := c.pacer.Wait(ctx, urlscope.Host(entry.URL)); err != nil {
		return err
	}

	res, err := c.load(ctx, entry.URL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errCacheWrite) {
			return err
		}
		c.logger.Warn("fetch failed", "url", entry.URL, "error", err)
		c.stats[model.StatError]++
		r.failed[entry.URL] = struct{}{}
		if err := c.state.MarkFailed(entry.URL); err != nil {
			return err
		}
		return c.emit(model.Event{
			Kind:           model.EventError,
			URL:            entry.URL,
			Error:          err.Error(),
			Depth:          entry.Depth,
			DiscoveredFrom: entry.DiscoveredFrom,
		})
	}
	if res.FromCache {
		c.stats[model.StatCacheHit]++
	}

	contentType := res.ContentType()
	kind := content.Sniff(entry.URL, contentType, res.Body)

	if content.IsWAFChallenge(res.Body, contentType, true) {
		return c.recordWAF(r, entry, res)
	}

	raw, err := content.StoreRaw(c.cfg.OutDir, kind, res.Body)
	if err != nil {
		return err
	}

	ev := model.Event{
		Kind:           model.EventFetched,
		URL:            entry.URL,
		StatusCode:     res.StatusCode,
		ContentType:    contentType,
		Depth:          entry.Depth,
		DiscoveredFrom: entry.DiscoveredFrom,
		FromCache:      res.FromCache,
		Paths:          map[string]string{model.PathRaw: raw.RelPath},
	}

	if res.Success() {
		switch kind {
		case model.KindHTML:
			htmlText := render.DecodeText(res.Body)
			title := render.ExtractTitle(htmlText)
			if err := c.renderPage(r, &ev, title, res.Body, raw.RelPath); err != nil {
				return err
			}
			if entry.Depth < c.cfg.MaxDepth {
				c.enqueueLinks(r, entry, htmlText, pageURL(res, entry.URL))
			}
		case model.KindJSON, model.KindXML, model.KindPDF, model.KindText:
			if err := c.renderNonHTML(r, &ev, kind, res.Body, raw.RelPath); err != nil {
				return err
			}
		case model.KindZIP, model.KindBytes:
		}
	}

	c.stats[model.StatFetched]++
	r.fetched++
	if err := c.markDone(r, entry.URL); err != nil {
		return err
	}
	if err := c.emit(ev); err != nil {
		return err
	}

	if r.fetched%c.cfg.SnapshotEvery == 0 {
		if err := c.state.SaveQueue(r.queue); err != nil {
			return err
		}
	}
	return nil
}

// blockReason returns the reason u may not be fetched, or "".
func (c *Crawler) blockReason(ctx context.Context, u string) (string, error) {
	if !c.cfg.Scope.Allowed(u) {
		return model.ReasonOffsite, nil
	}
	host := urlscope.Host(u)
	if host == "" {
		return model.ReasonNoHost, nil
	}
	if !c.cfg.RespectRobots {
		return "", nil
	}
	rules, err := c.robots.RulesFor(ctx, host)
	if err != nil {
		return "", err
	}
	if !rules.Allowed(u) {
		return model.ReasonRobots, nil
	}
	return "", nil
}

// load returns the response for u from the cache or the network.
// Network responses are cached whatever their status.
func (c *Crawler) load(ctx context.Context, u string) (*model.FetchResult, error) {
	key := urlscope.Key(u)

	if !c.cfg.RefreshCache {
		if body, meta, ok := c.cache.Read(key); ok {
			if !c.cfg.Revalidate || (meta.ETag == "" && meta.LastModified == "") {
				return meta.Result(body), nil
			}
			return c.revalidate(ctx, key, u, body, meta)
		}
	}

	res, err := c.fetcher.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Write(key, res); err != nil {
		return nil, fmt.Errorf("%w: %w", errCacheWrite, err)
	}
	return res, nil
}

// revalidate sends a conditional GET for a cached response. A 304 keeps
// the cached copy; a failed request falls back to it.
func (c *Crawler) revalidate(ctx context.Context, key, u string, body []byte, meta *cache.Meta) (*model.FetchResult, error) {
	res, err := c.fetcher.GetConditional(ctx, u, meta.ETag, meta.LastModified)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("revalidation failed, using cached copy", "url", u, "error", err)
		return meta.Result(body), nil
	}
	if res.StatusCode == 304 {
		return meta.Result(body), nil
	}
	if err := c.cache.Write(key, res); err != nil {
		return nil, fmt.Errorf("%w: %w", errCacheWrite, err)
	}
	return res, nil
}

// recordWAF stores a bot-protection interstitial and marks its URL done.
func (c *Crawler) recordWAF(r *run, entry model.QueueEntry, res *model.FetchResult) error {
	raw, err := content.StoreRaw(c.cfg.OutDir, model.KindHTML, res.Body)
	if err != nil {
		return err
	}
	c.logger.Warn("bot protection challenge detected", "url", entry.URL, "status", res.StatusCode)
	c.stats[model.StatBlockedWAF]++
	if err := c.markDone(r, entry.URL); err != nil {
		return err
	}
	return c.emit(model.Event{
		Kind:           model.EventBlocked,
		BlockedBy:      model.BlockedByAWSWAF,
		URL:            entry.URL,
		StatusCode:     res.StatusCode,
		ContentType:    res.ContentType(),
		Depth:          entry.Depth,
		DiscoveredFrom: entry.DiscoveredFrom,
		Paths:          map[string]string{model.PathRaw: raw.RelPath},
	})
}

func (c *Crawler) renderPage(r *run, ev *model.Event, title string, body []byte, rawPath string) error {
	paths, err := c.renderer.WritePage(render.Source{
		URL:         ev.URL,
		Title:       title,
		Body:        body,
		RawPath:     rawPath,
		StartedAt:   model.FormatTimestamp(r.started),
		StatusCode:  ev.StatusCode,
		ContentType: ev.ContentType,
	})
	if err != nil {
		return err
	}
	c.addRendered(r, ev, title, paths)
	return nil
}

func (c *Crawler) renderNonHTML(r *run, ev *model.Event, kind model.Kind, body []byte, rawPath string) error {
	title := urlscope.TitleFromURL(ev.URL)
	paths, err := c.renderer.WriteNonHTML(render.Source{
		URL:         ev.URL,
		Title:       title,
		Body:        body,
		RawPath:     rawPath,
		StartedAt:   model.FormatTimestamp(r.started),
		StatusCode:  ev.StatusCode,
		ContentType: ev.ContentType,
	}, kind)
	if err != nil {
		return err
	}
	c.addRendered(r, ev, title, paths)
	return nil
}

// addRendered merges variant paths into ev and records a citation.
func (c *Crawler) addRendered(r *run, ev *model.Event, title string, paths map[string]string) {
	for k, v := range paths {
		ev.Paths[k] = v
	}
	ev.Title = title
	c.citations = append(c.citations, model.Citation{
		Title:     title,
		URL:       ev.URL,
		Accessed:  model.FormatTimestamp(r.started)[:10],
		LocalPath: paths[model.PathPageMD],
	})
}

// enqueueLinks adds the eligible links of a page to the queue.
func (c *Crawler) enqueueLinks(r *run, entry model.QueueEntry, htmlText, base string) {
	for _, link := range ExtractLinks(htmlText, base) {
		if r.known(link) {
			continue
		}
		if !c.cfg.Scope.Allowed(link) {
			continue
		}
		if !c.cfg.Scope.PathAllowed(link) {
			c.logger.Debug("link skipped", "url", link, "reason", model.ReasonPattern)
			continue
		}
		if urlscope.IsAssetIntent(link) {
			continue
		}
		if u, err := url.Parse(link); err != nil || len(u.Path) > maxLinkPathLen {
			continue
		}
		r.push(model.QueueEntry{
			URL:            link,
			Depth:          entry.Depth + 1,
			DiscoveredFrom: entry.URL,
		})
	}
}

// pageURL is the base for resolving the links of a response: the URL
// after redirects when known.
func pageURL(res *model.FetchResult, requested string) string {
	if res.FinalURL != "" {
		return res.FinalURL
	}
	return requested
}

func (c *Crawler) markDone(r *run, u string) error {
	r.done[u] = struct{}{}
	return c.state.MarkDone(u)
}

// emit appends ev to the manifest and notifies observers.
func (c *Crawler) emit(ev model.Event) error {
	stamped, err := c.manifest.Append(ev)
	if err != nil {
		return err
	}
	for _, o := range c.observers {
		o.OnEvent(stamped)
	}
	return nil
}

func (c *Crawler) summary(r *run, interrupted bool) *model.Summary {
	finished := c.now()
	stats := make(map[string]int, len(c.stats))
	for k, v := range c.stats {
		stats[k] = v
	}
	return &model.Summary{
		RunID:           c.runID,
		StartedAt:       model.FormatTimestamp(r.started),
		FinishedAt:      model.FormatTimestamp(finished),
		DurationSeconds: finished.Sub(r.started).Seconds(),
		Config: model.SummaryConfig{
			OutDir:            c.cfg.OutDir,
			AllowHostSuffixes: append([]string(nil), c.cfg.Scope.AllowHostSuffixes...),
			FollowOffsite:     c.cfg.Scope.FollowOffsite,
			MaxPages:          c.cfg.MaxPages,
			MaxDepth:          c.cfg.MaxDepth,
			PerHostDelayS:     c.cfg.PerHostDelay.Seconds(),
			RespectRobots:     c.cfg.RespectRobots,
			RefreshCache:      c.cfg.RefreshCache,
		},
		Stats:          stats,
		RemainingQueue: len(r.queue),
		Interrupted:    interrupted,
	}
}

// IngestLocalHTML stores an HTML page obtained outside the crawler (for
// example a browser-saved snapshot) as if it had been fetched from u.
// The URL is marked done so a later crawl does not request it.
func (c *Crawler) IngestLocalHTML(ctx context.Context, u string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u = urlscope.Normalize(u)

	raw, err := content.StoreRaw(c.cfg.OutDir, model.KindHTML, body)
	if err != nil {
		return err
	}

	started := c.now()
	htmlText := render.DecodeText(body)
	title := render.ExtractTitle(htmlText)
	paths, err := c.renderer.WritePage(render.Source{
		URL:         u,
		Title:       title,
		Body:        body,
		RawPath:     raw.RelPath,
		StartedAt:   model.FormatTimestamp(started),
		ContentType: "text/html",
	})
	if err != nil {
		return err
	}

	ev := model.Event{
		Kind:        model.EventIngestedLocal,
		URL:         u,
		ContentType: "text/html",
		Title:       title,
		Paths:       map[string]string{model.PathRaw: raw.RelPath},
	}
	for k, v := range paths {
		ev.Paths[k] = v
	}
	c.citations = append(c.citations, model.Citation{
		Title:     title,
		URL:       u,
		Accessed:  model.FormatTimestamp(started)[:10],
		LocalPath: paths[model.PathPageMD],
	})

	c.stats[model.StatIngestedLocal]++
	if err := c.state.MarkDone(u); err != nil {
		return err
	}
	return c.emit(ev)
}
