// Package crawler implements the resumable, single-worker crawl loop that
// mirrors a documentation site into an export directory.
//
// # Architecture
//
// The Crawler pops URLs from a FIFO queue (breadth first), checks them
// against the URL scope and robots.txt, waits for the per-host Pacer, and
// serves the response from the on-disk cache or the HTTP client. Bodies are
// classified, stored content-addressed under raw/, rendered into page
// variants, and described by one manifest event each. Links found in HTML
// pages are enqueued until the depth limit is reached.
//
// # Durability
//
// Done and failed URLs are appended to .state files as soon as they reach
// a terminal state, and the queue is snapshotted every few fetches and at
// the end of a run, so a killed crawl resumes without fetching a done URL
// again.
//
// # Components
//
//   - Crawler: the orchestrator
//   - Parser: HTML link extraction honoring <base href>
//   - Pacer: per-host rate limiting
//   - Snapshot: browser-saved pages used to bootstrap a crawl
//   - Observer: receives every manifest event (progress, metrics, history)
//
// # Usage
//
//	c, err := crawler.New(cfg, client, crawler.WithLogger(logger))
//	summary, err := c.Crawl(ctx, seeds, true)
package crawler
