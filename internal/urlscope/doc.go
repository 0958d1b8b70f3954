// Package urlscope canonicalizes URLs and decides which hosts a crawl may visit.
//
// Normalized URLs are the deduplication key everywhere: the crawler's seen
// set, the response cache key and manifest correlation all use Normalize.
package urlscope
