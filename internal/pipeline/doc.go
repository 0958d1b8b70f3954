// Package pipeline runs the stages of a docmirror export in sequence.
//
// A crawl run is assembled from steps: seeding from browser-saved
// snapshots, crawling, citation export, inspection, history recording,
// metrics export and report generation. Each step receives the shared Run
// and records its results on it. The normalize-export and inspect-export
// commands reuse the same steps over existing exports, and BatchProcessor
// runs such pipelines for several export directories concurrently.
package pipeline
