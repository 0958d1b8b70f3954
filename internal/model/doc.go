// Package model defines the data shared by the crawler, the renderers and
// the reporting layers: manifest events, fetch results, content kinds,
// citations, crawl summaries and inspection results.
//
// Every type serializes to the JSON written to manifest.jsonl,
// manifest.json and the run report.
package model
