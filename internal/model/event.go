package model

import "time"

// EventKind identifies the outcome recorded by a manifest event.
type EventKind string

const (
	// EventFetched records a URL that was fetched (or served from cache) and stored.
	EventFetched EventKind = "fetched"
	// EventBlocked records a URL rejected by scope or robots, or a WAF challenge.
	EventBlocked EventKind = "blocked"
	// EventError records a URL whose fetch failed after retries.
	EventError EventKind = "error"
	// EventIngestedLocal records an offline HTML snapshot supplied by the user.
	EventIngestedLocal EventKind = "ingested_local"
	// EventRenderedVariants records a normalize pass over an HTML artifact.
	EventRenderedVariants EventKind = "rendered_variants"
	// EventRenderedNonHTMLVariants records a normalize pass over a JSON/XML/PDF/text artifact.
	EventRenderedNonHTMLVariants EventKind = "rendered_non_html_variants"
	// EventRenderedEndpointVariants records response variants written for an API endpoint.
	EventRenderedEndpointVariants EventKind = "rendered_endpoint_variants"
)

// Block reasons used in the Reason field of blocked events.
const (
	ReasonOffsite = "offsite"
	ReasonNoHost  = "no_host"
	ReasonRobots  = "robots"
	ReasonPattern = "pattern"

	// BlockedByAWSWAF is the BlockedBy value for bot-protection interstitials.
	BlockedByAWSWAF = "aws_waf"
)

// Logical artifact names used as keys of Event.Paths.
const (
	PathRaw      = "raw"
	PathPageMD   = "page_md"
	PathPageHTML = "page_html"
	PathPageTXT  = "page_txt"
	PathPageJSON = "page_json"
	PathRespMD   = "resp_md"
	PathRespHTML = "resp_html"
	PathRespTXT  = "resp_txt"
	PathRespJSON = "resp_json"
)

// PathKeys lists every logical artifact name an event may reference.
var PathKeys = []string{
	PathRaw,
	PathPageMD, PathPageHTML, PathPageTXT, PathPageJSON,
	PathRespMD, PathRespHTML, PathRespTXT, PathRespJSON,
}

// IsPathKey reports whether key is a known logical artifact name.
func IsPathKey(key string) bool {
	for _, k := range PathKeys {
		if k == key {
			return true
		}
	}
	return false
}

// TimestampFormat is the layout of Event.At and other manifest timestamps.
const TimestampFormat = "2006-01-02T15:04:05Z"

// FormatTimestamp renders t in UTC using TimestampFormat.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// Event is one line of manifest.jsonl.
// The manifest is append-only; every crawl outcome and every rendered
// artifact is described by exactly one event.
type Event struct {
	Kind           EventKind         `json:"kind"`
	URL            string            `json:"url"`
	At             string            `json:"at,omitempty"`
	StatusCode     int               `json:"status_code,omitempty"`
	ContentType    string            `json:"content_type,omitempty"`
	Title          string            `json:"title,omitempty"`
	Depth          int               `json:"depth,omitempty"`
	DiscoveredFrom string            `json:"discovered_from,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	BlockedBy      string            `json:"blocked_by,omitempty"`
	Error          string            `json:"error,omitempty"`
	Paths          map[string]string `json:"paths,omitempty"`
	FromCache      bool              `json:"from_cache,omitempty"`
}

// Path returns the export-relative path stored under key, or "".
func (e *Event) Path(key string) string {
	if e.Paths == nil {
		return ""
	}
	return e.Paths[key]
}

// SuccessStatus reports whether the recorded status code is in the 2xx-3xx range.
// Events without a status code (local ingests) count as successful.
func (e *Event) SuccessStatus() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode >= 200 && e.StatusCode < 400
}
