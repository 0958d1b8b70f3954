package model

import (
	"net/http"
	"strings"
	"time"
)

// FetchResult is the outcome of a single HTTP GET, either live or replayed from cache.
type FetchResult struct {
	// URL is the normalized URL that was requested.
	URL string
	// FinalURL is the URL after redirects.
	FinalURL string
	// StatusCode is the HTTP status of the final response.
	StatusCode int
	// Header holds the response headers.
	Header http.Header
	// Body is the decoded response body.
	Body []byte
	// FetchedAt is when the response was received.
	FetchedAt time.Time
	// FromCache is true when the result was served from the response cache.
	FromCache bool
}

// ContentType returns the Content-Type header value.
func (r *FetchResult) ContentType() string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}

// Success reports whether the status code is in the 2xx-3xx range.
func (r *FetchResult) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 400
}

// QueueEntry is a URL waiting to be processed by the crawler.
type QueueEntry struct {
	URL            string
	Depth          int
	DiscoveredFrom string
}

// MediaType returns the lowercased media type of a Content-Type value,
// without parameters such as charset.
func MediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
