// Package cache stores fetched responses on disk so that repeated crawls
// reuse bodies instead of hitting the network again.
//
// Each entry is a pair of files keyed by urlscope.Key: <key>.bin holds the
// body and <key>.json holds the fetch metadata. An entry is only a hit when
// both files exist and the metadata parses; anything else is a miss and the
// URL is fetched again.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/nao1215/docmirror/internal/fsutil"
	"github.com/nao1215/docmirror/internal/model"
)

// DirName is the export-relative cache directory.
const DirName = ".cache"

// Meta is the JSON sidecar of a cached body.
type Meta struct {
	URL          string            `json:"url"`
	FinalURL     string            `json:"final_url"`
	StatusCode   int               `json:"status_code"`
	Headers      map[string]string `json:"headers"`
	FetchedAt    string            `json:"fetched_at"`
	ETag         string            `json:"etag,omitempty"`
	LastModified string            `json:"last_modified,omitempty"`
}

// ContentType returns the cached Content-Type header.
func (m *Meta) ContentType() string {
	return m.Header().Get("Content-Type")
}

// Header rebuilds an http.Header from the stored headers.
func (m *Meta) Header() http.Header {
	h := make(http.Header, len(m.Headers))
	for k, v := range m.Headers {
		h.Set(k, v)
	}
	return h
}

// Result rebuilds the FetchResult the entry was written from.
func (m *Meta) Result(body []byte) *model.FetchResult {
	fetchedAt, _ := time.Parse(model.TimestampFormat, m.FetchedAt) // zero when absent
	return &model.FetchResult{
		URL:        m.URL,
		FinalURL:   m.FinalURL,
		StatusCode: m.StatusCode,
		Header:     m.Header(),
		Body:       body,
		FetchedAt:  fetchedAt,
		FromCache:  true,
	}
}

// Cache is a directory of cached responses.
type Cache struct {
	dir string
}

// Open returns the cache rooted at dir, creating the directory if needed.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, fsutil.DirPerm); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// BodyPath returns the body file of key.
func (c *Cache) BodyPath(key string) string {
	return filepath.Join(c.dir, key+".bin")
}

// MetaPath returns the metadata file of key.
func (c *Cache) MetaPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Read returns the cached body and metadata of key. ok is false when either
// file is missing, unreadable, or the metadata does not parse.
func (c *Cache) Read(key string) (body []byte, meta *Meta, ok bool) {
	metaBytes, err := os.ReadFile(c.MetaPath(key))
	if err != nil {
		return nil, nil, false
	}
	var m Meta
	if err := json.Unmarshal(metaBytes, &m); err != nil {
		return nil, nil, false
	}
	body, err = os.ReadFile(c.BodyPath(key))
	if err != nil {
		return nil, nil, false
	}
	return body, &m, true
}

// Write stores res under key. The body is written first and removed again
// if the metadata cannot be written, so a reader never sees metadata without
// its body.
func (c *Cache) Write(key string, res *model.FetchResult) error {
	if res == nil {
		return errors.New("cache: nil fetch result")
	}

	bodyPath := c.BodyPath(key)
	if err := fsutil.WriteFileAtomic(bodyPath, res.Body); err != nil {
		return fmt.Errorf("failed to write cached body: %w", err)
	}

	data, err := json.MarshalIndent(newMeta(res), "", "  ")
	if err != nil {
		_ = os.Remove(bodyPath)
		return fmt.Errorf("failed to encode cache metadata: %w", err)
	}
	if err := fsutil.WriteFileAtomic(c.MetaPath(key), data); err != nil {
		_ = os.Remove(bodyPath)
		return fmt.Errorf("failed to write cache metadata: %w", err)
	}
	return nil
}

func newMeta(res *model.FetchResult) *Meta {
	headers := make(map[string]string, len(res.Header))
	for k := range res.Header {
		headers[k] = res.Header.Get(k)
	}
	return &Meta{
		URL:          res.URL,
		FinalURL:     res.FinalURL,
		StatusCode:   res.StatusCode,
		Headers:      headers,
		FetchedAt:    model.FormatTimestamp(res.FetchedAt),
		ETag:         res.Header.Get("ETag"),
		LastModified: res.Header.Get("Last-Modified"),
	}
}
