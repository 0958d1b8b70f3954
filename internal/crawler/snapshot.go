package crawler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/nao1215/docmirror/internal/content"
	"github.com/nao1215/docmirror/internal/render"
)

var (
	// ErrSnapshotDirNotFound is returned when a snapshot directory does not exist.
	ErrSnapshotDirNotFound = errors.New("snapshot directory does not exist")
	// ErrSnapshotDirNotDir is returned when a snapshot directory is a regular file.
	ErrSnapshotDirNotDir = errors.New("snapshot directory must be a directory")
)

// savedFromPattern matches the comment browsers put at the top of a saved page.
var savedFromPattern = regexp.MustCompile(`(?i)saved\s+from\s+url=\(\d+\)(https?://[^\s>]+)`)

// InferSavedFromURL returns the URL recorded in a browser "saved from url"
// comment, or "" when the page has none.
func InferSavedFromURL(htmlText string) string {
	m := savedFromPattern.FindStringSubmatch(htmlText)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Snapshot is a browser-saved HTML page used to bootstrap a crawl.
type Snapshot struct {
	// Path is the file the snapshot was read from.
	Path string
	// URL is the page URL: the saved-from URL when present, else the default.
	URL string
	// Body is the raw file content.
	Body []byte
	// Inferred is true when URL came from the saved-from comment.
	Inferred bool
}

// ParseSnapshot reads a saved HTML page. defaultURL is used as the page URL
// when the file carries no saved-from comment.
func ParseSnapshot(path, defaultURL string) (*Snapshot, error) {
	body, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read seed HTML %s: %w", path, err)
	}
	s := &Snapshot{Path: path, URL: defaultURL, Body: body}
	if inferred := InferSavedFromURL(render.DecodeText(body)); inferred != "" {
		s.URL = inferred
		s.Inferred = true
	}
	return s, nil
}

// IsWAFChallenge reports whether the snapshot is a bot-protection page.
// Only the hard block markers count: saved pages usually keep the challenge
// script tags even when the real content loaded.
func (s *Snapshot) IsWAFChallenge() bool {
	return content.IsWAFChallenge(s.Body, "text/html", false)
}

// Links returns the crawlable links of the snapshot.
func (s *Snapshot) Links() []string {
	return ExtractLinks(render.DecodeText(s.Body), s.URL)
}

// CollectSnapshotFiles returns every *.html file below dir in sorted order,
// skipping the "<name>_files" asset directories browsers create.
func CollectSnapshotFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotDirNotFound, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotDirNotDir, dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasSuffix(strings.ToLower(d.Name()), "_files") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".html") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
