// Package state persists the crawl queue and the done/failed URL sets so an
// interrupted crawl can resume without refetching terminal URLs.
package state

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nao1215/docmirror/internal/fsutil"
	"github.com/nao1215/docmirror/internal/model"
)

// DirName is the export-relative state directory.
const DirName = ".state"

// File names inside the state directory.
const (
	QueueFile  = "queue_urls.txt"
	DoneFile   = "done_urls.txt"
	FailedFile = "failed_urls.txt"
)

// State is the set of durable crawl state files of one export.
type State struct {
	dir        string
	QueuePath  string
	DonePath   string
	FailedPath string
}

// Open returns the state rooted at dir, creating the directory if needed.
func Open(dir string) (*State, error) {
	if err := os.MkdirAll(dir, fsutil.DirPerm); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &State{
		dir:        dir,
		QueuePath:  filepath.Join(dir, QueueFile),
		DonePath:   filepath.Join(dir, DoneFile),
		FailedPath: filepath.Join(dir, FailedFile),
	}, nil
}

// Dir returns the state directory.
func (s *State) Dir() string {
	return s.dir
}

// LoadSet reads a line-delimited URL file into a set. A missing file is an
// empty set.
func (s *State) LoadSet(path string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	err := scanLines(path, func(line string) {
		set[line] = struct{}{}
	})
	return set, err
}

// LoadDone is LoadSet(DonePath).
func (s *State) LoadDone() (map[string]struct{}, error) {
	return s.LoadSet(s.DonePath)
}

// LoadFailed is LoadSet(FailedPath).
func (s *State) LoadFailed() (map[string]struct{}, error) {
	return s.LoadSet(s.FailedPath)
}

// LoadQueue reads the last queue snapshot. Lines are either "url" or
// "url<TAB>depth"; a missing or unparseable depth is zero.
func (s *State) LoadQueue() ([]model.QueueEntry, error) {
	var entries []model.QueueEntry
	err := scanLines(s.QueuePath, func(line string) {
		u, depthText, found := strings.Cut(line, "\t")
		entry := model.QueueEntry{URL: strings.TrimSpace(u)}
		if found {
			if d, err := strconv.Atoi(strings.TrimSpace(depthText)); err == nil && d >= 0 {
				entry.Depth = d
			}
		}
		if entry.URL != "" {
			entries = append(entries, entry)
		}
	})
	return entries, err
}

// SaveQueue replaces the queue snapshot atomically.
func (s *State) SaveQueue(entries []model.QueueEntry) error {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.URL)
		b.WriteByte('\t')
		b.WriteString(strconv.Itoa(e.Depth))
		b.WriteByte('\n')
	}
	if err := fsutil.WriteFileAtomic(s.QueuePath, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}
	return nil
}

// MarkDone appends url to the done set and syncs the file.
func (s *State) MarkDone(url string) error {
	if err := fsutil.AppendLine(s.DonePath, url); err != nil {
		return fmt.Errorf("failed to mark %s done: %w", url, err)
	}
	return nil
}

// MarkFailed appends url to the failed set and syncs the file.
func (s *State) MarkFailed(url string) error {
	if err := fsutil.AppendLine(s.FailedPath, url); err != nil {
		return fmt.Errorf("failed to mark %s failed: %w", url, err)
	}
	return nil
}

func scanLines(path string, fn func(line string)) error {
	f, err := os.Open(path) //nolint:gosec // path is built from the export directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			fn(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}
