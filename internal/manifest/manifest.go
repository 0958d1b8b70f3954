// Package manifest writes and reads the append-only event log of an export
// (manifest.jsonl) and its run summary (manifest.json).
package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nao1215/docmirror/internal/fsutil"
	"github.com/nao1215/docmirror/internal/model"
)

// File names inside an export directory.
const (
	EventsFile  = "manifest.jsonl"
	SummaryFile = "manifest.json"
)

// maxLineSize bounds a single manifest line.
const maxLineSize = 16 * 1024 * 1024

// Writer appends events to manifest.jsonl.
type Writer struct {
	mu          sync.Mutex
	eventsPath  string
	summaryPath string
	now         func() time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter returns a Writer for the export rooted at dir.
func NewWriter(dir string, opts ...Option) *Writer {
	w := &Writer{
		eventsPath:  filepath.Join(dir, EventsFile),
		summaryPath: filepath.Join(dir, SummaryFile),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// EventsPath returns the manifest.jsonl path.
func (w *Writer) EventsPath() string {
	return w.eventsPath
}

// SummaryPath returns the manifest.json path.
func (w *Writer) SummaryPath() string {
	return w.summaryPath
}

// Append writes ev as one JSON line, stamping At when it is empty.
// The stamped event is returned.
func (w *Writer) Append(ev model.Event) (model.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ev.At == "" {
		ev.At = model.FormatTimestamp(w.now())
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return ev, fmt.Errorf("failed to encode manifest event: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.eventsPath), fsutil.DirPerm); err != nil {
		return ev, fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := fsutil.AppendBytes(w.eventsPath, buf.Bytes()); err != nil {
		return ev, fmt.Errorf("failed to append manifest event: %w", err)
	}
	return ev, nil
}

// WriteSummary replaces manifest.json with v indented by two spaces.
func (w *Writer) WriteSummary(v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := fsutil.WriteFileAtomic(w.summaryPath, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// ErrStop may be returned from a ReadEvents callback to stop early.
var ErrStop = errors.New("stop reading manifest")

// Stats counts the lines seen by ReadEvents.
type Stats struct {
	Lines   int
	Invalid int
}

// ReadEvents calls fn for every valid event in the manifest at path. Blank
// lines are skipped and lines that are not JSON objects are counted as
// invalid. A missing file returns os.ErrNotExist.
func ReadEvents(path string, fn func(model.Event) error) (Stats, error) {
	var stats Stats

	f, err := os.Open(path) //nolint:gosec // path points into the export directory
	if err != nil {
		return stats, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Lines++

		var ev model.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			stats.Invalid++
			continue
		}
		if err := fn(ev); err != nil {
			if errors.Is(err, ErrStop) {
				return stats, nil
			}
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return stats, nil
}

// ReadAll loads every valid event of the manifest at path. Passes that
// append to the same manifest read it fully first so they never see their
// own events.
func ReadAll(path string) ([]model.Event, error) {
	var events []model.Event
	_, err := ReadEvents(path, func(ev model.Event) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}
