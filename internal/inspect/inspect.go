// Package inspect verifies an export directory against its manifest: every
// artifact path referenced by an event must exist inside the export.
package inspect

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/docmirror/internal/fsutil"
	"github.com/nao1215/docmirror/internal/manifest"
	"github.com/nao1215/docmirror/internal/model"
)

const (
	// DefaultMaxMissingSample bounds the missing paths listed in a result.
	DefaultMaxMissingSample = 25

	// DefaultConcurrency is the number of concurrent existence checks.
	DefaultConcurrency = 16

	// summaryFileKey is the missing_by_key name used for manifest.json items.
	summaryFileKey = "file"

	maxLineSize = 16 * 1024 * 1024
)

var (
	// ErrNoManifest is returned when the directory has neither manifest.jsonl nor manifest.json.
	ErrNoManifest = errors.New("missing manifest.jsonl/manifest.json")
	// ErrInvalidSummary is returned when manifest.json is the only manifest and is not valid JSON.
	ErrInvalidSummary = errors.New("invalid JSON in manifest.json")
)

type options struct {
	maxMissingSample int
	concurrency      int
}

// Option configures Inspect.
type Option func(*options)

// WithMaxMissingSample sets how many missing paths are listed.
func WithMaxMissingSample(n int) Option {
	return func(o *options) {
		o.maxMissingSample = n
	}
}

// WithConcurrency sets the number of concurrent existence checks.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// reference is one artifact path found in the manifest.
type reference struct {
	key  string
	path string
}

// Inspect reads the manifest of the export at dir and checks that every
// referenced artifact exists. Paths that resolve outside dir count as
// missing. When only manifest.json exists its items[].file entries are
// checked instead.
func Inspect(ctx context.Context, dir string, opts ...Option) (*model.Inspection, error) {
	o := options{
		maxMissingSample: DefaultMaxMissingSample,
		concurrency:      DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	result := &model.Inspection{
		ExportDir:          abs,
		Kinds:              make(map[string]int),
		MissingByKey:       make(map[string]int),
		MissingPathsSample: make([]string, 0),
	}

	eventsPath := filepath.Join(abs, manifest.EventsFile)
	summaryPath := filepath.Join(abs, manifest.SummaryFile)

	var refs []reference
	switch {
	case exists(eventsPath):
		refs, err = scanEvents(eventsPath, result)
	case exists(summaryPath):
		refs, err = scanSummary(summaryPath)
	default:
		return nil, fmt.Errorf("%w in: %s", ErrNoManifest, abs)
	}
	if err != nil {
		return nil, err
	}

	missing, err := checkAll(ctx, abs, refs, o.concurrency)
	if err != nil {
		return nil, err
	}

	result.ReferencedFiles = len(refs)
	for i, ref := range refs {
		if !missing[i] {
			continue
		}
		result.MissingFiles++
		result.MissingByKey[ref.key]++
		if len(result.MissingPathsSample) < o.maxMissingSample {
			result.MissingPathsSample = append(result.MissingPathsSample, ref.path)
		}
	}
	return result, nil
}

// scanEvents collects references from manifest.jsonl. Lines are decoded
// loosely so one odd field never hides the rest of an event.
func scanEvents(path string, result *model.Inspection) ([]reference, error) {
	f, err := os.Open(path) //nolint:gosec // path points into the export directory
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var refs []reference
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		result.LinesTotal++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev map[string]json.RawMessage
		if err := json.Unmarshal(line, &ev); err != nil {
			result.LinesInvalidJSON++
			continue
		}

		var kind string
		if json.Unmarshal(ev["kind"], &kind) == nil && kind != "" {
			result.Kinds[kind]++
		}

		var paths map[string]json.RawMessage
		if json.Unmarshal(ev["paths"], &paths) != nil {
			continue
		}
		// Keep the key order of PathKeys so results are deterministic.
		for _, key := range model.PathKeys {
			raw, ok := paths[key]
			if !ok {
				continue
			}
			var p string
			if json.Unmarshal(raw, &p) != nil || p == "" {
				continue
			}
			refs = append(refs, reference{key: key, path: p})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return refs, nil
}

// scanSummary collects items[].file references from a manifest.json
// written by exporters that keep no event log.
func scanSummary(path string) ([]reference, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path points into the export directory
	if err != nil {
		return nil, err
	}
	var doc struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("%w in: %s", ErrInvalidSummary, filepath.Dir(path))
		}
		// Valid JSON of another shape has no items to check.
		return nil, nil
	}

	var refs []reference
	for _, raw := range doc.Items {
		var item struct {
			File json.RawMessage `json:"file"`
		}
		if json.Unmarshal(raw, &item) != nil {
			continue
		}
		var p string
		if json.Unmarshal(item.File, &p) != nil || p == "" {
			continue
		}
		refs = append(refs, reference{key: summaryFileKey, path: p})
	}
	return refs, nil
}

// checkAll reports for each reference whether it is missing.
func checkAll(ctx context.Context, dir string, refs []reference, concurrency int) ([]bool, error) {
	missing := make([]bool, len(refs))

	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, ref := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			full, ok := fsutil.ResolveWithin(dir, ref.path)
			missing[i] = !ok || !exists(full)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return missing, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
