package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/docmirror/internal/fsutil"
	"github.com/nao1215/docmirror/internal/model"
)

// RawDir is the export-relative directory holding raw bodies.
const RawDir = "raw"

// Artifact is a raw body stored under raw/<kind>/.
type Artifact struct {
	// Path is the absolute file path.
	Path string
	// RelPath is the export-relative path with forward slashes.
	RelPath string
	// SHA256 is the full hex digest of the body.
	SHA256 string
	// Size is the body length in bytes.
	Size int
	// Kind is the kind the body was stored as.
	Kind model.Kind
}

// StoreRaw writes body to raw/<kind>/<sha256[:16]><ext> under outDir.
// Identical bodies share one file and an existing file is never rewritten.
func StoreRaw(outDir string, kind model.Kind, body []byte) (Artifact, error) {
	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])

	dir := filepath.Join(outDir, RawDir, kind.String())
	if err := os.MkdirAll(dir, fsutil.DirPerm); err != nil {
		return Artifact{}, fmt.Errorf("failed to create raw directory: %w", err)
	}

	path := filepath.Join(dir, digest[:16]+kind.Ext())
	if _, err := fsutil.WriteFileIfAbsent(path, body); err != nil {
		return Artifact{}, fmt.Errorf("failed to store raw body: %w", err)
	}

	rel, err := fsutil.RelSlash(outDir, path)
	if err != nil {
		return Artifact{}, err
	}

	return Artifact{
		Path:    path,
		RelPath: rel,
		SHA256:  digest,
		Size:    len(body),
		Kind:    kind,
	}, nil
}
