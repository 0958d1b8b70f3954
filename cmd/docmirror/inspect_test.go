package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/docmirror/internal/model"
)

func TestInspectExport(t *testing.T) {
	t.Parallel()

	out := crawledExport(t)

	t.Run("text", func(t *testing.T) {
		t.Parallel()

		res := execute(t, t.TempDir(), "inspect-export", "--in", out)
		if res.code != exitOK {
			t.Fatalf("code = %d, stderr:\n%s", res.code, res.stderr)
		}
		if !strings.HasPrefix(res.stdout, "inspect-export: lines=") {
			t.Errorf("unexpected output %q", res.stdout)
		}
		if !strings.Contains(res.stdout, "invalid_json=0") || !strings.Contains(res.stdout, "missing_files=0") {
			t.Errorf("unexpected counters %q", res.stdout)
		}
		if strings.Contains(res.stdout, "missing_by_key") {
			t.Errorf("complete export should not list missing keys: %q", res.stdout)
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		res := execute(t, t.TempDir(), "inspect-export", "--in", out, "--json")
		if res.code != exitOK {
			t.Fatalf("code = %d, stderr:\n%s", res.code, res.stderr)
		}
		var got model.Inspection
		if err := json.Unmarshal([]byte(res.stdout), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, res.stdout)
		}
		if got.ReferencedFiles == 0 {
			t.Error("referenced_files = 0")
		}
		if got.Kinds[string(model.EventFetched)] != 3 {
			t.Errorf("kinds = %v", got.Kinds)
		}
		if !filepath.IsAbs(got.ExportDir) {
			t.Errorf("export_dir %q is not absolute", got.ExportDir)
		}
	})
}

func TestInspectExportMissingFiles(t *testing.T) {
	t.Parallel()

	out := crawledExport(t)
	raw := removeFirstRaw(t, out)

	res := execute(t, t.TempDir(), "inspect-export", "--in", out)
	if res.code != exitOK {
		t.Fatalf("without --fail-on-missing the code = %d", res.code)
	}
	for _, want := range []string{"missing_files=1", "missing_by_key: raw=1", "missing_paths_sample:", "- " + raw} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("output does not contain %q:\n%s", want, res.stdout)
		}
	}

	res = execute(t, t.TempDir(), "inspect-export", "--in", out, "--fail-on-missing", "--max-missing-sample", "0")
	if res.code != exitInvalid {
		t.Errorf("code = %d, want %d", res.code, exitInvalid)
	}
	if strings.Contains(res.stdout, "- "+raw) {
		t.Errorf("sample should be empty:\n%s", res.stdout)
	}
}

func TestInspectExportMultipleJSON(t *testing.T) {
	t.Parallel()

	a, b := crawledExport(t), crawledExport(t)

	res := execute(t, t.TempDir(), "inspect-export", "--in", a, "--in", b, "--json")
	if res.code != exitOK {
		t.Fatalf("code = %d, stderr:\n%s", res.code, res.stderr)
	}
	var got []model.Inspection
	if err := json.Unmarshal([]byte(res.stdout), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, res.stdout)
	}
	if len(got) != 2 {
		t.Errorf("got %d inspections, want 2", len(got))
	}
}

func TestInspectExportNoManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	res := execute(t, t.TempDir(), "inspect-export", "--in", dir)
	if res.code != exitFailure {
		t.Errorf("code = %d, want %d", res.code, exitFailure)
	}
	if !strings.Contains(res.stderr, "missing manifest.jsonl/manifest.json") {
		t.Errorf("stderr %q", res.stderr)
	}
}
