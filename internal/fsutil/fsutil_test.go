package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	t.Run("creates parent directories and replaces content", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "a", "b", "file.txt")
		if err := WriteFileAtomic(path, []byte("first")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := WriteFileAtomic(path, []byte("second")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read file: %v", err)
		}
		if string(got) != "second" {
			t.Errorf("expected %q, got %q", "second", got)
		}
	})

	t.Run("leaves no temporary files behind", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		if err := WriteFileAtomic(filepath.Join(dir, "x.json"), []byte("{}")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("failed to read dir: %v", err)
		}
		if len(entries) != 1 {
			t.Errorf("expected 1 entry, got %d", len(entries))
		}
	})
}

func TestAppendLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "done.txt")
	for _, line := range []string{"a", "b"} {
		if err := AppendLine(path, line); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(got) != "a\nb\n" {
		t.Errorf("expected %q, got %q", "a\nb\n", got)
	}
}

func TestWriteFileIfAbsent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "raw.html")
	wrote, err := WriteFileIfAbsent(path, []byte("one"))
	if err != nil || !wrote {
		t.Fatalf("expected first write to succeed, wrote=%v err=%v", wrote, err)
	}
	wrote, err = WriteFileIfAbsent(path, []byte("two"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wrote {
		t.Error("expected existing file to be kept")
	}
	got, _ := os.ReadFile(path)
	if string(got) != "one" {
		t.Errorf("expected %q, got %q", "one", got)
	}
}

func TestRelSlash(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	got, err := RelSlash(base, filepath.Join(base, "pages", "a.md"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "pages/a.md" {
		t.Errorf("expected %q, got %q", "pages/a.md", got)
	}
}

func TestResolveWithin(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		rel  string
		want bool
	}{
		{"raw/html/a.html", true},
		{"pages/../raw/x.bin", true},
		{"../outside.txt", false},
		{"raw/../../outside.txt", false},
		{"/etc/passwd", false},
		{"", false},
	}
	for _, tt := range tests {
		got, ok := ResolveWithin(dir, tt.rel)
		if ok != tt.want {
			t.Errorf("ResolveWithin(%q) ok = %v, want %v", tt.rel, ok, tt.want)
			continue
		}
		if ok && !strings.HasPrefix(got, dir) {
			t.Errorf("ResolveWithin(%q) = %q, expected a path under %q", tt.rel, got, dir)
		}
	}
}
