package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFileWriter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "docmirror.log")
	w := NewFileWriter(path)

	logger := NewSecureLogger(w, false)
	logger.Info("crawl started", "cookie", "sid=1", "seeds", 2)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // test path
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	got := string(data)
	if !strings.Contains(got, "crawl started") {
		t.Errorf("log file missing message: %s", got)
	}
	if strings.Contains(got, "sid=1") {
		t.Errorf("cookie leaked into log file: %s", got)
	}
}
