package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/docmirror/internal/model"
)

func TestSniff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		url         string
		contentType string
		body        string
		want        model.Kind
	}{
		{
			name:        "pdf magic beats declared html",
			url:         "https://example.test/doc",
			contentType: "text/html",
			body:        "%PDF-1.7\n...",
			want:        model.KindPDF,
		},
		{
			name: "zip magic",
			url:  "https://example.test/download",
			body: "PK\x03\x04rest",
			want: model.KindZIP,
		},
		{
			name:        "asset url with html body stays bytes",
			url:         "https://example.test/app.js",
			contentType: "text/html",
			body:        "<html><body>x</body></html>",
			want:        model.KindBytes,
		},
		{
			name:        "asset url declared json",
			url:         "https://example.test/config.js",
			contentType: "application/json; charset=utf-8",
			body:        `{"a":1}`,
			want:        model.KindJSON,
		},
		{
			name:        "declared json",
			url:         "https://example.test/api",
			contentType: "application/json",
			body:        `{}`,
			want:        model.KindJSON,
		},
		{
			name:        "declared problem json",
			url:         "https://example.test/api",
			contentType: "application/problem+json",
			body:        `{}`,
			want:        model.KindJSON,
		},
		{
			name:        "declared xml",
			url:         "https://example.test/feed",
			contentType: "text/xml",
			body:        "<rss/>",
			want:        model.KindXML,
		},
		{
			name:        "declared text",
			url:         "https://example.test/notes",
			contentType: "text/plain",
			body:        "hello",
			want:        model.KindText,
		},
		{
			name:        "declared xhtml",
			url:         "https://example.test/page",
			contentType: "application/xhtml+xml",
			body:        "<html/>",
			want:        model.KindHTML,
		},
		{
			name: "html prologue sniffed",
			url:  "https://example.test/page",
			body: "\n  <!DOCTYPE html><html></html>",
			want: model.KindHTML,
		},
		{
			name: "path extension json",
			url:  "https://example.test/data.JSON",
			body: "[]",
			want: model.KindJSON,
		},
		{
			name: "path extension xml",
			url:  "https://example.test/sitemap.xml",
			body: "<urlset/>",
			want: model.KindXML,
		},
		{
			name: "path extension txt",
			url:  "https://example.test/robots.txt",
			body: "User-agent: *",
			want: model.KindText,
		},
		{
			name: "unknown defaults to bytes",
			url:  "https://example.test/blob",
			body: "\x00\x01",
			want: model.KindBytes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Sniff(tt.url, tt.contentType, []byte(tt.body)); got != tt.want {
				t.Errorf("Sniff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLooksLikeHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		body string
		want bool
	}{
		{"<html><body></body></html>", true},
		{"   <!doctype html>", true},
		{"<HEAD><title>x</title></HEAD>", true},
		{"<div>fragment</div>", false},
		{"plain text <html>", false},
		{"", false},
		{"<" + strings.Repeat(" ", 3000) + "<html>", false},
	}
	for _, tt := range tests {
		if got := LooksLikeHTML([]byte(tt.body)); got != tt.want {
			t.Errorf("LooksLikeHTML(%q) = %v, want %v", truncateForLog(tt.body), got, tt.want)
		}
	}
}

func truncateForLog(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}

func anchors(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(`<a href="/p">link</a>`)
	}
	return b.String()
}

func TestIsWAFChallenge(t *testing.T) {
	t.Parallel()

	const integration = `<script src="https://x.edge.sdk.awswaf.com/challenge.js"></script>`

	tests := []struct {
		name        string
		body        string
		contentType string
		heuristic   bool
		want        bool
	}{
		{
			name:        "hard marker regardless of anchors",
			body:        "<html><body>You have   been\nblocked" + anchors(30) + "</body></html>",
			contentType: "text/html",
			heuristic:   true,
			want:        true,
		},
		{
			name:        "integration markers with many anchors",
			body:        "<html><head>" + integration + "</head><body>" + anchors(20) + "</body></html>",
			contentType: "text/html",
			heuristic:   true,
			want:        false,
		},
		{
			name:        "integration markers with few anchors",
			body:        "<html><head>" + integration + "</head><body>" + anchors(2) + "</body></html>",
			contentType: "text/html",
			heuristic:   true,
			want:        true,
		},
		{
			name:        "heuristic disabled for snapshots",
			body:        "<html><head>" + integration + "</head><body></body></html>",
			contentType: "text/html",
			heuristic:   false,
			want:        false,
		},
		{
			name:        "hard marker still wins with heuristic disabled",
			body:        "<html><body>Request blocked</body></html>",
			contentType: "text/html",
			heuristic:   false,
			want:        true,
		},
		{
			name:        "non html body ignored",
			body:        `{"message":"Request blocked"}`,
			contentType: "application/json",
			heuristic:   true,
			want:        false,
		},
		{
			name:      "sniffed html without content type",
			body:      "<!doctype html><html>The requested URL was rejected</html>",
			heuristic: true,
			want:      true,
		},
		{
			name:        "no markers",
			body:        "<html><body>Welcome</body></html>",
			contentType: "text/html",
			heuristic:   true,
			want:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsWAFChallenge([]byte(tt.body), tt.contentType, tt.heuristic); got != tt.want {
				t.Errorf("IsWAFChallenge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsWAFChallengeScanLimit(t *testing.T) {
	t.Parallel()

	body := "<html><body>" + strings.Repeat("x", wafScanLimit) + "Request blocked</body></html>"
	if IsWAFChallenge([]byte(body), "text/html", true) {
		t.Error("expected marker beyond the scan limit to be ignored")
	}
}

func TestStoreRaw(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	body := []byte("<html>same</html>")

	first, err := StoreRaw(dir, model.KindHTML, body)
	if err != nil {
		t.Fatalf("StoreRaw failed: %v", err)
	}
	if !strings.HasPrefix(first.RelPath, "raw/html/") || !strings.HasSuffix(first.RelPath, ".html") {
		t.Errorf("unexpected relative path %q", first.RelPath)
	}
	if len(filepath.Base(first.Path)) != 16+len(".html") {
		t.Errorf("expected 16 hex chars in file name, got %q", filepath.Base(first.Path))
	}

	second, err := StoreRaw(dir, model.KindHTML, body)
	if err != nil {
		t.Fatalf("StoreRaw failed: %v", err)
	}
	if first.Path != second.Path {
		t.Errorf("expected identical bodies to share a file, got %q and %q", first.Path, second.Path)
	}

	other, err := StoreRaw(dir, model.KindBytes, []byte{0x00})
	if err != nil {
		t.Fatalf("StoreRaw failed: %v", err)
	}
	if !strings.HasPrefix(other.RelPath, "raw/bytes/") || !strings.HasSuffix(other.RelPath, ".bin") {
		t.Errorf("unexpected relative path %q", other.RelPath)
	}

	got, err := os.ReadFile(first.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(body) {
		t.Errorf("expected stored body %q, got %q", body, got)
	}
}
