package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// result is the outcome of one CLI invocation.
type result struct {
	code   int
	stdout string
	stderr string
}

// execute runs docmirror with args. The history database lives in a
// per-test directory unless args choose another one.
func execute(t *testing.T, dbDir string, args ...string) result {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	code := run(cmd, append([]string{"--db-dir", dbDir}, args...))
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// emptyConfig writes an empty configuration file so tests never pick up
// a file from the working or home directory.
func emptyConfig(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "docmirror.yaml")
	if err := os.WriteFile(path, []byte("defaults: {}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// newDocSite serves a small documentation site: two HTML pages, a JSON
// document and a page disallowed by robots.txt.
func newDocSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Home</title></head><body><h1>Home</h1>
<a href="/guide">Guide</a> <a href="/api.json">API</a> <a href="/private/notes">Notes</a>
</body></html>`)
	})
	mux.HandleFunc("/guide", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Guide</title></head><body><h1>Guide</h1><p>Read me.</p><a href="/">Home</a></body></html>`)
	})
	mux.HandleFunc("/api.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"version":1}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// crawlArgs are the flags of a fast crawl of srv into out.
func crawlArgs(t *testing.T, srv *httptest.Server, out string, extra ...string) []string {
	t.Helper()

	args := []string{
		"crawl",
		"--config", emptyConfig(t),
		"--out", out,
		"--per-host-delay", "0s",
		"--max-retries", "0",
		"--timeout", "5s",
		"--seed", srv.URL + "/",
	}
	return append(args, extra...)
}

// jsonRunReport is the subset of the JSON report the tests check.
type jsonRunReport struct {
	Status  string `json:"status"`
	Summary struct {
		RunID string         `json:"run_id"`
		Stats map[string]int `json:"stats"`
	} `json:"summary"`
	Normalize *struct {
		HTML    int `json:"html"`
		NonHTML int `json:"non_html"`
	} `json:"normalize"`
	CitationFiles []string `json:"citation_files"`
	Citations     int      `json:"citations"`
	Inspection    *struct {
		MissingFiles int `json:"missing_files"`
	} `json:"inspection"`
	Diff *struct {
		Added   []string `json:"added"`
		Changed []string `json:"changed"`
	} `json:"diff"`
}

func decodeReport(t *testing.T, data string) jsonRunReport {
	t.Helper()

	var r jsonRunReport
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, data)
	}
	return r
}
