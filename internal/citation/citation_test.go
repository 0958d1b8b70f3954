package citation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/docmirror/internal/model"
)

var testItems = []model.Citation{
	{Title: "Getting Started", URL: "https://docs.example.com/start", Accessed: "2026-01-02", LocalPath: "pages/Getting-Started--abc.md"},
	{Title: "API <v2> & more", URL: "https://docs.example.com/api", Accessed: "2026-01-02", Publisher: "Example Inc.", Author: "Docs Team"},
}

func TestRIS(t *testing.T) {
	t.Parallel()

	want := strings.Join([]string{
		"TY  - ELEC",
		"TI  - Getting Started",
		"UR  - https://docs.example.com/start",
		"Y2  - 2026-01-02",
		"L1  - pages/Getting-Started--abc.md",
		"ER  - ",
		"",
		"TY  - ELEC",
		"TI  - API <v2> & more",
		"A1  - Docs Team",
		"PB  - Example Inc.",
		"UR  - https://docs.example.com/api",
		"Y2  - 2026-01-02",
		"ER  -",
		"",
	}, "\n")

	if got := string(RIS(testItems)); got != want {
		t.Errorf("RIS() =\n%q\nwant\n%q", got, want)
	}
	if got := string(RIS(nil)); got != "\n" {
		t.Errorf("RIS(nil) = %q, want a single newline", got)
	}
}

func TestBibTeX(t *testing.T) {
	t.Parallel()

	got := string(BibTeX(testItems))
	for _, want := range []string{
		"@online{ref0001,\n  title = {Getting Started},\n",
		"  note = {Local copy: pages/Getting-Started--abc.md},\n}\n\n@online{ref0002,",
		"  author = {Docs Team},\n  organization = {Example Inc.},\n",
		"  urldate = {2026-01-02},\n}\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("BibTeX() missing %q in\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, "}\n") {
		t.Errorf("BibTeX() must end with a single newline: %q", got[len(got)-5:])
	}
}

func TestCSLJSON(t *testing.T) {
	t.Parallel()

	data, err := CSLJSON(testItems)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `<`) {
		t.Error("CSL-JSON must not escape HTML characters")
	}

	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, data)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	first := entries[0]
	if first["type"] != "webpage" || first["URL"] != "https://docs.example.com/start" {
		t.Errorf("first entry = %v", first)
	}
	if first["note"] != "Local copy: pages/Getting-Started--abc.md" {
		t.Errorf("note = %v", first["note"])
	}
	if _, ok := first["author"]; ok {
		t.Error("author must be omitted when empty")
	}
	authors, ok := entries[1]["author"].([]any)
	if !ok || len(authors) != 1 {
		t.Errorf("author = %v", entries[1]["author"])
	}

	empty, err := CSLJSON(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(empty) != "[]" {
		t.Errorf("CSLJSON(nil) = %q, want []", empty)
	}
}

func TestWriteFiles(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	written, err := WriteFiles(out, testItems, FormatRIS, FormatCSLJSON, FormatBibTeX)
	if err != nil {
		t.Fatalf("WriteFiles() error = %v", err)
	}

	for f, name := range map[Format]string{
		FormatRIS:     "refs.ris",
		FormatCSLJSON: "refs.csl.json",
		FormatBibTeX:  "refs.bib",
	} {
		want := filepath.Join(out, DirName, name)
		if written[f] != want {
			t.Errorf("%s written to %q, want %q", f, written[f], want)
		}
		if _, err := os.Stat(want); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}

	if _, err := WriteFiles(out, testItems, Format("endnote")); err == nil {
		t.Error("unknown format must fail")
	}
}
