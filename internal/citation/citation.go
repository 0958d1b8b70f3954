// Package citation serializes crawl citations for reference managers in
// RIS, CSL-JSON and BibTeX form.
package citation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nao1215/docmirror/internal/fsutil"
	"github.com/nao1215/docmirror/internal/model"
)

// DirName is the export-relative directory holding citation files.
const DirName = "citations"

// Format is a citation file format.
type Format string

const (
	// FormatRIS is the RIS tagged format read by EndNote and Zotero.
	FormatRIS Format = "ris"
	// FormatCSLJSON is the Citation Style Language JSON format.
	FormatCSLJSON Format = "csl-json"
	// FormatBibTeX is BibTeX with @online entries.
	FormatBibTeX Format = "bibtex"
)

// FileName returns the file name used for f inside DirName.
func (f Format) FileName() string {
	switch f {
	case FormatRIS:
		return "refs.ris"
	case FormatCSLJSON:
		return "refs.csl.json"
	case FormatBibTeX:
		return "refs.bib"
	default:
		return "refs.txt"
	}
}

// Encode renders items in format f.
func Encode(f Format, items []model.Citation) ([]byte, error) {
	switch f {
	case FormatRIS:
		return RIS(items), nil
	case FormatCSLJSON:
		return CSLJSON(items)
	case FormatBibTeX:
		return BibTeX(items), nil
	default:
		return nil, fmt.Errorf("unknown citation format %q", f)
	}
}

// WriteFiles writes one file per format under <outDir>/citations and
// returns the written paths keyed by format.
func WriteFiles(outDir string, items []model.Citation, formats ...Format) (map[Format]string, error) {
	written := make(map[Format]string, len(formats))
	for _, f := range formats {
		data, err := Encode(f, items)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(outDir, DirName, f.FileName())
		if err := fsutil.WriteFileAtomic(path, data); err != nil {
			return nil, err
		}
		written[f] = path
	}
	return written, nil
}

// RIS renders items as ELEC records.
func RIS(items []model.Citation) []byte {
	var lines []string
	for _, it := range items {
		lines = append(lines, "TY  - ELEC", "TI  - "+it.Title)
		if it.Author != "" {
			lines = append(lines, "A1  - "+it.Author)
		}
		if it.Publisher != "" {
			lines = append(lines, "PB  - "+it.Publisher)
		}
		lines = append(lines, "UR  - "+it.URL, "Y2  - "+it.Accessed)
		if it.LocalPath != "" {
			lines = append(lines, "L1  - "+it.LocalPath)
		}
		lines = append(lines, "ER  - ", "")
	}
	return finish(lines)
}

type cslAuthor struct {
	Literal string `json:"literal"`
}

type cslDate struct {
	Raw string `json:"raw"`
}

type cslEntry struct {
	Type      string      `json:"type"`
	Title     string      `json:"title"`
	URL       string      `json:"URL"` //nolint:tagliatelle // CSL field name
	Accessed  cslDate     `json:"accessed"`
	Publisher string      `json:"publisher,omitempty"`
	Author    []cslAuthor `json:"author,omitempty"`
	Note      string      `json:"note,omitempty"`
}

// CSLJSON renders items as a CSL-JSON array of webpage entries.
func CSLJSON(items []model.Citation) ([]byte, error) {
	entries := make([]cslEntry, 0, len(items))
	for _, it := range items {
		e := cslEntry{
			Type:      "webpage",
			Title:     it.Title,
			URL:       it.URL,
			Accessed:  cslDate{Raw: it.Accessed},
			Publisher: it.Publisher,
		}
		if it.Author != "" {
			e.Author = []cslAuthor{{Literal: it.Author}}
		}
		if it.LocalPath != "" {
			e.Note = "Local copy: " + it.LocalPath
		}
		entries = append(entries, e)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("failed to encode CSL-JSON: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// BibTeX renders items as @online entries keyed ref0001, ref0002, ...
func BibTeX(items []model.Citation) []byte {
	var lines []string
	for i, it := range items {
		lines = append(lines,
			fmt.Sprintf("@online{ref%04d,", i+1),
			"  title = {"+it.Title+"},",
		)
		if it.Author != "" {
			lines = append(lines, "  author = {"+it.Author+"},")
		}
		if it.Publisher != "" {
			lines = append(lines, "  organization = {"+it.Publisher+"},")
		}
		lines = append(lines,
			"  url = {"+it.URL+"},",
			"  urldate = {"+it.Accessed+"},",
		)
		if it.LocalPath != "" {
			lines = append(lines, "  note = {Local copy: "+it.LocalPath+"},")
		}
		lines = append(lines, "}", "")
	}
	return finish(lines)
}

// finish joins lines and ends the text with exactly one newline.
func finish(lines []string) []byte {
	return []byte(strings.TrimRight(strings.Join(lines, "\n"), " \t\r\n") + "\n")
}
