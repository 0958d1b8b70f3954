package render

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"

	"github.com/nao1215/docmirror/internal/model"
)

// DefaultMaxChars is the default rendering cap in characters.
const DefaultMaxChars = 400000

// TruncationMarker is appended to text cut at the rendering cap.
const TruncationMarker = "\n\n[TRUNCATED]\n"

// Messages rendered in place of PDF text.
const (
	pdfParseFailed = "(PDF captured, but failed to parse it.)\n"
	pdfNoText      = "(No extractable text found in PDF.)\n"
)

// Fence languages used for non-HTML Markdown code blocks.
const (
	fenceJSON = "json"
	fenceXML  = "xml"
	fenceText = "text"
)

// FormatNonHTML renders a structured body as display text and returns the
// code fence language to wrap it in. Malformed JSON or XML falls back to the
// raw text; it never fails.
func FormatNonHTML(kind model.Kind, body []byte) (text, fence string) {
	switch kind {
	case model.KindJSON:
		if pretty, ok := prettyJSON(body); ok {
			return pretty, fenceJSON
		}
		return DecodeText(body), fenceText
	case model.KindXML:
		if pretty, err := prettyXML(body); err == nil {
			return pretty, fenceXML
		}
		return strings.TrimSpace(DecodeText(body)) + "\n", fenceXML
	case model.KindPDF:
		return pdfText(body), fenceText
	case model.KindHTML, model.KindText, model.KindZIP, model.KindBytes:
		return DecodeText(body), fenceText
	default:
		return DecodeText(body), fenceText
	}
}

// Truncate caps text at maxChars characters. A cut text keeps exactly
// maxChars characters followed by TruncationMarker.
func Truncate(text string, maxChars int) (string, bool) {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text, false
	}
	return string([]rune(text)[:maxChars]) + TruncationMarker, true
}

// DecodeText decodes body as UTF-8, replacing invalid sequences.
func DecodeText(body []byte) string {
	if utf8.Valid(body) {
		return string(body)
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(body)
	if err != nil {
		return strings.ToValidUTF8(string(body), "�")
	}
	return string(out)
}

// prettyJSON indents valid UTF-8 JSON by two spaces, keeping key order.
func prettyJSON(body []byte) (string, bool) {
	if !utf8.Valid(body) || !json.Valid(body) {
		return "", false
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(body), "", "  "); err != nil {
		return "", false
	}
	buf.WriteByte('\n')
	return buf.String(), true
}

// prettyXML re-indents an XML document by two spaces. Namespace prefixes
// are kept as written and whitespace-only text is dropped.
func prettyXML(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	sawElement := false
	depth := 0
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) == 0 {
				continue
			}
		case xml.StartElement:
			sawElement = true
			depth++
			t.Name = flattenName(t.Name)
			attrs := make([]xml.Attr, len(t.Attr))
			for i, a := range t.Attr {
				attrs[i] = xml.Attr{Name: flattenName(a.Name), Value: a.Value}
			}
			t.Attr = attrs
			tok = t
		case xml.EndElement:
			depth--
			t.Name = flattenName(t.Name)
			tok = t
		}

		if err := enc.EncodeToken(xml.CopyToken(tok)); err != nil {
			return "", err
		}

		// Keep the prolog on its own lines.
		switch tok.(type) {
		case xml.ProcInst, xml.Directive:
			if depth == 0 {
				if err := enc.Flush(); err != nil {
					return "", err
				}
				buf.WriteByte('\n')
			}
		}
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	if !sawElement || depth != 0 {
		return "", errors.New("xml: incomplete document")
	}

	lines := strings.Split(buf.String(), "\n")
	out := lines[:0]
	for _, ln := range lines {
		if ln = strings.TrimRight(ln, " \t\r"); strings.TrimSpace(ln) != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n") + "\n", nil
}

// flattenName folds a raw prefix into the local name so the encoder writes
// the element back unchanged instead of inventing xmlns attributes.
func flattenName(n xml.Name) xml.Name {
	if n.Space == "" {
		return n
	}
	return xml.Name{Local: n.Space + ":" + n.Local}
}

// pdfText extracts plain text from every page, separated by blank lines.
func pdfText(body []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = pdfParseFailed
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return pdfParseFailed
	}

	var parts []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := extractPage(page)
		if err != nil || strings.TrimSpace(pageText) == "" {
			continue
		}
		parts = append(parts, pageText)
	}

	joined := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if joined == "" {
		return pdfNoText
	}
	return joined + "\n"
}

// extractPage isolates panics from a single malformed page.
func extractPage(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf page: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}

// ResponsePayload is the structured copy of an endpoint response stored in
// the .resp.json sidecar.
type ResponsePayload struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// FormatResponse renders an endpoint response for display. JSON responses
// (by declared content type) are pretty-printed and kept as JSON in the
// payload; everything else is text.
func FormatResponse(body []byte, contentType string) (string, ResponsePayload) {
	mt := model.MediaType(contentType)
	if mt == "application/json" || strings.HasSuffix(mt, "+json") {
		if pretty, ok := prettyJSON(body); ok {
			return pretty, ResponsePayload{Type: "json", Value: json.RawMessage(bytes.TrimSpace(body))}
		}
	}
	text := DecodeText(body)
	return text, ResponsePayload{Type: "text", Value: text}
}
