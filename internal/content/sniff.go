package content

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/nao1215/docmirror/internal/model"
	"github.com/nao1215/docmirror/internal/urlscope"
)

// htmlSniffLen is how much of the body LooksLikeHTML inspects.
const htmlSniffLen = 2048

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// LooksLikeHTML reports whether the body starts with markup that carries an
// html, doctype or head tag within its first 2048 bytes.
func LooksLikeHTML(body []byte) bool {
	head := body
	if len(head) > htmlSniffLen {
		head = head[:htmlSniffLen]
	}
	head = bytes.TrimLeft(head, " \t\r\n\f\v")
	if !bytes.HasPrefix(head, []byte("<")) {
		return false
	}
	lower := bytes.ToLower(head)
	return bytes.Contains(lower, []byte("<html")) ||
		bytes.Contains(lower, []byte("<!doctype")) ||
		bytes.Contains(lower, []byte("<head"))
}

// Sniff classifies a body. Magic bytes win, asset-intent URLs are never
// treated as pages, then the declared content type, an HTML prologue sniff,
// and finally the path extension are consulted.
func Sniff(rawURL, contentType string, body []byte) model.Kind {
	switch {
	case bytes.HasPrefix(body, pdfMagic):
		return model.KindPDF
	case bytes.HasPrefix(body, zipMagic):
		return model.KindZIP
	}

	mt := model.MediaType(contentType)

	if urlscope.IsAssetIntent(rawURL) {
		if isJSONType(mt) {
			return model.KindJSON
		}
		return model.KindBytes
	}

	switch {
	case isJSONType(mt):
		return model.KindJSON
	case isXMLType(mt):
		return model.KindXML
	case mt == "text/plain":
		return model.KindText
	case isHTMLType(mt):
		return model.KindHTML
	}

	if LooksLikeHTML(body) {
		return model.KindHTML
	}

	return kindFromPath(rawURL)
}

func kindFromPath(rawURL string) model.Kind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.KindBytes
	}
	p := strings.ToLower(u.Path)
	switch {
	case strings.HasSuffix(p, ".json"):
		return model.KindJSON
	case strings.HasSuffix(p, ".xml"):
		return model.KindXML
	case strings.HasSuffix(p, ".txt"):
		return model.KindText
	default:
		return model.KindBytes
	}
}

func isJSONType(mt string) bool {
	return mt == "application/json" || mt == "text/json" || strings.HasSuffix(mt, "+json")
}

func isXMLType(mt string) bool {
	return mt == "application/xml" || mt == "text/xml" || (strings.HasSuffix(mt, "+xml") && mt != "application/xhtml+xml")
}

func isHTMLType(mt string) bool {
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// IsHTMLish reports whether the declared type or the body says HTML.
func IsHTMLish(contentType string, body []byte) bool {
	if mt := model.MediaType(contentType); mt != "" && isHTMLType(mt) {
		return true
	}
	return LooksLikeHTML(body)
}
