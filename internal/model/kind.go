package model

import "fmt"

// Kind is the content classification of a fetched body.
// Every renderer switch over Kind must handle all of the values below.
type Kind int

const (
	// KindBytes is opaque binary content (stylesheets, scripts, images, fonts).
	// It is the zero value so that unknown content is never rendered as a page.
	KindBytes Kind = iota
	// KindHTML is an HTML or XHTML document.
	KindHTML
	// KindJSON is a JSON document.
	KindJSON
	// KindXML is an XML document.
	KindXML
	// KindPDF is a PDF document, detected by its magic bytes.
	KindPDF
	// KindText is plain text.
	KindText
	// KindZIP is a ZIP archive, detected by its magic bytes.
	KindZIP
)

// Kinds lists every Kind in declaration order.
var Kinds = []Kind{KindBytes, KindHTML, KindJSON, KindXML, KindPDF, KindText, KindZIP}

// String returns the lowercase name used in directory names and manifests.
func (k Kind) String() string {
	switch k {
	case KindHTML:
		return "html"
	case KindJSON:
		return "json"
	case KindXML:
		return "xml"
	case KindPDF:
		return "pdf"
	case KindText:
		return "text"
	case KindZIP:
		return "zip"
	case KindBytes:
		return "bytes"
	default:
		return "bytes"
	}
}

// Ext returns the file extension used when storing raw bodies of this kind.
func (k Kind) Ext() string {
	switch k {
	case KindHTML:
		return ".html"
	case KindJSON:
		return ".json"
	case KindXML:
		return ".xml"
	case KindPDF:
		return ".pdf"
	case KindText:
		return ".txt"
	case KindZIP:
		return ".zip"
	case KindBytes:
		return ".bin"
	default:
		return ".bin"
	}
}

// Renderable reports whether bodies of this kind get sidecar variants.
func (k Kind) Renderable() bool {
	switch k {
	case KindHTML, KindJSON, KindXML, KindPDF, KindText:
		return true
	case KindZIP, KindBytes:
		return false
	default:
		return false
	}
}

// ParseKind converts a kind name back to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return KindBytes, fmt.Errorf("unknown content kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
