package crawler

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/docmirror/internal/urlscope"
)

// Parser extracts crawlable links from an HTML page.
type Parser struct {
	// baseURL is the URL of the page being parsed, used for resolving relative URLs.
	// A <base href> element in the document replaces it while parsing.
	baseURL *url.URL
}

// ParseResult contains the links extracted from an HTML page.
type ParseResult struct {
	// Links contains normalized absolute URLs in document order, deduplicated.
	Links []string
}

// NewParser creates a new HTML parser with the given page URL.
// The page URL is used to resolve relative links.
func NewParser(pageURL string) (*Parser, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses HTML content and extracts its anchor links.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	if base := findBase(doc); base != "" {
		if u, err := url.Parse(strings.TrimSpace(base)); err == nil {
			p.baseURL = p.baseURL.ResolveReference(u)
		}
	}

	result := &ParseResult{Links: make([]string, 0)}
	seen := make(map[string]struct{})

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := getAttr(n, "href"); href != "" {
				if resolved := p.resolveURL(href); resolved != "" {
					if _, dup := seen[resolved]; !dup {
						seen[resolved] = struct{}{}
						result.Links = append(result.Links, resolved)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return result, nil
}

// ExtractLinks returns the normalized links of htmlText resolved against
// pageURL. Unparseable input yields no links.
func ExtractLinks(htmlText, pageURL string) []string {
	p, err := NewParser(pageURL)
	if err != nil {
		return nil
	}
	res, err := p.Parse(strings.NewReader(htmlText))
	if err != nil {
		return nil
	}
	return res.Links
}

// findBase returns the href of the first <base> element, if any.
func findBase(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "base" {
		if href := getAttr(n, "href"); href != "" {
			return href
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href := findBase(c); href != "" {
			return href
		}
	}
	return ""
}

// skippedSchemes are link schemes that never lead to a document.
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// resolveURL resolves href against the base URL and normalizes it.
// Fragment-only links and non-document schemes resolve to "".
func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := p.baseURL.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return urlscope.Normalize(resolved.String())
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
