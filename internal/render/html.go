package render

import (
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// mainContentSelectors are tried in order to find the article body of a
// documentation page.
var mainContentSelectors = []string{
	"main",
	"article",
	"#topic-content",
	"#topic",
	"#rh-topic",
	"div[role='main']",
	"div[role='document']",
}

// droppedElements never contribute to rendered text.
const droppedElements = "script, style, noscript"

// ExtractTitle returns the text of the first h1, else the document title,
// else "Untitled".
func ExtractTitle(htmlText string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return "Untitled"
	}
	if t := collapseSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	if t := collapseSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return "Untitled"
}

// HTMLToMarkdown converts the main content of a page to Markdown with ATX
// headings, prefixed by a "Source:" line.
func HTMLToMarkdown(htmlText, sourceURL string) string {
	prefix := "Source: " + sourceURL + "\n\n"

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return prefix + HTMLToText(htmlText)
	}
	doc.Find(droppedElements).Remove()

	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle:   "atx",
		CodeBlockStyle: "fenced",
	})
	markdown := strings.TrimSpace(conv.Convert(pickMainContent(doc)))
	return prefix + markdown + "\n"
}

// pickMainContent returns the first non-empty match of the known content
// selectors, else the div with the most text, else the body.
func pickMainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range mainContentSelectors {
		node := doc.Find(sel).First()
		if node.Length() > 0 && strings.TrimSpace(node.Text()) != "" {
			return node
		}
	}

	var best *goquery.Selection
	bestLen := 0
	doc.Find("div").Each(func(_ int, s *goquery.Selection) {
		if n := utf8.RuneCountInString(collapseSpace(s.Text())); n > bestLen {
			best = s
			bestLen = n
		}
	})
	if best != nil {
		return best
	}

	if body := doc.Find("body").First(); body.Length() > 0 {
		return body
	}
	return doc.Selection
}

// HTMLToText returns the visible text of a page, one text node per line,
// lines trimmed and runs of blank lines collapsed to one.
func HTMLToText(htmlText string) string {
	z := html.NewTokenizer(strings.NewReader(htmlText))

	var parts []string
	skipDepth := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return joinTextLines(parts)
		case html.StartTagToken:
			if isDroppedTag(z) {
				skipDepth++
			}
		case html.EndTagToken:
			if isDroppedTag(z) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				parts = append(parts, string(z.Text()))
			}
		}
	}
}

func isDroppedTag(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style", "noscript":
		return true
	default:
		return false
	}
}

func joinTextLines(parts []string) string {
	lines := strings.Split(strings.Join(parts, "\n"), "\n")
	out := make([]string, 0, len(lines))
	blankRun := 0
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			blankRun++
			if blankRun <= 1 {
				out = append(out, "")
			}
			continue
		}
		blankRun = 0
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n")) + "\n"
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
