package urlscope

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxFilenameRunes caps the length of a filename component.
const maxFilenameRunes = 150

var (
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	whitespaceRun        = regexp.MustCompile(`\s+`)
)

// SafeFilenameComponent turns a page title into a string usable as part of
// a file name on every common file system.
func SafeFilenameComponent(title string) string {
	s := invalidFilenameChars.ReplaceAllString(title, "-")
	s = strings.Trim(s, ". ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return "page"
	}
	if utf8.RuneCountInString(s) > maxFilenameRunes {
		s = string([]rune(s)[:maxFilenameRunes])
	}
	return s
}

// Stem builds the file stem for the variants of u: the safe title, a double
// dash and the URL key, with spaces replaced by dashes.
func Stem(title, u string) string {
	return strings.ReplaceAll(SafeFilenameComponent(title)+"--"+Key(u), " ", "-")
}

// TitleFromURL returns the last non-empty path segment of raw, or "response".
func TitleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "response"
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return "response"
	}
	last := p[strings.LastIndex(p, "/")+1:]
	if last == "" {
		return "response"
	}
	return last
}
