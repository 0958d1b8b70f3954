package urlscope

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

// trackingQuery is the only query string removed by Normalize.
// It must match the whole query; partial matches are left alone.
const trackingQuery = "agt=index"

// assetExtensions are path extensions that mark a URL as a static asset.
var assetExtensions = map[string]bool{
	".css": true, ".js": true, ".mjs": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".pdf": true, ".zip": true, ".gz": true, ".tgz": true,
}

// Normalize returns the canonical form of raw: scheme and authority
// lowercased, fragment removed and the tracking query dropped. Path and any
// other query are kept byte for byte. Normalize is idempotent.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	raw, _, _ = strings.Cut(raw, "#")
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw
	}

	rest := raw[len(u.Scheme)+1:]
	var b strings.Builder
	b.WriteString(strings.ToLower(u.Scheme))
	b.WriteByte(':')
	if authority, ok := strings.CutPrefix(rest, "//"); ok {
		end := strings.IndexAny(authority, "/?")
		if end < 0 {
			end = len(authority)
		}
		b.WriteString("//")
		b.WriteString(strings.ToLower(authority[:end]))
		rest = authority[end:]
	}

	p, query, hasQuery := strings.Cut(rest, "?")
	b.WriteString(p)
	if hasQuery && query != "" && !strings.EqualFold(strings.TrimSpace(query), trackingQuery) {
		b.WriteByte('?')
		b.WriteString(query)
	}
	return b.String()
}

// Hostname returns the lowercased host of raw without port, or "" when raw
// cannot be parsed.
func Hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Host returns the lowercased host of raw including any port.
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// IsAssetIntent reports whether the URL path ends in a static-asset extension.
// Such URLs are stored as opaque bytes and never followed as pages.
func IsAssetIntent(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return assetExtensions[strings.ToLower(path.Ext(u.Path))]
}

// Key returns the 12 hex character sha256 prefix of a URL.
// It names cache entries and page stems.
func Key(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:])[:12]
}
