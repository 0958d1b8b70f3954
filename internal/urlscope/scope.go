package urlscope

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Scope decides whether a URL is eligible for crawling.
type Scope struct {
	// AllowHostSuffixes lists the hosts (and their subdomains) that may be fetched.
	AllowHostSuffixes []string

	// FollowOffsite disables host checks entirely.
	FollowOffsite bool

	// IgnorePatterns are glob patterns matched against the URL path of
	// discovered links. Matching links are not enqueued.
	IgnorePatterns []string

	// FollowPatterns, when set, restricts discovered links to paths that
	// match at least one pattern.
	FollowPatterns []string
}

// Allowed reports whether raw may be fetched. With FollowOffsite every URL
// passes; otherwise the host must equal an allowed suffix or be a subdomain
// of one, and URLs without a host are rejected.
func (s Scope) Allowed(raw string) bool {
	if s.FollowOffsite {
		return true
	}
	host := Hostname(raw)
	if host == "" {
		return false
	}
	for _, suffix := range s.AllowHostSuffixes {
		suffix = strings.TrimLeft(strings.ToLower(strings.TrimSpace(suffix)), ".")
		if suffix == "" {
			continue
		}
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// PathAllowed applies the ignore and follow patterns to the URL path.
//
// Logic:
//  1. If the path matches any ignore pattern, it is skipped
//  2. If follow patterns are set and none match, it is skipped
//  3. Otherwise it is allowed
func (s Scope) PathAllowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := u.Path
	if p == "" {
		p = "/"
	}

	for _, pattern := range s.IgnorePatterns {
		if matchPattern(pattern, p) {
			return false
		}
	}
	if len(s.FollowPatterns) == 0 {
		return true
	}
	for _, pattern := range s.FollowPatterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard" and "/admin"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1"
func matchPattern(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(p, prefix+"/") || p == prefix {
			return true
		}
	}
	if strings.HasPrefix(pattern, "*.") && strings.HasSuffix(p, strings.TrimPrefix(pattern, "*")) {
		return true
	}
	if matched, err := filepath.Match(pattern, p); err == nil && matched {
		return true
	}
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(p)); err == nil && matched {
			return true
		}
	}
	return false
}
