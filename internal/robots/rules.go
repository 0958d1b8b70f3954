package robots

import (
	"bufio"
	"net/url"
	"sort"
	"strings"
)

// Rules is the parsed `User-agent: *` portion of a robots.txt file.
// A nil *Rules allows everything.
type Rules struct {
	allow    []string
	disallow []string
}

// Parse extracts the Allow and Disallow prefixes that apply to every agent.
func Parse(text string) *Rules {
	r := &Rules{}
	active := false

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		field = strings.ToLower(strings.TrimSpace(field))
		value = strings.TrimSpace(value)

		switch field {
		case "user-agent":
			active = value == "*"
		case "allow":
			if active && value != "" {
				r.allow = append(r.allow, value)
			}
		case "disallow":
			if active && value != "" {
				r.disallow = append(r.disallow, value)
			}
		}
	}

	byLengthDesc(r.allow)
	byLengthDesc(r.disallow)
	return r
}

func byLengthDesc(prefixes []string) {
	sort.SliceStable(prefixes, func(i, j int) bool {
		return len(prefixes[i]) > len(prefixes[j])
	})
}

// Allowed reports whether rawURL may be fetched. Allow prefixes are checked
// before Disallow prefixes, so `Allow: /apis/` opens a hole in `Disallow: /`.
// Prefixes match the path as it appears in the URL, percent-escapes included.
func (r *Rules) Allowed(rawURL string) bool {
	if r == nil {
		return true
	}
	p := "/"
	if u, err := url.Parse(rawURL); err == nil && u.EscapedPath() != "" {
		p = u.EscapedPath()
	}
	for _, prefix := range r.allow {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	for _, prefix := range r.disallow {
		if strings.HasPrefix(p, prefix) {
			return false
		}
	}
	return true
}

// Empty reports whether the rules contain no directives.
func (r *Rules) Empty() bool {
	return r == nil || (len(r.allow) == 0 && len(r.disallow) == 0)
}
