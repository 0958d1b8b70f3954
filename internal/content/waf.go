package content

import (
	"regexp"
	"strings"
)

// wafScanLimit bounds how much of a body is searched for markers.
const wafScanLimit = 200000

// minNavigationAnchors is the anchor count at which a page carrying
// integration markers is considered real content.
const minNavigationAnchors = 5

var (
	hardBlockMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Request\s+blocked`),
		regexp.MustCompile(`(?i)You\s+have\s+been\s+blocked`),
		regexp.MustCompile(`(?i)The\s+requested\s+URL\s+was\s+rejected`),
	}

	// Legitimate pages often load these too, so they are only a signal.
	integrationMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)edge\.sdk\.awswaf\.com`),
		regexp.MustCompile(`(?i)awsWafCookieDomainList`),
		regexp.MustCompile(`(?i)challenge\.js`),
	}

	anchorPattern = regexp.MustCompile(`(?i)<\s*a\b`)
)

// IsWAFChallenge reports whether an HTML-ish body is a bot protection
// interstitial rather than real content.
//
// Hard block messages always count. When allowIntegrationHeuristic is set, a
// page that loads the protection script and has fewer than five anchors is
// also treated as a challenge. Offline snapshots supplied by the user are
// checked with the heuristic disabled.
func IsWAFChallenge(body []byte, contentType string, allowIntegrationHeuristic bool) bool {
	if !IsHTMLish(contentType, body) {
		return false
	}

	scan := body
	if len(scan) > wafScanLimit {
		scan = scan[:wafScanLimit]
	}
	text := strings.ToValidUTF8(string(scan), "")

	for _, re := range hardBlockMarkers {
		if re.MatchString(text) {
			return true
		}
	}

	if !allowIntegrationHeuristic {
		return false
	}

	integrated := false
	for _, re := range integrationMarkers {
		if re.MatchString(text) {
			integrated = true
			break
		}
	}
	if !integrated {
		return false
	}

	return len(anchorPattern.FindAllStringIndex(text, minNavigationAnchors)) < minNavigationAnchors
}
