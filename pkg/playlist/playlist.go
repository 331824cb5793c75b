package playlist

import (
	"regexp"
	"strings"
)

// LineKind classifies a single manifest line.
type LineKind int

const (
	// Directive is a line starting with "#".
	Directive LineKind = iota
	// URI is a non-empty, non-directive line naming a segment or
	// sub-playlist.
	URI
	// Blank is an empty line.
	Blank
)

// Line is one parsed manifest line.
type Line struct {
	Kind LineKind
	Text string
}

const keyTag = "#EXT-X-KEY:"

var keyURIAttr = regexp.MustCompile(`URI="([^"]*)"`)

// Parse splits a manifest into typed lines. HLS manifests are strictly
// line-oriented, so no deeper structure is needed for rewriting.
func Parse(manifest string) []Line {
	raw := strings.Split(manifest, "\n")
	lines := make([]Line, len(raw))

	for i, text := range raw {
		switch {
		case strings.TrimSpace(text) == "":
			lines[i] = Line{Kind: Blank, Text: text}
		case strings.HasPrefix(text, "#"):
			lines[i] = Line{Kind: Directive, Text: text}
		default:
			lines[i] = Line{Kind: URI, Text: text}
		}
	}

	return lines
}

// KeyURI returns the URI attribute of the first #EXT-X-KEY directive.
func KeyURI(manifest string) (string, bool) {
	for _, line := range Parse(manifest) {
		if line.Kind != Directive || !strings.HasPrefix(line.Text, keyTag) {
			continue
		}
		if m := keyURIAttr.FindStringSubmatch(line.Text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// Rewriter rewrites a manifest so every URI it references flows back
// through the proxy.
type Rewriter struct {
	// Prefix is the proxy path for the token, e.g. "/video/{token}".
	Prefix string
	// KeyName is the synthetic filename key requests are routed to.
	KeyName string
	// BlockedMarkers lists substrings whose lines are dropped entirely
	// (origin-injected ad or watermark segments).
	BlockedMarkers []string
}

// Rewrite applies the rewrite rules in order: blocked lines are removed
// (not blanked), #EXT-X-KEY URIs are pointed at the key proxy, other
// directives and blanks pass through, and remaining URI lines are
// prefixed with the proxy path. The key rewrite runs before the generic
// URI rewrite so key URIs are never rewritten twice.
func (r Rewriter) Rewrite(manifest string) string {
	out := make([]string, 0, strings.Count(manifest, "\n")+1)

	for _, line := range Parse(manifest) {
		if r.blocked(line.Text) {
			continue
		}

		switch {
		case line.Kind == Directive && strings.HasPrefix(line.Text, keyTag):
			out = append(out, keyURIAttr.ReplaceAllString(line.Text, `URI="`+r.Prefix+"/"+r.KeyName+`"`))
		case line.Kind == URI:
			out = append(out, r.Prefix+"/"+line.Text)
		default:
			out = append(out, line.Text)
		}
	}

	return strings.Join(out, "\n")
}

func (r Rewriter) blocked(text string) bool {
	if text == "" {
		return false
	}
	for _, marker := range r.BlockedMarkers {
		if marker != "" && strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
