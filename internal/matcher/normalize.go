package matcher

import (
	"regexp"
	"strings"
)

var (
	urlRe   = regexp.MustCompile(`https?://\S+`)
	punctRe = regexp.MustCompile(`[^\w\s-]`)
)

// stopWords are filler tokens that carry no signal when comparing
// market titles across venues.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "will": {}, "be": {}, "is": {},
	"are": {}, "by": {}, "on": {}, "in": {}, "at": {}, "to": {},
	"for": {}, "of": {},
}

// Normalize canonicalizes a market title for comparison: lowercase,
// URLs and punctuation stripped, stop words and single-character
// tokens removed, whitespace collapsed. Normalize is idempotent and
// returns "" for input with no surviving tokens.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = urlRe.ReplaceAllString(s, " ")
	s = punctRe.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, tok := range fields {
		if len(tok) <= 1 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// ExtractKeywords returns the distinct informative tokens of a title:
// normalized tokens that are purely numeric or longer than two
// characters. Order follows first appearance.
func ExtractKeywords(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range strings.Fields(Normalize(s)) {
		if !isNumeric(tok) && len(tok) <= 2 {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
