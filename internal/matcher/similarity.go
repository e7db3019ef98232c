package matcher

import (
	"sort"
	"strings"
)

// Similarity weights. Token set handles reordered titles, partial
// handles one title embedded in a longer one, keywords anchor on the
// informative terms.
const (
	tokenSetWeight = 0.40
	partialWeight  = 0.35
	keywordWeight  = 0.25
)

// Similarity scores how likely two market titles describe the same
// event, in [0, 100]. Both titles are normalized first; if either
// normalizes to empty the score is 0. Similarity is symmetric and a
// title always scores 100 against itself.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	score := tokenSetWeight*tokenSetRatio(na, nb) +
		partialWeight*partialRatio(na, nb) +
		keywordWeight*keywordOverlap(a, b)
	if score > 100 {
		score = 100
	}
	return score
}

// keywordOverlap is the share of keywords common to both titles,
// relative to the larger keyword set.
func keywordOverlap(a, b string) float64 {
	ka, kb := ExtractKeywords(a), ExtractKeywords(b)
	if len(ka) == 0 || len(kb) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(ka))
	for _, k := range ka {
		set[k] = struct{}{}
	}
	common := 0
	for _, k := range kb {
		if _, ok := set[k]; ok {
			common++
		}
	}
	larger := len(ka)
	if len(kb) > larger {
		larger = len(kb)
	}
	return float64(common) / float64(larger) * 100
}

// tokenSetRatio compares the sorted intersection of tokens against
// each full sorted token string, so word order and repeated words do
// not depress the score.
func tokenSetRatio(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)

	var inter, diffA, diffB []string
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter = append(inter, tok)
		} else {
			diffA = append(diffA, tok)
		}
	}
	for tok := range tb {
		if _, ok := ta[tok]; !ok {
			diffB = append(diffB, tok)
		}
	}
	sort.Strings(inter)
	sort.Strings(diffA)
	sort.Strings(diffB)

	sorted := strings.Join(inter, " ")
	combinedA := strings.TrimSpace(sorted + " " + strings.Join(diffA, " "))
	combinedB := strings.TrimSpace(sorted + " " + strings.Join(diffB, " "))

	best := levenshteinRatio(sorted, combinedA)
	if r := levenshteinRatio(sorted, combinedB); r > best {
		best = r
	}
	if r := levenshteinRatio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

// partialRatio slides the shorter string across the longer one and
// returns the best window score, so a short title embedded in a long
// one still matches well.
func partialRatio(a, b string) float64 {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) == 0 {
		return 0
	}
	if len(shorter) == len(longer) {
		return levenshteinRatio(shorter, longer)
	}

	var best float64
	for i := 0; i+len(shorter) <= len(longer); i++ {
		r := levenshteinRatio(shorter, longer[i:i+len(shorter)])
		if r > best {
			best = r
		}
		if best == 100 {
			break
		}
	}
	return best
}

// levenshteinRatio converts weighted edit distance into a [0, 100]
// similarity: (len(a)+len(b)-distance) over the combined length, with
// substitutions costing 2 and insertions/deletions 1. One extra
// character in a three-character string scores 80, not 60.
func levenshteinRatio(a, b string) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	dist := editDistance(a, b)
	r := float64(total-dist) / float64(total) * 100
	if r < 0 {
		r = 0
	}
	return r
}

// editDistance computes edit distance with a two-row table. A
// substitution costs 2, an insertion or deletion 1.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 0; i < len(a); i++ {
		cur[0] = i + 1
		for j := 0; j < len(b); j++ {
			cost := 2
			if a[i] == b[j] {
				cost = 0
			}
			min := prev[j] + cost
			if d := prev[j+1] + 1; d < min {
				min = d
			}
			if d := cur[j] + 1; d < min {
				min = d
			}
			cur[j+1] = min
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
