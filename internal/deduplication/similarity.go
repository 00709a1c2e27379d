package deduplication

import (
	"regexp"
	"strings"
)

var (
	synonyms = []struct {
		pattern *regexp.Regexp
		replace string
	}{
		{regexp.MustCompile(`\bcharges\b`), "charge"},
		{regexp.MustCompile(`\btwice\b`), "double"},
		{regexp.MustCompile(`\bcustomers\b`), "customer"},
	}
	nonWordRegex = regexp.MustCompile(`\W+`)
)

// Normalize lower-cases text, folds synonyms and collapses every run of
// non-word characters into a single space.
func Normalize(text string) string {
	text = strings.ToLower(text)
	for _, s := range synonyms {
		text = s.pattern.ReplaceAllString(text, s.replace)
	}
	text = nonWordRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(Normalize(text)) {
		set[w] = struct{}{}
	}
	return set
}

// KeywordOverlap scores two texts by |common words| / min(|A|, |B|).
// Returns 0 when either text has no words.
func KeywordOverlap(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	minLen := min(len(wa), len(wb))
	if minLen == 0 {
		return 0
	}
	common := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			common++
		}
	}
	return float64(common) / float64(minLen)
}
