package extract

import (
	"regexp"
	"sort"
	"strings"
)

var tokenRE = regexp.MustCompile(`[a-z0-9]+`)

// TokenizeQuery lowercases the query and splits it into alphanumeric tokens,
// dropping single-character ones.
func TokenizeQuery(q string) []string {
	var out []string
	for _, t := range tokenRE.FindAllString(strings.ToLower(q), -1) {
		if len(t) > 1 {
			out = append(out, t)
		}
	}
	return out
}

// BuildPhrases returns the deduplicated trigrams and bigrams of the token
// list, longest first.
func BuildPhrases(tokens []string) []string {
	seen := map[string]bool{}
	var phrases []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			phrases = append(phrases, p)
		}
	}
	for i := 0; i+2 < len(tokens); i++ {
		add(tokens[i] + " " + tokens[i+1] + " " + tokens[i+2])
	}
	for i := 0; i+1 < len(tokens); i++ {
		add(tokens[i] + " " + tokens[i+1])
	}
	sort.SliceStable(phrases, func(i, j int) bool { return len(phrases[i]) > len(phrases[j]) })
	return phrases
}

// phrasePresent reports whether the phrase's words occur adjacently in the
// text, allowing whitespace or hyphens between them.
func phrasePresent(textLower, phrase string) bool {
	parts := strings.Fields(phrase)
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = regexp.QuoteMeta(p)
	}
	pat := `\b` + strings.Join(escaped, `[\s\-]+`) + `\b`
	re, err := regexp.Compile(pat)
	if err != nil {
		return false
	}
	return re.MatchString(textLower)
}

// tokenOverlap counts how many query tokens appear in the text.
func tokenOverlap(text string, tokens []string) int {
	low := strings.ToLower(text)
	n := 0
	for _, t := range tokens {
		if strings.Contains(low, t) {
			n++
		}
	}
	return n
}

func containsAll(textLower string, tokens []string) bool {
	for _, t := range tokens {
		if !strings.Contains(textLower, t) {
			return false
		}
	}
	return true
}
