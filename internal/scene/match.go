package scene

import (
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// matcher picks the object name closest to a target id the model produced,
// for when it writes "cube one" or "the blue cube" instead of "Cube1".
//
// Names whose Double Metaphone codes overlap with the query are preferred
// and accepted from the phonetic threshold upward. Otherwise plain
// Jaro-Winkler similarity must reach the fuzzy threshold.
type matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

func newMatcher(fuzzy float64) *matcher {
	if fuzzy <= 0 || fuzzy > 1 {
		fuzzy = defaultFuzzyThreshold
	}
	phonetic := defaultPhoneticThreshold
	if phonetic > fuzzy {
		phonetic = fuzzy
	}
	return &matcher{phoneticThreshold: phonetic, fuzzyThreshold: fuzzy}
}

// match returns the best candidate for query, or false when none clears its
// threshold.
func (m *matcher) match(query string, candidates []string) (string, float64, bool) {
	q := normalise(query)
	if q == "" || len(candidates) == 0 {
		return "", 0, false
	}
	qTokens := tokens(q)
	qCodes := codesForTokens(qTokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, c := range candidates {
		cn := normalise(c)
		if cn == "" {
			continue
		}
		cTokens := tokens(cn)
		if !numbersAgree(qTokens, cTokens) {
			continue
		}
		score := bestJWScore(qTokens, cTokens, q, cn)
		phonetic := codesOverlap(qCodes, codesForTokens(cTokens))

		switch {
		case phonetic && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = c, score, true
			}
		case !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = c, score
		}
	}
	return best, bestScore, best != ""
}

// normalise lowercases s and turns separators into spaces so "Cube_1",
// "cube-1" and "cube 1" compare equal.
func normalise(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(s)
	s = strings.TrimPrefix(s, "the ")
	return strings.Join(strings.Fields(s), " ")
}

// tokens splits s into words and additionally separates trailing digits, so
// "cube1" yields "cube" and "1".
func tokens(s string) []string {
	var out []string
	for _, f := range strings.Fields(s) {
		i := len(f)
		for i > 0 && f[i-1] >= '0' && f[i-1] <= '9' {
			i--
		}
		if i > 0 && i < len(f) {
			out = append(out, f[:i], f[i:])
			continue
		}
		out = append(out, f)
	}
	return out
}

// numbersAgree reports whether both token lists carry the same numbers.
// Numbered objects are usually siblings ("Cube1", "Cube2") whose names are
// otherwise near identical.
func numbersAgree(a, b []string) bool {
	return slices.Equal(numbers(a), numbers(b))
}

func numbers(toks []string) []string {
	var out []string
	for _, t := range toks {
		if t != "" && strings.Trim(t, "0123456789") == "" {
			out = append(out, strings.TrimLeft(t, "0"))
		}
	}
	return out
}

func codesForTokens(toks []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(toks)*2)
	for _, t := range toks {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore compares the full strings, the space-stripped strings and the
// best token pair, and returns the highest Jaro-Winkler score.
func bestJWScore(qTokens, cTokens []string, q, c string) float64 {
	score := matchr.JaroWinkler(q, c, false)

	if s := matchr.JaroWinkler(strings.Join(qTokens, ""), strings.Join(cTokens, ""), false); s > score {
		score = s
	}

	// Token pairs only count when both sides are single words; otherwise
	// "cube 1" would match "cube 2" through the shared "cube".
	if len(qTokens) == 1 && len(cTokens) == 1 {
		if s := matchr.JaroWinkler(qTokens[0], cTokens[0], false); s > score {
			score = s
		}
	}
	return score
}
