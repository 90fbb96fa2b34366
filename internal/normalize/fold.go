// Package normalize implements the string comparisons used by catalog search.
//
// All case-insensitive comparisons go through Fold, which applies NFKC
// normalization and full Unicode case folding. A decomposed "A" + U+0308
// therefore equals a precomposed "ä", and ligatures such as "ﬁ" equal "fi".
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MatchType is how a search value is compared with stored text.
type MatchType int

const (
	Exact MatchType = iota
	CaseInsensitive
	StartsWith
	Substring
	Wildcard
	Fuzzy
	FuzzySubstring
)

var matchTypeNames = [...]string{
	Exact:           "Exact",
	CaseInsensitive: "CaseInsensitive",
	StartsWith:      "StartsWith",
	Substring:       "Substring",
	Wildcard:        "Wildcard",
	Fuzzy:           "Fuzzy",
	FuzzySubstring:  "FuzzySubstring",
}

func (t MatchType) String() string {
	if t >= 0 && int(t) < len(matchTypeNames) {
		return matchTypeNames[t]
	}
	return "Unknown"
}

// ParseMatchType converts a name such as "substring" into a MatchType.
func ParseMatchType(s string) (MatchType, bool) {
	for i, name := range matchTypeNames {
		if strings.EqualFold(name, s) {
			return MatchType(i), true
		}
	}
	return Exact, false
}

// Fold returns the normalized, case folded form of s.
func Fold(s string) string {
	// cases.Caser is stateful, so a fresh one per call.
	folded := cases.Fold().String(norm.NFKC.String(s))
	return norm.NFKC.String(folded)
}

// FuzzyKey folds s and keeps only letters and digits.
func FuzzyKey(s string) string {
	folded := Fold(s)
	var sb strings.Builder
	sb.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Match reports whether value satisfies query under the given match type.
func Match(t MatchType, value, query string) bool {
	switch t {
	case Exact:
		return value == query
	case CaseInsensitive:
		return Fold(value) == Fold(query)
	case StartsWith:
		return strings.HasPrefix(Fold(value), Fold(query))
	case Substring:
		return strings.Contains(Fold(value), Fold(query))
	case Wildcard:
		return wildcardMatch(Fold(value), Fold(query))
	case Fuzzy:
		return FuzzyKey(value) == FuzzyKey(query)
	case FuzzySubstring:
		return strings.Contains(FuzzyKey(value), FuzzyKey(query))
	}
	return false
}

// wildcardMatch matches value against a pattern where '*' stands for any run
// of characters.
func wildcardMatch(value, pattern string) bool {
	segments := strings.Split(pattern, "*")
	if len(segments) == 1 {
		return value == pattern
	}

	first, last := segments[0], segments[len(segments)-1]
	if !strings.HasPrefix(value, first) {
		return false
	}
	value = value[len(first):]

	for _, seg := range segments[1 : len(segments)-1] {
		idx := strings.Index(value, seg)
		if idx < 0 {
			return false
		}
		value = value[idx+len(seg):]
	}
	return strings.HasSuffix(value, last)
}
