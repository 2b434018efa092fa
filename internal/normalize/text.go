// Package normalize holds the pure text and date primitives the matcher
// scores with. Nothing here touches storage or the clock.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// minTokenLen is the shortest token that can count as a match. Shorter tokens
// ("de", "sa", "05") appear everywhere in bank descriptions.
const minTokenLen = 3

// foldDiacritics returns a fresh transformer; transformers are stateful and
// must not be shared between goroutines.
func foldDiacritics() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Text lower-cases s, strips diacritics, drops every character that is not a
// letter, digit or whitespace and collapses runs of whitespace.
func Text(s string) string {
	if s == "" {
		return ""
	}

	folded, _, err := transform.String(foldDiacritics(), strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}

// Tokens splits the normalized form of s on whitespace.
func Tokens(s string) []string {
	return strings.Fields(Text(s))
}

// TextSimilarity is the share of tokens of a that appear in b. A token of a
// counts when some token of b contains it or is contained by it. Tokens
// shorter than three characters on either side never match, so initials
// like "E" or "M" in a name do not hit every word. The result is in [0,1] and is not
// symmetric: callers pass the bank description as a.
func TextSimilarity(a, b string) float64 {
	tokensA := Tokens(a)
	tokensB := Tokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	matched := 0
	for _, ta := range tokensA {
		if len(ta) < minTokenLen {
			continue
		}
		for _, tb := range tokensB {
			if len(tb) < minTokenLen {
				continue
			}
			if strings.Contains(tb, ta) || strings.Contains(ta, tb) {
				matched++
				break
			}
		}
	}

	return float64(matched) / float64(max(len(tokensA), 1))
}

// Contains reports whether the normalized needle occurs in the normalized
// haystack. Empty needles never match.
func Contains(haystack, needle string) bool {
	n := Text(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Text(haystack), n)
}
