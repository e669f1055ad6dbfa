package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeTitle lowercases, strips diacritics and punctuation, collapses
// whitespace and applies light suffix stemming so "Flooding in Jakarta" and
// "Floods in Jakarta" both become "flood in jakarta".
func NormalizeTitle(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, f := range fields {
		fields[i] = stem(f)
	}
	return strings.Join(fields, " ")
}

func stem(token string) string {
	if utf8.RuneCountInString(token) <= 4 {
		return token
	}
	for _, suffix := range []string{"ing", "ed", "es", "s"} {
		if strings.HasSuffix(token, suffix) && utf8.RuneCountInString(token)-len(suffix) >= 4 {
			return strings.TrimSuffix(token, suffix)
		}
	}
	return token
}

// ContainsPhrase reports whether needle appears in haystack on word
// boundaries. Both inputs are expected to be NormalizeTitle output.
func ContainsPhrase(haystack, needle string) bool {
	if needle == "" || haystack == "" {
		return false
	}
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
