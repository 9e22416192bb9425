// File: internal/textmatch/textmatch.go

// Package textmatch normalizes UI text for robust comparisons. Case folding uses
// a fixed Turkish locale so results do not depend on the host environment.
package textmatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// orthographic maps letters that survive mark stripping to their ASCII base.
// Dotless ı has no decomposition, so NFD alone cannot fold it.
var orthographic = strings.NewReplacer(
	"ı", "i",
	"ş", "s",
	"ğ", "g",
	"ç", "c",
	"ö", "o",
	"ü", "u",
)

// Normalize trims, collapses whitespace runs (NBSP included), lower-cases with
// the Turkish locale, strips combining marks and applies the orthographic table.
func Normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	// Casers and transformers keep internal state, so they are built per call.
	s = cases.Lower(language.Turkish).String(s)
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err == nil {
		s = stripped
	}
	return orthographic.Replace(s)
}

// Equal compares two strings after normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Contains reports whether the normalized haystack contains the normalized needle.
func Contains(haystack, needle string) bool {
	return strings.Contains(Normalize(haystack), Normalize(needle))
}

// Like is the loose match used for person names and search results: equal, or
// either side contains the other. Two empty strings are alike; one empty side is not.
func Like(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return true
	}
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// ContainsAny reports whether the normalized haystack contains any of the needles.
func ContainsAny(haystack string, needles ...string) bool {
	h := Normalize(haystack)
	for _, n := range needles {
		if nn := Normalize(n); nn != "" && strings.Contains(h, nn) {
			return true
		}
	}
	return false
}
