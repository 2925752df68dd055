// Package langdetect classifies short text as Ukrainian or Russian and
// delegates everything that is not mostly Cyrillic to a generic detector.
//
// The Ukrainian/Russian heuristic never labels text carrying a
// Ukrainian-exclusive letter as Russian.
package langdetect

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Language codes returned by the classifier. Undetermined is the empty string.
const (
	Ukrainian    = "uk"
	Russian      = "ru"
	Undetermined = ""
)

const (
	ukLetters   = "іїєґІЇЄҐ"
	ruLetters   = "ёъыэЁЪЫЭ"
	stopLetters = "ўáσ∂αℓƒทãњљјЎÁΣΑƑÃЊЉЈ"
)

var (
	copyrightRE = regexp.MustCompile(`(?i)\([\s\x{00A0}]*с[\s\x{00A0}]*\)`)

	ukWordSet = wordSet(ukWords)
	ruWordSet = wordSet(ruWords)

	ukSuffixes = []string{"ння", "ття"}
	ruPrefixes = []string{"и"}
	ruSuffixes = []string{"ии", "ее"}
)

func wordSet(words []string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[foldCase(w)] = struct{}{}
	}
	return s
}

// foldCase builds a fresh folder per call since a Caser keeps state.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

// clean composes the text and blanks out the Cyrillic copyright idiom "(с)"
// so its letter is not taken for the Russian word "с".
func clean(text string) string {
	return copyrightRE.ReplaceAllString(norm.NFC.String(text), " ")
}

func isTokenSep(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(",.:;!?", r)
}

func isWordSep(r rune) bool {
	if (r >= '\u200b' && r <= '\u200d') || r == '\ufeff' {
		return true
	}
	return unicode.IsSpace(r) || strings.ContainsRune(",.:;!?()[]{}«»\"'\u201c\u201d\u201e\u2018\u2019", r)
}

func hasWord(text string, set map[string]struct{}) bool {
	for _, tok := range strings.FieldsFunc(text, isTokenSep) {
		if _, ok := set[foldCase(tok)]; ok {
			return true
		}
	}
	return false
}

func hasPattern(text string, prefixes, suffixes []string) bool {
	for _, w := range strings.FieldsFunc(text, isWordSep) {
		w = strings.ToLower(w)
		for _, p := range prefixes {
			if strings.HasPrefix(w, p) {
				return true
			}
		}
		for _, s := range suffixes {
			if strings.HasSuffix(w, s) {
				return true
			}
		}
	}
	return false
}

// IsUkrainian reports whether text is confidently Ukrainian.
func IsUkrainian(text string) bool {
	if text == "" {
		return false
	}
	t := clean(text)
	switch {
	case strings.ContainsAny(t, stopLetters):
		return false
	case strings.ContainsAny(t, ruLetters):
		return false
	case strings.ContainsAny(t, ukLetters):
		return true
	case hasWord(t, ukWordSet):
		return true
	}
	return hasPattern(t, nil, ukSuffixes)
}

// IsRussian reports whether text is confidently Russian. Any
// Ukrainian-exclusive letter vetoes the answer.
func IsRussian(text string) bool {
	if text == "" {
		return false
	}
	t := clean(text)
	switch {
	case strings.ContainsAny(t, ukLetters):
		return false
	case strings.ContainsAny(t, stopLetters):
		return false
	case strings.ContainsAny(t, ruLetters):
		return true
	case hasWord(t, ruWordSet):
		return true
	}
	return hasPattern(t, ruPrefixes, ruSuffixes)
}

// DetectUkrainianOrRussian returns Ukrainian, Russian or Undetermined.
// Ukrainian is checked first.
func DetectUkrainianOrRussian(text string) string {
	if IsUkrainian(text) {
		return Ukrainian
	}
	if IsRussian(text) {
		return Russian
	}
	return Undetermined
}
