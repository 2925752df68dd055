package langdetect

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
)

// cyrillicShare is the share of Cyrillic code points above which text is
// classified by the Ukrainian/Russian heuristic alone.
const cyrillicShare = 0.3

// Generic detects languages the heuristic does not cover.
type Generic interface {
	// DetectLanguage returns an ISO 639-1 code or "" when unsure.
	DetectLanguage(text string) string
}

// Detector combines the Ukrainian/Russian heuristic with a generic detector.
type Detector struct {
	generic Generic
}

// New returns a Detector delegating non-Cyrillic text to generic. A nil
// generic makes such text undetermined.
func New(generic Generic) *Detector {
	return &Detector{generic: generic}
}

// Default returns a Detector backed by whatlanggo.
func Default() *Detector {
	return New(Whatlang{})
}

// Detect returns the language of text. Mostly Cyrillic text yields
// Ukrainian, Russian or Undetermined and is never handed to the generic
// detector.
func (d *Detector) Detect(text string) string {
	trimmed := strings.TrimSpace(text)
	total := utf8.RuneCountInString(trimmed)
	if total == 0 {
		return Undetermined
	}

	cyr := 0
	for _, r := range text {
		if r >= 0x0400 && r <= 0x04FF {
			cyr++
		}
	}
	if float64(cyr)/float64(total) > cyrillicShare {
		return DetectUkrainianOrRussian(text)
	}

	if d == nil || d.generic == nil {
		return Undetermined
	}
	return d.generic.DetectLanguage(trimmed)
}

// Whatlang is a Generic backed by github.com/abadojack/whatlanggo. Results
// the library marks unreliable fall back to a Latin diacritics hint.
type Whatlang struct{}

func (Whatlang) DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if info.IsReliable() {
		if code := info.Lang.Iso6391(); code != "" {
			return code
		}
	}
	return latinHint(text)
}

// latinHint guesses among a few Latin-script languages from their
// diacritics. It returns Undetermined unless one language clearly dominates.
func latinHint(s string) string {
	var letters, german, french, spanish int
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
		}
		if r < 0x00C0 || r > 0x017F {
			continue
		}
		switch r {
		case 'ä', 'ö', 'ü', 'Ä', 'Ö', 'Ü', 'ß':
			german++
		case 'è', 'ê', 'à', 'ù', 'ç', 'È', 'À', 'Ç':
			french++
		case 'á', 'í', 'ó', 'ú', 'ñ', 'Á', 'Í', 'Ó', 'Ú', 'Ñ':
			spanish++
		}
	}
	if letters == 0 {
		return ""
	}
	switch {
	case german > french && german > spanish:
		return "de"
	case french > german && french > spanish:
		return "fr"
	case spanish > german && spanish > french:
		return "es"
	}
	// Plain ASCII says nothing about which Latin language it is.
	return Undetermined
}
