package langdetect

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// runePool mixes shared Cyrillic, exclusive letters, Latin and separators.
var runePool = []rune("абвгдежзиклмнопрстуфхцчшщьюяАБВіїєґІЇЄҐёъыэЁЪЫЭabcxyz ,.!?()")

func textFrom(idx []int) string {
	var b strings.Builder
	for _, i := range idx {
		b.WriteRune(runePool[i%len(runePool)])
	}
	return b.String()
}

func genText() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, len(runePool)-1))
}

// TestIsRussian_UkrainianLetterVeto verifies a Ukrainian-exclusive letter always vetoes Russian.
func TestIsRussian_UkrainianLetterVeto(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("text with і/ї/є/ґ is never Russian", prop.ForAll(
		func(idx []int, pick int) bool {
			marker := []string{"і", "ї", "є", "ґ", "І", "Ї", "Є", "Ґ"}[pick]
			return !IsRussian(textFrom(idx) + marker)
		},
		genText(),
		gen.IntRange(0, 7),
	))

	properties.TestingRun(t)
}

// TestClassifier_Exclusive verifies no text is both Ukrainian and Russian.
func TestClassifier_Exclusive(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("IsUkrainian and IsRussian never both hold", prop.ForAll(
		func(idx []int) bool {
			text := textFrom(idx)
			return !(IsUkrainian(text) && IsRussian(text))
		},
		genText(),
	))

	properties.TestingRun(t)
}

// TestDetect_AgreesWithHeuristic verifies mostly Cyrillic text is classified by the heuristic alone.
func TestDetect_AgreesWithHeuristic(t *testing.T) {
	properties := gopter.NewProperties(nil)
	d := New(&fakeGeneric{answer: "xx"})

	properties.Property("Detect never returns the generic answer for Cyrillic-only text", prop.ForAll(
		func(idx []int) bool {
			var b strings.Builder
			for _, i := range idx {
				b.WriteRune(runePool[i%27])
			}
			text := b.String()
			if strings.TrimSpace(text) == "" {
				return true
			}
			return d.Detect(text) == DetectUkrainianOrRussian(text)
		},
		genText(),
	))

	properties.TestingRun(t)
}
