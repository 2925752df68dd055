package lang

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var tagPool = []string{"uk", "en", "ru", "de", "pl", "en-GB", "uk_UA", "be"}

func tagsFrom(idx []int) []string {
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, tagPool[i%len(tagPool)])
	}
	return out
}

func genTagIndexes() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, len(tagPool)-1))
}

// TestReconcile_Idempotent verifies a reconciled list needs no further change.
func TestReconcile_Idempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("reconcile(reconcile(x)) reports no change", prop.ForAll(
		func(cur, more, less, sup []int) bool {
			p := Preference{MoreLanguages: tagsFrom(more), LessLanguages: tagsFrom(less)}
			supported := tagsFrom(sup)

			next, _ := Reconcile(tagsFrom(cur), p, supported)
			again, changed := Reconcile(next, p, supported)
			return !changed && SameSet(next, again)
		},
		genTagIndexes(),
		genTagIndexes(),
		genTagIndexes(),
		genTagIndexes(),
	))

	properties.TestingRun(t)
}

// TestReconcile_WantedPresent verifies every supported wanted language ends up in the result.
func TestReconcile_WantedPresent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("supported more languages are present after reconcile", prop.ForAll(
		func(cur, more, sup []int) bool {
			p := Preference{MoreLanguages: tagsFrom(more)}
			supported := tagsFrom(sup)

			next, _ := Reconcile(tagsFrom(cur), p, supported)
			for _, w := range SupportedWanted(p, supported) {
				if !Contains(next, w) {
					return false
				}
			}
			return true
		},
		genTagIndexes(),
		genTagIndexes(),
		genTagIndexes(),
	))

	properties.TestingRun(t)
}

// TestReconcile_LessRemoved verifies less-wanted languages that are not also wanted disappear.
func TestReconcile_LessRemoved(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("less languages are dropped unless also wanted", prop.ForAll(
		func(cur, more, less, sup []int) bool {
			p := Preference{MoreLanguages: tagsFrom(more), LessLanguages: tagsFrom(less)}
			supported := tagsFrom(sup)

			next, _ := Reconcile(tagsFrom(cur), p, supported)
			wanted := SupportedWanted(p, supported)
			for _, v := range next {
				if Contains(p.LessLanguages, v) && !Contains(wanted, v) {
					return false
				}
			}
			return true
		},
		genTagIndexes(),
		genTagIndexes(),
		genTagIndexes(),
		genTagIndexes(),
	))

	properties.TestingRun(t)
}
