package lang

// SupportedWanted returns the user's more-wanted languages that supported
// holds, in user priority order.
func SupportedWanted(p Preference, supported []string) []string {
	var out []string
	for _, m := range p.MoreLanguages {
		if Contains(supported, m) && !Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}

// Reconcile applies p to the ordered language list a site reports.
//
// Entries whose primary subtag is less-wanted are removed, then every
// supported more-wanted language not already present is prepended in
// priority order. changed is false when the result holds the same languages
// as current, ignoring order.
func Reconcile(current []string, p Preference, supported []string) (next []string, changed bool) {
	kept := Without(current, p.LessLanguages)

	var prepend []string
	for _, m := range SupportedWanted(p, supported) {
		if !Contains(kept, m) {
			prepend = append(prepend, m)
		}
	}

	next = make([]string, 0, len(prepend)+len(kept))
	next = append(next, prepend...)
	next = append(next, kept...)
	return next, !SameSet(next, current)
}

// UITarget decides the change for sites that expose a single UI language.
//
// Nothing changes when the user wants none of the supported languages or
// when the most wanted one is already the UI language. Otherwise the
// supported wanted languages other than ui are returned, best first.
func UITarget(ui string, p Preference, supported []string) ([]string, bool) {
	wanted := SupportedWanted(p, supported)
	if len(wanted) == 0 || Primary(wanted[0]) == Primary(ui) {
		return nil, false
	}
	out := make([]string, 0, len(wanted))
	for _, w := range wanted {
		if Primary(w) != Primary(ui) {
			out = append(out, w)
		}
	}
	return out, true
}
