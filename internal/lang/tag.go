// Package lang holds language tags, the user's language preference and the
// rule that reconciles a site's language list against that preference.
package lang

import "strings"

// Primary returns the lowercase primary subtag of tag: "en-GB" and "en_gb"
// both become "en". Legacy codes such as "iw" are kept as the site spells them.
func Primary(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

// Index returns the position of the first entry of list whose primary subtag
// equals the primary subtag of tag, or -1.
func Index(list []string, tag string) int {
	p := Primary(tag)
	for i, v := range list {
		if Primary(v) == p {
			return i
		}
	}
	return -1
}

// Contains reports whether list holds tag, comparing primary subtags.
func Contains(list []string, tag string) bool {
	return Index(list, tag) >= 0
}

// SameSet reports whether a and b hold the same primary subtags regardless
// of order and repetition.
func SameSet(a, b []string) bool {
	sa, sb := toSet(a), toSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for k := range sa {
		if _, ok := sb[k]; !ok {
			return false
		}
	}
	return true
}

// Without returns the entries of list whose primary subtag is not in drop.
func Without(list, drop []string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if !Contains(drop, v) {
			out = append(out, v)
		}
	}
	return out
}

func toSet(list []string) map[string]struct{} {
	s := make(map[string]struct{}, len(list))
	for _, v := range list {
		s[Primary(v)] = struct{}{}
	}
	return s
}
