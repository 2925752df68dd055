package sites

import (
	"net/url"
	"strings"
)

// Field is one key/value pair of a form body.
type Field struct {
	Key   string
	Value string
}

// Form is an ordered form body.
type Form []Field

// Encode joins fields in order, escaping both sides like encodeURIComponent.
func (f Form) Encode() string {
	parts := make([]string, 0, len(f))
	for _, fl := range f {
		parts = append(parts, EncodeURIComponent(fl.Key)+"="+EncodeURIComponent(fl.Value))
	}
	return strings.Join(parts, "&")
}

// Query joins fields in order using query escaping.
func (f Form) Query() string {
	parts := make([]string, 0, len(f))
	for _, fl := range f {
		parts = append(parts, url.QueryEscape(fl.Key)+"="+url.QueryEscape(fl.Value))
	}
	return strings.Join(parts, "&")
}

const upperhex = "0123456789ABCDEF"

// EncodeURIComponent percent-encodes s, leaving A-Z a-z 0-9 and -_.!~*'()
// untouched.
func EncodeURIComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
