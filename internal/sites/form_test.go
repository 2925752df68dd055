package sites

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeURIComponent(t *testing.T) {
	tests := map[string]string{
		"abc-_.!~*'()": "abc-_.!~*'()",
		"a b":          "a%20b",
		"a+b&c=d":      "a%2Bb%26c%3Dd",
		"ajax:123":     "ajax%3A123",
		"ї":            "%D1%97",
		`["uk"]`:       "%5B%22uk%22%5D",
		"":             "",
	}
	for in, want := range tests {
		assert.Equal(t, want, EncodeURIComponent(in), in)
	}
}

func TestForm(t *testing.T) {
	f := Form{{"z", "last one"}, {"a", "x&y"}, {"lr", "lang_uk"}, {"lr", "lang_en"}}

	assert.Equal(t, "z=last%20one&a=x%26y&lr=lang_uk&lr=lang_en", f.Encode())
	assert.Equal(t, "z=last+one&a=x%26y&lr=lang_uk&lr=lang_en", f.Query())
	assert.Empty(t, Form(nil).Encode())
}
