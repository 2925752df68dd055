package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/lahidna/internal/page"
)

// ReadFixture returns the content of testdata/name.
func ReadFixture(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(TestDataDir(t), name)
	data, err := os.ReadFile(path) //nolint:gosec // G304: Reading test fixture files with controlled paths
	require.NoError(t, err, "Failed to read fixture file: %s", path)

	return string(data)
}

// LoadPage parses testdata/name as the page at location.
func LoadPage(t *testing.T, name, location string, opts ...page.Option) *page.Document {
	t.Helper()

	return NewPage(t, ReadFixture(t, name), location, opts...)
}

// NewPage parses src as the page at location.
func NewPage(t *testing.T, src, location string, opts ...page.Option) *page.Document {
	t.Helper()

	doc, err := page.ParseString(src, location, opts...)
	require.NoError(t, err, "Failed to parse page %s", location)

	return doc
}

// BlankPage is a minimal page for location with the given html lang.
func BlankPage(t *testing.T, location, htmlLang string) *page.Document {
	t.Helper()

	return NewPage(t, `<!doctype html><html lang="`+htmlLang+`"><head></head><body></body></html>`, location)
}
