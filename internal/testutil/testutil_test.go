package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleRoot(t *testing.T) {
	root, err := ModuleRoot()
	require.NoError(t, err)
	assert.True(t, isFile(filepath.Join(root, "go.mod")))
	assert.True(t, isDir(filepath.Join(root, "internal", "sites", "testdata")))
}

func TestTestDataDir(t *testing.T) {
	dir := TestDataDir(t)
	assert.Equal(t, "testdata", filepath.Base(dir))
	assert.True(t, isFile(filepath.Join(dir, "page.html")))
}

func TestIsFileIsDir(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, isDir(dir))
	assert.False(t, isFile(dir))
	assert.False(t, isFile(filepath.Join(dir, "missing")))
}
