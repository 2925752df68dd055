// Package testutil holds fixtures and fakes shared by package tests and the
// integration suite.
package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// ErrNoModuleRoot is returned when no go.mod is found.
var ErrNoModuleRoot = errors.New("no go.mod above testutil")

// ModuleRoot walks up from this file to the directory holding go.mod and
// the internal/sites fixtures.
func ModuleRoot() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", ErrNoModuleRoot
	}
	for dir := filepath.Dir(file); ; {
		if isFile(filepath.Join(dir, "go.mod")) && isDir(filepath.Join(dir, "internal", "sites")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoModuleRoot
		}
		dir = parent
	}
}

// TestDataDir is testdata/ of the package under test.
func TestDataDir(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Join(wd, "testdata")
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
