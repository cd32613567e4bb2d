package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// =====================================
// File System Testing Utilities
// =====================================

// CreateTestFile writes content to path on fs, creating parent directories.
func CreateTestFile(t *testing.T, fs afero.Fs, path, content string) string {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	return path
}

// CreateTestDir creates path on fs.
func CreateTestDir(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	require.NoError(t, fs.MkdirAll(path, 0o755))
	return path
}

// AssertFilePermissions verifies permissions of a file on the real filesystem.
func AssertFilePermissions(t *testing.T, path string, expected os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equalf(t, expected, info.Mode().Perm(), "permissions of %s", path)
}

// TestError implements error for fakes that need a fixed message.
type TestError struct {
	message string
}

func (e *TestError) Error() string {
	return e.message
}

func NewTestError(message string) error {
	return &TestError{message: message}
}
