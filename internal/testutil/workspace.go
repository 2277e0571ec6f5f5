package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/YoshitsuguKoike/gatechain/internal/app"
)

// NewTestWorkspace changes into a fresh temp directory with GATECHAIN_HOME
// unset, so the default .gatechain home resolves inside it. The working
// directory is restored on cleanup. It returns the workspace directory.
func NewTestWorkspace(t *testing.T) string {
	t.Helper()

	originalCwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get current directory: %v", err)
	}
	tmpDir := t.TempDir()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Failed to change to temp directory: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(originalCwd); err != nil {
			t.Errorf("Failed to restore working directory: %v", err)
		}
	})
	t.Setenv(app.HomeEnv, "")
	return tmpDir
}

// WritePrompts writes a prompts.yaml catalog into home and returns its path
func WritePrompts(t *testing.T, home, content string) string {
	t.Helper()

	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("Failed to create home %s: %v", home, err)
	}
	path := filepath.Join(home, "prompts.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write prompts: %v", err)
	}
	return path
}

// AssertFileExists verifies that a file exists
func AssertFileExists(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File should exist but doesn't: %s", path)
	}
}

// AssertFileNotExists verifies that a file does not exist
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); err == nil {
		t.Errorf("File should not exist but does: %s", path)
	}
}
