package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteFile writes content to dir/name, creating parent directories. name
// must be relative and stay inside dir.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	if filepath.IsAbs(name) {
		t.Fatalf("WriteFile: absolute path not allowed: %s", name)
	}
	path := filepath.Join(dir, name)
	if rel, err := filepath.Rel(dir, path); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		t.Fatalf("WriteFile: path escapes directory: %s", name)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}
