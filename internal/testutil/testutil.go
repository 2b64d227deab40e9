// Package testutil holds helpers shared by package tests that need real
// directories: settings rooted in a temporary home and fake dependency
// roots on disk.
package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/buckos/pkgbuild/internal/config"
)

// NewTestSettings resolves settings under a temporary PKGBUILD_HOME with
// the given file contents and an empty environment. A nil file means
// defaults.
func NewTestSettings(t *testing.T, file *config.File) *config.Settings {
	t.Helper()
	if file == nil {
		file = &config.File{}
	}
	s, err := config.Resolve(config.PathsFor(t.TempDir()), file, func(string) string { return "" }, io.Discard)
	if err != nil {
		t.Fatalf("failed to resolve test settings: %v", err)
	}
	return s
}

// WriteTree creates files under root. Keys are slash-separated relative
// paths; a key ending in "/" creates a directory.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if rel[len(rel)-1] == '/' {
			if err := os.MkdirAll(p, 0o755); err != nil {
				t.Fatalf("failed to create %s: %v", p, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("failed to create parent of %s: %v", p, err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", p, err)
		}
	}
}

// WriteExecutables creates executable shell stubs under root that exit 0.
func WriteExecutables(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, rel := range names {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("failed to create parent of %s: %v", p, err)
		}
		if err := os.WriteFile(p, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			t.Fatalf("failed to write %s: %v", p, err)
		}
	}
}
