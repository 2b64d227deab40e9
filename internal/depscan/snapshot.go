package depscan

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/buckos/pkgbuild/internal/log"
)

// Root is one dependency output root as seen through a filesystem view.
// FS is rooted at Path, so lookups use slash-separated relative names.
type Root struct {
	Path string
	FS   fs.FS
}

// Snapshot is the ordered set of dependency roots for one build. Order is
// significant: earlier roots win every first-match lookup.
type Snapshot struct {
	Roots []Root
}

// NewSnapshot builds a snapshot from explicit views, typically fstest.MapFS
// values in tests.
func NewSnapshot(roots ...Root) Snapshot {
	return Snapshot{Roots: roots}
}

// LoadSnapshot opens each path with os.DirFS. Missing or unreadable roots are
// skipped; the toolchain selector reports a missing toolchain later.
func LoadSnapshot(paths []string, logger log.Logger) Snapshot {
	if logger == nil {
		logger = log.NewNoop()
	}
	var s Snapshot
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			logger.Debug("skipping dependency root", "path", p, "error", err)
			continue
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			logger.Debug("skipping dependency root", "path", abs, "error", err)
			continue
		}
		if _, err := os.ReadDir(abs); err != nil {
			logger.Debug("skipping unreadable dependency root", "path", abs, "error", err)
			continue
		}
		s.Roots = append(s.Roots, Root{Path: abs, FS: os.DirFS(abs)})
	}
	return s
}

// Paths returns the root paths in order.
func (s Snapshot) Paths() []string {
	out := make([]string, 0, len(s.Roots))
	for _, r := range s.Roots {
		out = append(out, r.Path)
	}
	return out
}

// IsDir reports whether rel names a directory inside r.
func (r Root) IsDir(rel string) bool {
	info, err := fs.Stat(r.FS, rel)
	return err == nil && info.IsDir()
}

// IsFile reports whether rel names a non-directory inside r.
func (r Root) IsFile(rel string) bool {
	info, err := fs.Stat(r.FS, rel)
	return err == nil && !info.IsDir()
}

// IsExecutable reports whether rel is a regular file with an execute bit.
func (r Root) IsExecutable(rel string) bool {
	info, err := fs.Stat(r.FS, rel)
	return err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

// Abs joins rel onto the root path.
func (r Root) Abs(rel string) string {
	return filepath.Join(r.Path, filepath.FromSlash(rel))
}

// ListDir returns the entry names of rel, or nil when it cannot be read.
func (r Root) ListDir(rel string) []string {
	entries, err := fs.ReadDir(r.FS, rel)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
