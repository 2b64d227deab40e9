package buildenv

import (
	"path/filepath"

	"github.com/buckos/pkgbuild/internal/depscan"
)

// ResolveSubdirs finds header subdirectories that a root's pkg-config files
// expect but the root does not ship. Each missing subdirectory is looked up
// in every other root's header directories, in root order, and the first
// match is returned. This covers a library whose Cflags name the headers of
// a transitive dependency.
func ResolveSubdirs(res *depscan.Result) []string {
	var out []string
	seen := make(map[string]bool)
	for _, pc := range res.PkgConfigFiles {
		for _, sub := range pc.IncludeSubdirs {
			if hasOwn(res, pc.Root, sub) {
				continue
			}
			if dir, ok := findElsewhere(res, pc.Root, sub); ok && !seen[dir] {
				seen[dir] = true
				out = append(out, dir)
			}
		}
	}
	return out
}

func hasOwn(res *depscan.Result, root, sub string) bool {
	for _, inc := range res.IncludeIndex[root] {
		if res.HasSubdir(inc, sub) {
			return true
		}
	}
	return false
}

func findElsewhere(res *depscan.Result, owner, sub string) (string, bool) {
	for _, r := range res.Roots {
		if r.Path == owner {
			continue
		}
		for _, inc := range res.IncludeIndex[r.Path] {
			if res.HasSubdir(inc, sub) {
				return filepath.Join(inc, filepath.FromSlash(sub)), true
			}
		}
	}
	return "", false
}
