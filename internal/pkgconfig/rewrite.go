// Package pkgconfig implements the filtering proxy placed ahead of the real
// pkg-config. Flag queries are forwarded unchanged and their output is
// rewritten so absolute host-style paths point into the dependency root
// that provides the queried package.
package pkgconfig

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/buckos/pkgbuild/internal/depscan"
)

// metadataSuffixes are the pkg-config directory layouts stripped from a
// search directory to recover its root, longest first so usr/lib64/pkgconfig
// is not mistaken for lib64/pkgconfig.
var metadataSuffixes = func() []string {
	s := append([]string(nil), depscan.PkgConfigCandidates...)
	sort.SliceStable(s, func(i, j int) bool { return len(s[i]) > len(s[j]) })
	return s
}()

// Rewriter maps pkg-config output paths into dependency roots.
type Rewriter struct {
	// SearchDirs are the PKG_CONFIG_PATH entries, in order.
	SearchDirs []string
	// Exists reports whether a path exists. Defaults to os.Stat.
	Exists func(string) bool
}

// NewRewriter builds a rewriter over a colon-separated PKG_CONFIG_PATH.
func NewRewriter(pkgConfigPath string) *Rewriter {
	var dirs []string
	for _, d := range strings.Split(pkgConfigPath, ":") {
		if d != "" {
			dirs = append(dirs, filepath.Clean(d))
		}
	}
	return &Rewriter{SearchDirs: dirs}
}

func (r *Rewriter) exists(p string) bool {
	if r.Exists != nil {
		return r.Exists(p)
	}
	_, err := os.Stat(p)
	return err == nil
}

// RootOf strips the metadata suffix from a pkg-config directory.
func RootOf(dir string) (string, bool) {
	dir = filepath.ToSlash(filepath.Clean(dir))
	for _, suffix := range metadataSuffixes {
		if strings.HasSuffix(dir, "/"+suffix) {
			return filepath.FromSlash(strings.TrimSuffix(dir, "/"+suffix)), true
		}
	}
	return "", false
}

// Roots returns the distinct roots behind the search directories.
func (r *Rewriter) Roots() []string {
	var out []string
	seen := make(map[string]bool)
	for _, d := range r.SearchDirs {
		if root, ok := RootOf(d); ok && !seen[root] {
			seen[root] = true
			out = append(out, root)
		}
	}
	return out
}

// RootFor finds the root whose search directory holds <pkg>.pc.
func (r *Rewriter) RootFor(pkg string) (string, bool) {
	for _, d := range r.SearchDirs {
		if !r.exists(filepath.Join(d, pkg+".pc")) {
			continue
		}
		if root, ok := RootOf(d); ok {
			return root, true
		}
	}
	return "", false
}

// Rewrite rewrites flag output for a query naming packages. The root of the
// first package found is used. When no package resolves to a root the
// output is returned unchanged.
func (r *Rewriter) Rewrite(output string, packages []string) string {
	root := ""
	for _, p := range packages {
		if found, ok := r.RootFor(p); ok {
			root = found
			break
		}
	}
	if root == "" {
		return output
	}
	known := r.Roots()

	trailing := ""
	body := output
	if i := len(strings.TrimRight(output, " \t\r\n")); i < len(output) {
		body, trailing = output[:i], output[i:]
	}
	fields := strings.Fields(body)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case f == "-isystem" || f == "-I" || f == "-L":
			if i+1 < len(fields) {
				fields[i+1] = r.mapPath(fields[i+1], root, known, f != "-L")
				i++
			}
		case strings.HasPrefix(f, "-isystem"):
			fields[i] = "-isystem" + r.mapPath(f[len("-isystem"):], root, known, true)
		case strings.HasPrefix(f, "-I"):
			fields[i] = "-I" + r.mapPath(f[2:], root, known, true)
		case strings.HasPrefix(f, "-L"):
			fields[i] = "-L" + r.mapPath(f[2:], root, known, false)
		case strings.HasPrefix(f, "-Wl,-rpath-link,"):
			fields[i] = "-Wl,-rpath-link," + r.mapPath(f[len("-Wl,-rpath-link,"):], root, known, false)
		case strings.HasPrefix(f, "-Wl,-rpath,"):
			fields[i] = "-Wl,-rpath," + r.mapPath(f[len("-Wl,-rpath,"):], root, known, false)
		case strings.HasPrefix(f, "/"):
			fields[i] = r.mapPath(f, root, known, false)
		}
	}
	return strings.Join(fields, " ") + trailing
}

// mapPath places an absolute path under root unless it already lies in a
// known root. Include directories missing from root are looked up in the
// other roots.
func (r *Rewriter) mapPath(p, root string, known []string, include bool) string {
	if !strings.HasPrefix(p, "/") {
		return p
	}
	for _, k := range known {
		if p == k || strings.HasPrefix(p, k+"/") {
			return p
		}
	}
	mapped := filepath.Join(root, p)
	if !include || r.exists(mapped) {
		return mapped
	}
	for _, k := range known {
		if k == root {
			continue
		}
		if alt := filepath.Join(k, p); r.exists(alt) {
			return alt
		}
	}
	return mapped
}

// IsFlagQuery reports whether args ask pkg-config for compiler or linker
// flags.
func IsFlagQuery(args []string) bool {
	for _, a := range args {
		if strings.HasPrefix(a, "--cflags") || strings.HasPrefix(a, "--libs") {
			return true
		}
	}
	return false
}

// Packages extracts package names from pkg-config arguments, skipping
// options and version constraints.
func Packages(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			continue
		case strings.HasPrefix(a, "-"):
			continue
		case a == ">=" || a == "<=" || a == "=" || a == "!=" || a == ">" || a == "<":
			i++
			continue
		}
		for _, name := range strings.Fields(a) {
			if strings.ContainsAny(name[:1], "<>=!0123456789") {
				continue
			}
			out = append(out, name)
		}
	}
	return out
}
