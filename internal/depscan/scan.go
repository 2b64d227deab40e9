// Package depscan classifies dependency output roots by the standard
// subdirectories they provide and builds the ordered search-path lists the
// environment composer consumes.
package depscan

import (
	"io/fs"
	"path"
	"sort"
	"strings"
)

// Candidate paths per category, relative to each root.
var (
	BinCandidates       = []string{"bin", "usr/bin", "sbin", "usr/sbin"}
	LibCandidates       = []string{"lib", "lib64", "usr/lib", "usr/lib64"}
	IncludeCandidates   = []string{"include", "usr/include"}
	PkgConfigCandidates = []string{
		"lib/pkgconfig",
		"lib64/pkgconfig",
		"usr/lib/pkgconfig",
		"usr/lib64/pkgconfig",
		"usr/share/pkgconfig",
	}
	PythonPatterns = []string{
		"lib/python*/site-packages", "lib/python*/dist-packages",
		"lib64/python*/site-packages", "lib64/python*/dist-packages",
		"usr/lib/python*/site-packages", "usr/lib/python*/dist-packages",
		"usr/lib64/python*/site-packages", "usr/lib64/python*/dist-packages",
	}
	PerlCandidates    = []string{"lib/perl5", "usr/lib/perl5", "usr/lib64/perl5", "usr/share/perl5"}
	AclocalCandidates = []string{"share/aclocal", "usr/share/aclocal"}
	CmakeCandidates   = []string{"lib/cmake", "lib64/cmake", "usr/lib/cmake", "usr/lib64/cmake", "usr/share/cmake"}
)

// includeTreeDepth bounds how deep header directories are listed for
// subdirectory resolution.
const includeTreeDepth = 3

// DependencyRoot records which categories a root provides.
type DependencyRoot struct {
	Path          string
	HasBin        bool
	HasLib        bool
	HasInclude    bool
	HasPkgConfig  bool
	HasPythonSite bool
	HasPerlLib    bool
	HasAclocal    bool
	HasCmake      bool
}

// PkgConfigFile is a .pc file found in a root, reduced to the header
// subdirectories its Cflags expect under the include directory.
type PkgConfigFile struct {
	Root           string
	Path           string
	Package        string
	IncludeSubdirs []string
}

// Result is the scanner output. Every list is in root order, then candidate
// order within a root. All paths are absolute.
type Result struct {
	Roots []DependencyRoot

	BinDirs       []string
	LibDirs       []string
	IncludeDirs   []string
	PkgConfigDirs []string
	PythonDirs    []string
	PerlDirs      []string
	AclocalDirs   []string
	CmakePrefixes []string

	// PkgConfigIndex maps a root to its first pkg-config directory.
	PkgConfigIndex map[string]string

	// ToolchainIndex maps a root to the compiler or linker executable it
	// provides, by name.
	ToolchainIndex map[string]string

	// IncludeIndex maps a root to its header directories.
	IncludeIndex map[string][]string

	// IncludeTree maps a header directory to the relative subdirectories
	// beneath it, bounded in depth.
	IncludeTree map[string][]string

	PkgConfigFiles []PkgConfigFile
}

// Scan inspects every root in the snapshot. Roots whose views fail are
// treated as providing nothing.
func Scan(s Snapshot) *Result {
	res := &Result{
		PkgConfigIndex: make(map[string]string),
		ToolchainIndex: make(map[string]string),
		IncludeIndex:   make(map[string][]string),
		IncludeTree:    make(map[string][]string),
	}
	for _, r := range s.Roots {
		res.scanRoot(r)
	}
	return res
}

func (res *Result) scanRoot(r Root) {
	dr := DependencyRoot{Path: r.Path}

	for _, c := range BinCandidates {
		if r.IsDir(c) {
			dr.HasBin = true
			res.BinDirs = append(res.BinDirs, r.Abs(c))
		}
	}
	for _, c := range LibCandidates {
		if r.IsDir(c) {
			dr.HasLib = true
			res.LibDirs = append(res.LibDirs, r.Abs(c))
		}
	}
	for _, c := range IncludeCandidates {
		if !r.IsDir(c) {
			continue
		}
		dr.HasInclude = true
		abs := r.Abs(c)
		res.IncludeDirs = append(res.IncludeDirs, abs)
		res.IncludeIndex[r.Path] = append(res.IncludeIndex[r.Path], abs)
		res.IncludeTree[abs] = listTree(r.FS, c, includeTreeDepth)
	}
	for _, c := range PkgConfigCandidates {
		if !r.IsDir(c) {
			continue
		}
		dr.HasPkgConfig = true
		abs := r.Abs(c)
		res.PkgConfigDirs = append(res.PkgConfigDirs, abs)
		if _, ok := res.PkgConfigIndex[r.Path]; !ok {
			res.PkgConfigIndex[r.Path] = abs
		}
		res.PkgConfigFiles = append(res.PkgConfigFiles, readPkgConfigDir(r, c)...)
	}
	for _, pattern := range PythonPatterns {
		matches, _ := fs.Glob(r.FS, pattern)
		sort.Strings(matches)
		for _, m := range matches {
			if r.IsDir(m) {
				dr.HasPythonSite = true
				res.PythonDirs = append(res.PythonDirs, r.Abs(m))
			}
		}
	}
	for _, c := range PerlCandidates {
		if r.IsDir(c) {
			dr.HasPerlLib = true
			res.PerlDirs = append(res.PerlDirs, r.Abs(c))
		}
	}
	for _, c := range AclocalCandidates {
		if r.IsDir(c) {
			dr.HasAclocal = true
			res.AclocalDirs = append(res.AclocalDirs, r.Abs(c))
		}
	}
	for _, c := range CmakeCandidates {
		if !r.IsDir(c) {
			continue
		}
		dr.HasCmake = true
		prefix := r.Path
		if strings.HasPrefix(c, "usr/") {
			prefix = r.Abs("usr")
		}
		if !contains(res.CmakePrefixes, prefix) {
			res.CmakePrefixes = append(res.CmakePrefixes, prefix)
		}
	}
	if name := toolchainBinary(r); name != "" {
		res.ToolchainIndex[r.Path] = name
	}

	res.Roots = append(res.Roots, dr)
}

// toolchainBinary returns the first cross tool name in the root's tool
// directories, or "gcc" when only a native compiler is present.
func toolchainBinary(r Root) string {
	native := ""
	for _, dir := range ToolDirs {
		names := r.ListDir(dir)
		sort.Strings(names)
		for _, n := range names {
			if _, _, ok := ParseCrossTool(n); ok && r.IsExecutable(path.Join(dir, n)) {
				return n
			}
		}
		if native == "" && r.IsExecutable(path.Join(dir, "gcc")) {
			native = "gcc"
		}
	}
	return native
}

// listTree lists directories under dir up to depth levels, as paths
// relative to dir.
func listTree(fsys fs.FS, dir string, depth int) []string {
	var out []string
	var walk func(rel string, level int)
	walk = func(rel string, level int) {
		if level > depth {
			return
		}
		full := dir
		if rel != "" {
			full = path.Join(dir, rel)
		}
		entries, err := fs.ReadDir(fsys, full)
		if err != nil {
			return
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			child := e.Name()
			if rel != "" {
				child = path.Join(rel, e.Name())
			}
			out = append(out, child)
			walk(child, level+1)
		}
	}
	walk("", 1)
	sort.Strings(out)
	return out
}

// HasSubdir reports whether the header directory includeDir contains sub.
func (res *Result) HasSubdir(includeDir, sub string) bool {
	tree := res.IncludeTree[includeDir]
	i := sort.SearchStrings(tree, sub)
	return i < len(tree) && tree[i] == sub
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
