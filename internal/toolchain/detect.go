// Package toolchain discovers compilers, linkers and sysroots among the
// dependency roots and selects the toolchain a stage builds with.
package toolchain

import (
	"path"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/buckos/pkgbuild/internal/depscan"
)

// LibcCandidates identify a root that provides a C library in a flat layout.
var LibcCandidates = []string{
	"lib/libc.so.6",
	"lib64/libc.so.6",
	"usr/lib/libc.so",
	"usr/lib64/libc.so",
	"usr/lib/libc.so.6",
	"usr/lib64/libc.so.6",
}

// LoaderDirs are searched for the dynamic loader inside each sysroot.
var LoaderDirs = []string{"lib", "lib64", "usr/lib", "usr/lib64"}

// CrossToolchain is a directory holding <triple>-prefixed tools.
type CrossToolchain struct {
	Root   string
	Triple string
	BinDir string
	// Tools holds the tool suffixes present, e.g. "gcc", "ld", "ar".
	Tools map[string]bool
}

// HasCompiler reports whether <triple>-gcc is present.
func (c CrossToolchain) HasCompiler() bool { return c.Tools["gcc"] }

// NativeToolchain is a directory holding an unprefixed gcc.
type NativeToolchain struct {
	Root   string
	BinDir string
	Tools  map[string]bool
}

// Sysroot is a candidate sysroot directory.
type Sysroot struct {
	Root string
	// Triple is empty for sysroots not tied to a target, such as a flat root.
	Triple string
	Path   string
	// Nested is false for a root that provides libc directly.
	Nested bool
	// IncludeDir is the C library header directory, if present.
	IncludeDir string
}

// CxxHeaders is a C++ standard library header directory.
type CxxHeaders struct {
	Root    string
	Dir     string
	Version string
	// TargetDir is the triple-specific subdirectory holding bits/c++config.h.
	TargetDir string
	// Triple is the triple in the layout path, when the layout encodes one.
	Triple string
}

// DetectionResult is everything toolchain-related found among the roots.
type DetectionResult struct {
	Roots  []string
	Cross  []CrossToolchain
	Native []NativeToolchain
	// Unprefixed holds every tool directory with at least one known
	// unprefixed tool, compilers or not, in root order.
	Unprefixed []NativeToolchain
	// Sysroots holds nested sysroots first in root order, then flat libc roots.
	Sysroots []Sysroot
	Cxx      []CxxHeaders
	// Loaders are the runtime paths of the dynamic loaders the sysroots
	// provide, e.g. /lib64/ld-linux-x86-64.so.2, sorted and unique.
	Loaders []string
}

// Detect inspects the snapshot without touching any other state. Given the
// same snapshot contents it always returns the same result.
func Detect(s depscan.Snapshot) *DetectionResult {
	det := &DetectionResult{Roots: s.Paths()}
	var flat []Sysroot
	for _, r := range s.Roots {
		det.detectTools(r)
		det.detectNested(r)
		if sr, ok := flatSysroot(r); ok {
			flat = append(flat, sr)
		}
		det.detectCxx(r)
		det.detectLoaders(r)
	}
	det.Sysroots = append(det.Sysroots, flat...)
	sort.Strings(det.Loaders)
	det.Loaders = slices.Compact(det.Loaders)
	return det
}

func (det *DetectionResult) detectTools(r depscan.Root) {
	seenTriple := make(map[string]bool)
	nativeFound := false
	for _, dir := range depscan.ToolDirs {
		names := r.ListDir(dir)
		sort.Strings(names)

		byTriple := make(map[string]map[string]bool)
		var order []string
		for _, n := range names {
			if triple, _, ok := depscan.ParseCrossTool(n); ok && r.IsExecutable(path.Join(dir, n)) {
				if _, ok := byTriple[triple]; !ok {
					byTriple[triple] = make(map[string]bool)
					order = append(order, triple)
				}
			}
		}
		for _, n := range names {
			for triple, tools := range byTriple {
				if strings.HasPrefix(n, triple+"-") && r.IsExecutable(path.Join(dir, n)) {
					tools[strings.TrimPrefix(n, triple+"-")] = true
				}
			}
		}
		for _, triple := range order {
			if seenTriple[triple] {
				continue
			}
			seenTriple[triple] = true
			det.Cross = append(det.Cross, CrossToolchain{
				Root:   r.Path,
				Triple: triple,
				BinDir: r.Abs(dir),
				Tools:  byTriple[triple],
			})
		}

		tools := make(map[string]bool)
		for _, t := range toolNames {
			if r.IsExecutable(path.Join(dir, t.Tool)) {
				tools[t.Tool] = true
			}
		}
		if len(tools) == 0 {
			continue
		}
		tc := NativeToolchain{Root: r.Path, BinDir: r.Abs(dir), Tools: tools}
		det.Unprefixed = append(det.Unprefixed, tc)
		if !nativeFound && tools["gcc"] {
			nativeFound = true
			det.Native = append(det.Native, tc)
		}
	}
}

func (det *DetectionResult) detectNested(r depscan.Root) {
	for _, base := range []string{"tools", ""} {
		names := r.ListDir(orDot(base))
		sort.Strings(names)
		for _, n := range names {
			if !depscan.ValidTriple(n) {
				continue
			}
			rel := path.Join(base, n, "sys-root")
			if r.IsDir(rel) {
				det.Sysroots = append(det.Sysroots, sysrootAt(r, n, rel))
			}
		}
	}
	for _, rel := range []string{"tools/sysroot", "sysroot"} {
		if r.IsDir(rel) {
			det.Sysroots = append(det.Sysroots, sysrootAt(r, "", rel))
		}
	}
}

func (det *DetectionResult) detectLoaders(r depscan.Root) {
	bases := []string{""}
	for _, base := range []string{"tools", ""} {
		for _, n := range r.ListDir(orDot(base)) {
			if depscan.ValidTriple(n) {
				bases = append(bases, path.Join(base, n, "sys-root"))
			}
		}
	}
	bases = append(bases, "tools/sysroot", "sysroot")

	for _, base := range bases {
		for _, dir := range LoaderDirs {
			for _, n := range r.ListDir(path.Join(orDot(base), dir)) {
				if isLoader(n) {
					det.Loaders = append(det.Loaders, "/"+path.Join(dir, n))
				}
			}
		}
	}
}

// isLoader matches glibc (ld-linux*.so*) and musl (ld-musl-*.so.1) loaders.
func isLoader(name string) bool {
	switch {
	case strings.HasPrefix(name, "ld-linux") && strings.Contains(name, ".so"):
		return true
	case strings.HasPrefix(name, "ld-musl-") && strings.HasSuffix(name, ".so.1"):
		return true
	}
	return false
}

func sysrootAt(r depscan.Root, triple, rel string) Sysroot {
	sr := Sysroot{Root: r.Path, Triple: triple, Path: r.Abs(rel), Nested: true}
	for _, inc := range []string{"usr/include", "include"} {
		if r.IsDir(path.Join(rel, inc)) {
			sr.IncludeDir = r.Abs(path.Join(rel, inc))
			break
		}
	}
	return sr
}

func flatSysroot(r depscan.Root) (Sysroot, bool) {
	for _, c := range LibcCandidates {
		if r.IsFile(c) {
			sr := Sysroot{Root: r.Path, Path: r.Path}
			for _, inc := range []string{"usr/include", "include"} {
				if r.IsDir(inc) {
					sr.IncludeDir = r.Abs(inc)
					break
				}
			}
			return sr, true
		}
	}
	return Sysroot{}, false
}

func (det *DetectionResult) detectCxx(r depscan.Root) {
	var layouts []struct{ dir, triple string }
	for _, base := range []string{"tools", ""} {
		for _, n := range r.ListDir(orDot(base)) {
			if !depscan.ValidTriple(n) {
				continue
			}
			layouts = append(layouts,
				struct{ dir, triple string }{path.Join(base, n, "sys-root/usr/include/c++"), n},
				struct{ dir, triple string }{path.Join(base, n, "include/c++"), n},
			)
		}
	}
	layouts = append(layouts,
		struct{ dir, triple string }{"usr/include/c++", ""},
		struct{ dir, triple string }{"include/c++", ""},
	)

	for _, l := range layouts {
		versions := r.ListDir(l.dir)
		sort.Slice(versions, func(i, j int) bool { return versionLess(versions[j], versions[i]) })
		for _, v := range versions {
			rel := path.Join(l.dir, v)
			if !r.IsDir(rel) {
				continue
			}
			h := CxxHeaders{Root: r.Path, Dir: r.Abs(rel), Version: v, Triple: l.triple}
			for _, sub := range r.ListDir(rel) {
				if depscan.ValidTriple(sub) && (l.triple == "" || sub == l.triple) && r.IsDir(path.Join(rel, sub)) {
					h.TargetDir = r.Abs(path.Join(rel, sub))
					break
				}
			}
			det.Cxx = append(det.Cxx, h)
			break
		}
	}
}

// FirstCross returns the first cross toolchain in root order. When
// needCompiler is set only toolchains providing <triple>-gcc qualify.
func (det *DetectionResult) FirstCross(needCompiler bool) (CrossToolchain, bool) {
	for _, c := range det.Cross {
		if !needCompiler || c.HasCompiler() {
			return c, true
		}
	}
	return CrossToolchain{}, false
}

// SysrootFor returns the sysroot for triple: a nested sysroot for that
// triple, then an untagged nested sysroot, then a flat libc root.
func (det *DetectionResult) SysrootFor(triple string) (Sysroot, bool) {
	for _, want := range []func(Sysroot) bool{
		func(s Sysroot) bool { return s.Nested && s.Triple == triple },
		func(s Sysroot) bool { return s.Nested && s.Triple == "" },
		func(s Sysroot) bool { return !s.Nested },
	} {
		for _, s := range det.Sysroots {
			if want(s) {
				return s, true
			}
		}
	}
	return Sysroot{}, false
}

// CxxFor returns C++ headers for triple, preferring ones inside sysroot.
func (det *DetectionResult) CxxFor(triple, sysroot string) (CxxHeaders, bool) {
	for _, want := range []func(CxxHeaders) bool{
		func(h CxxHeaders) bool { return sysroot != "" && strings.HasPrefix(h.Dir, sysroot+"/") },
		func(h CxxHeaders) bool { return h.Triple == triple },
		func(h CxxHeaders) bool { return h.Triple == "" },
	} {
		for _, h := range det.Cxx {
			if want(h) {
				return h, true
			}
		}
	}
	return CxxHeaders{}, false
}

// versionLess orders GCC version directory names numerically.
func versionLess(a, b string) bool {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, errA := strconv.Atoi(pa[i])
		nb, errB := strconv.Atoi(pb[i])
		if errA != nil || errB != nil {
			if pa[i] != pb[i] {
				return pa[i] < pb[i]
			}
			continue
		}
		if na != nb {
			return na < nb
		}
	}
	return len(pa) < len(pb)
}

func orDot(p string) string {
	if p == "" {
		return "."
	}
	return p
}
