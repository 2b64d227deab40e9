package buildenv

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/buckos/pkgbuild/internal/stage"
)

// HostDefaultPaths are the system locations a hermetic build must never
// search, regardless of where the dependency roots live.
var HostDefaultPaths = []string{
	"/lib",
	"/lib64",
	"/usr/lib",
	"/usr/lib64",
	"/usr/include",
	"/usr/lib/pkgconfig",
	"/usr/lib64/pkgconfig",
	"/usr/share/pkgconfig",
	"/usr/local",
}

// FlagVars hold compiler and linker flags whose path arguments are checked.
var FlagVars = []string{"CPPFLAGS", "CFLAGS", "CXXFLAGS", "LDFLAGS"}

// Violation is one path that breaks isolation.
type Violation struct {
	Var    string
	Path   string
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s contains %s (%s)", v.Var, v.Path, v.Reason)
}

// CheckIsolation returns every search path in vars that is a host default
// or lies outside roots. Relative paths are ignored; they name locations in
// the source tree.
func CheckIsolation(vars *Variables, roots []string) []Violation {
	var out []Violation
	check := func(name, p string) {
		if !filepath.IsAbs(p) {
			return
		}
		p = filepath.Clean(p)
		if isHostDefault(p) {
			out = append(out, Violation{Var: name, Path: p, Reason: "host default path"})
			return
		}
		if !underAny(p, roots) {
			out = append(out, Violation{Var: name, Path: p, Reason: "outside dependency roots"})
		}
	}
	for _, name := range stage.SearchVars {
		val, ok := vars.Get(name)
		if !ok {
			continue
		}
		for _, p := range strings.Split(val, ":") {
			check(name, p)
		}
	}
	for _, name := range FlagVars {
		val, ok := vars.Get(name)
		if !ok {
			continue
		}
		for _, p := range FlagPaths(val) {
			check(name, p)
		}
	}
	return out
}

// FlagPaths extracts the path arguments of search-related flags.
func FlagPaths(flags string) []string {
	var out []string
	fields := strings.Fields(flags)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case f == "-isystem" || f == "-I" || f == "-L" || f == "-idirafter":
			if i+1 < len(fields) {
				out = append(out, fields[i+1])
				i++
			}
		case strings.HasPrefix(f, "-isystem"):
			out = append(out, strings.TrimPrefix(f, "-isystem"))
		case strings.HasPrefix(f, "-idirafter"):
			out = append(out, strings.TrimPrefix(f, "-idirafter"))
		case strings.HasPrefix(f, "-I"), strings.HasPrefix(f, "-L"), strings.HasPrefix(f, "-B"):
			out = append(out, f[2:])
		case strings.HasPrefix(f, "--sysroot="):
			out = append(out, strings.TrimPrefix(f, "--sysroot="))
		case strings.HasPrefix(f, "-Wl,"):
			parts := strings.Split(strings.TrimPrefix(f, "-Wl,"), ",")
			for j := 0; j+1 < len(parts); j++ {
				switch parts[j] {
				case "-rpath-link", "-rpath", "-L":
					out = append(out, parts[j+1])
					j++
				}
			}
		}
	}
	return out
}

func isHostDefault(p string) bool {
	for _, h := range HostDefaultPaths {
		if p == h {
			return true
		}
	}
	return strings.HasPrefix(p, "/usr/local/")
}

func underAny(p string, roots []string) bool {
	for _, r := range roots {
		r = filepath.Clean(r)
		if p == r || strings.HasPrefix(p, r+"/") {
			return true
		}
	}
	return false
}
