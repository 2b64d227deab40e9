// Package buildenv composes the environment every phase of a package build
// runs with. Composition is a pure function of its Input: the same
// dependency roots, toolchain selection, stage and extra flags always yield
// the same variables.
package buildenv

import (
	"fmt"
	"sort"
	"strings"

	"github.com/buckos/pkgbuild/internal/builderr"
	"github.com/buckos/pkgbuild/internal/depscan"
	"github.com/buckos/pkgbuild/internal/stage"
	"github.com/buckos/pkgbuild/internal/toolchain"
)

// DefaultOptFlags seed CFLAGS and CXXFLAGS.
const DefaultOptFlags = "-O2 -pipe"

// ExtraFlags are package-declared flags appended after everything composed.
type ExtraFlags struct {
	CFlags   []string `toml:"cflags" yaml:"cflags" json:"cflags,omitempty"`
	CXXFlags []string `toml:"cxxflags" yaml:"cxxflags" json:"cxxflags,omitempty"`
	CPPFlags []string `toml:"cppflags" yaml:"cppflags" json:"cppflags,omitempty"`
	LDFlags  []string `toml:"ldflags" yaml:"ldflags" json:"ldflags,omitempty"`
}

// Input is everything a composition depends on.
type Input struct {
	// Package identifies the build in errors.
	Package string
	Stage   stage.Stage
	Base    Base
	Scan    *depscan.Result
	// Toolchain may be nil, meaning host identities.
	Toolchain *toolchain.Selection
	Extra     ExtraFlags
	// ExtraEnv holds package-declared variables. Protected names are rejected.
	ExtraEnv map[string]string
	// WrapperDir holds the pkg-config wrapper and leads PATH when set.
	WrapperDir string
	// HelperDir exposes the host helper programs in STAGE2.
	HelperDir string
}

// BuildEnvironment is a composed environment.
type BuildEnvironment struct {
	Stage     stage.Stage
	Binaries  toolchain.Binaries
	Sysroot   string
	Variables *Variables
	// Path is PATH as a list, in search order.
	Path []string
}

// Environ renders the variables for exec.
func (e *BuildEnvironment) Environ() []string { return e.Variables.Environ() }

// Lookup returns a variable's value.
func (e *BuildEnvironment) Lookup(name string) (string, bool) { return e.Variables.Get(name) }

// With returns a copy of e with additional variables set.
func (e *BuildEnvironment) With(kv map[string]string) *BuildEnvironment {
	out := *e
	out.Variables = e.Variables.Clone()
	for k, v := range kv {
		out.Variables.Set(k, v)
	}
	return &out
}

// ProtectedVars cannot be set through ExtraEnv; packages extend them with
// ExtraFlags instead.
func ProtectedVars() []string {
	names := []string{"PATH", "CHOST", "CBUILD", "CROSS_COMPILE", "PYTHONPATH", "PERL5LIB", "ACLOCAL_PATH", "CMAKE_PREFIX_PATH"}
	names = append(names, stage.SearchVars...)
	for _, kv := range toolchain.HostBinaries().Vars() {
		names = append(names, kv[0])
	}
	sort.Strings(names)
	return names
}

func isProtected(name string) bool {
	for _, p := range ProtectedVars() {
		if p == name {
			return true
		}
	}
	return false
}

// Compose builds the environment for in. Layers apply in order, later
// layers extending earlier ones: defaults, stage policy, dependency paths,
// toolchain, package flags. For hermetic stages the result is checked
// against the isolation rules before it is returned.
func Compose(in Input) (*BuildEnvironment, error) {
	policy := stage.PolicyFor(in.Stage)
	res := in.Scan
	if res == nil {
		res = &depscan.Result{}
	}
	sel := in.Toolchain
	if sel == nil {
		sel = &toolchain.Selection{Stage: in.Stage, Binaries: toolchain.HostBinaries()}
	}

	vars := NewVariables()

	// Defaults.
	for k, v := range DeterminismPins {
		vars.Set(k, v)
	}
	for _, k := range Passthrough {
		if v, ok := in.Base[k]; ok {
			vars.Set(k, v)
		}
	}
	vars.Set("CFLAGS", DefaultOptFlags)
	vars.Set("CXXFLAGS", DefaultOptFlags)

	// Dependency paths. Inherited search values follow only when the
	// policy keeps them.
	inherited := func(name string) []string {
		if !policy.AllowHostLibraries || policy.Clears(name) {
			return nil
		}
		return in.Base.PathList(name)
	}

	includeFlags := prefixEach("-I", res.IncludeDirs)
	includeFlags = append(includeFlags, prefixEach("-I", ResolveSubdirs(res))...)
	vars.AppendFlags("CPPFLAGS", includeFlags...)

	var ldflags []string
	for _, lib := range res.LibDirs {
		ldflags = append(ldflags, "-L"+lib, "-Wl,-rpath-link,"+lib)
	}
	vars.AppendFlags("LDFLAGS", ldflags...)

	vars.AppendList("LIBRARY_PATH", ":", append(append([]string(nil), res.LibDirs...), inherited("LIBRARY_PATH")...)...)
	vars.AppendList("CPATH", ":", append(append([]string(nil), res.IncludeDirs...), inherited("CPATH")...)...)
	for _, name := range []string{"C_INCLUDE_PATH", "CPLUS_INCLUDE_PATH", "PKG_CONFIG_SYSROOT_DIR"} {
		vars.AppendList(name, ":", inherited(name)...)
	}
	vars.AppendList("PKG_CONFIG_PATH", ":", append(append([]string(nil), res.PkgConfigDirs...), inherited("PKG_CONFIG_PATH")...)...)
	if in.Stage.Hermetic() {
		// An explicit libdir keeps pkg-config away from its compiled-in
		// host directories.
		vars.Set("PKG_CONFIG_LIBDIR", strings.Join(res.PkgConfigDirs, ":"))
	} else {
		vars.AppendList("PKG_CONFIG_LIBDIR", ":", inherited("PKG_CONFIG_LIBDIR")...)
	}
	if in.Stage != stage.Stage2 {
		// Stage2 still runs host helpers, which must not load target libraries.
		vars.AppendList("LD_LIBRARY_PATH", ":", append(append([]string(nil), res.LibDirs...), inherited("LD_LIBRARY_PATH")...)...)
	}
	vars.AppendList("PYTHONPATH", ":", res.PythonDirs...)
	vars.AppendList("PERL5LIB", ":", res.PerlDirs...)
	vars.AppendList("ACLOCAL_PATH", ":", res.AclocalDirs...)
	vars.AppendList("CMAKE_PREFIX_PATH", ":", res.CmakePrefixes...)

	// Toolchain.
	for _, kv := range sel.Binaries.Vars() {
		vars.Set(kv[0], kv[1])
	}
	if sel.Sysroot != "" {
		flag := "--sysroot=" + sel.Sysroot
		vars.AppendFlags("CFLAGS", flag)
		vars.AppendFlags("CXXFLAGS", flag)
		vars.AppendFlags("LDFLAGS", flag)
	}
	if sel.BinDir != "" {
		hint := "-B" + sel.BinDir
		vars.AppendFlags("CFLAGS", hint)
		vars.AppendFlags("CXXFLAGS", hint)
		vars.AppendFlags("LDFLAGS", hint)
	}
	// Header flags go to the compiler-specific variables, never CPPFLAGS:
	// autotools places CPPFLAGS ahead of CXXFLAGS, which would put the C
	// headers in front of the C++ ones.
	vars.AppendFlags("CFLAGS", sel.CHeaderFlags...)
	vars.AppendFlags("CXXFLAGS", sel.HeaderFlags...)
	if sel.Cross() {
		vars.Set("CHOST", sel.Triple)
		vars.Set("CROSS_COMPILE", sel.Triple+"-")
	}
	if sel.BuildTriple != "" {
		vars.Set("CBUILD", sel.BuildTriple)
	}

	// Package flags.
	vars.AppendFlags("CFLAGS", in.Extra.CFlags...)
	vars.AppendFlags("CXXFLAGS", in.Extra.CXXFlags...)
	vars.AppendFlags("CPPFLAGS", in.Extra.CPPFlags...)
	vars.AppendFlags("LDFLAGS", in.Extra.LDFlags...)
	extraKeys := make([]string, 0, len(in.ExtraEnv))
	for k := range in.ExtraEnv {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		if isProtected(k) {
			return nil, &builderr.ConfigurationError{
				Package: in.Package,
				Stage:   in.Stage.String(),
				Detail:  fmt.Sprintf("package environment may not override %s; use flags to extend it", k),
			}
		}
		vars.Set(k, in.ExtraEnv[k])
	}

	path := composePath(in, policy, res, sel)
	vars.Set("PATH", strings.Join(path, ":"))

	env := &BuildEnvironment{
		Stage:     in.Stage,
		Binaries:  sel.Binaries,
		Sysroot:   sel.Sysroot,
		Variables: vars,
		Path:      path,
	}

	if in.Stage.Hermetic() {
		roots := make([]string, 0, len(res.Roots))
		for _, r := range res.Roots {
			roots = append(roots, r.Path)
		}
		if v := CheckIsolation(vars, roots); len(v) > 0 {
			return nil, &builderr.ConfigurationError{
				Package: in.Package,
				Stage:   in.Stage.String(),
				Detail:  "isolation violated: " + v[0].String(),
			}
		}
	}
	return env, nil
}

func composePath(in Input, policy stage.IsolationPolicy, res *depscan.Result, sel *toolchain.Selection) []string {
	var path []string
	seen := make(map[string]bool)
	add := func(dirs ...string) {
		for _, d := range dirs {
			if d != "" && !seen[d] {
				seen[d] = true
				path = append(path, d)
			}
		}
	}
	add(in.WrapperDir)
	add(res.BinDirs...)
	add(sel.BinDir)
	switch {
	case policy.AllowHostPathFallback:
		add(in.Base.PathList("PATH")...)
	case len(policy.HostHelpers) > 0:
		add(in.HelperDir)
	}
	return path
}

func prefixEach(prefix string, dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, prefix+d)
	}
	return out
}
