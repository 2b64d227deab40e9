package stage

// SearchVars are the inherited variables that point compilers, linkers and
// pkg-config at library and header locations. Hermetic stages clear them.
var SearchVars = []string{
	"LIBRARY_PATH",
	"LD_LIBRARY_PATH",
	"CPATH",
	"C_INCLUDE_PATH",
	"CPLUS_INCLUDE_PATH",
	"PKG_CONFIG_PATH",
	"PKG_CONFIG_LIBDIR",
	"PKG_CONFIG_SYSROOT_DIR",
}

// HostHelpers are the host programs a Stage2 build may still run. Stage2's
// own cross-built utilities cannot execute on the build machine yet.
var HostHelpers = []string{
	"sh", "bash", "make", "m4",
	"sed", "awk", "gawk", "grep", "egrep", "fgrep",
	"tr", "cut", "sort", "uniq", "head", "tail", "wc", "tee",
	"cat", "cp", "mv", "rm", "mkdir", "rmdir", "ln", "ls", "chmod", "touch",
	"find", "xargs", "basename", "dirname", "readlink", "realpath", "mktemp",
	"expr", "test", "true", "false", "env", "printf", "echo", "date", "uname", "sleep",
	"install", "diff", "cmp", "patch", "tar", "gzip",
}

// IsolationPolicy describes how much host state a stage may observe.
type IsolationPolicy struct {
	Stage Stage

	// AllowHostPathFallback keeps the inherited PATH after dependency bins.
	AllowHostPathFallback bool

	// AllowHostLibraries keeps inherited search variables after dependency entries.
	AllowHostLibraries bool

	// RequireCrossCompiler makes a missing <triple>-gcc fatal.
	RequireCrossCompiler bool

	// RequireNativeCompiler makes a missing dependency-provided gcc fatal.
	RequireNativeCompiler bool

	// ClearedHostVars are dropped from the base environment before composition.
	ClearedHostVars []string

	// HostHelpers are exposed through a helper directory when host PATH is denied.
	HostHelpers []string

	// NetworkIsolationRequested runs phases in a fresh network namespace.
	NetworkIsolationRequested bool

	// ContaminationScan enables the post-build ELF scan.
	ContaminationScan bool
}

// PolicyFor returns the isolation policy for s.
func PolicyFor(s Stage) IsolationPolicy {
	p := IsolationPolicy{Stage: s}
	switch s {
	case None, Host:
		p.AllowHostPathFallback = true
		p.AllowHostLibraries = true
	case Stage1:
		p.AllowHostPathFallback = true
		p.AllowHostLibraries = true
		p.NetworkIsolationRequested = true
	case Stage2:
		p.RequireCrossCompiler = true
		p.ClearedHostVars = append([]string(nil), SearchVars...)
		p.HostHelpers = append([]string(nil), HostHelpers...)
		p.NetworkIsolationRequested = true
	case Stage3:
		p.RequireNativeCompiler = true
		p.ClearedHostVars = append([]string(nil), SearchVars...)
		p.NetworkIsolationRequested = true
		p.ContaminationScan = true
	}
	return p
}

// Clears reports whether name is dropped from the inherited environment.
func (p IsolationPolicy) Clears(name string) bool {
	for _, v := range p.ClearedHostVars {
		if v == name {
			return true
		}
	}
	return false
}
