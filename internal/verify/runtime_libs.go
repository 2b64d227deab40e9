package verify

import "strings"

// RuntimeRegistry recognizes the C and C++ runtime libraries every toolchain
// sysroot provides. A binary needing one of these does not have to find it
// in the output tree or the dependency roots.
type RuntimeRegistry struct {
	// sonames are matched exactly.
	sonames map[string]bool

	// sonamePrefixes match families such as the NSS modules and the
	// sanitizer runtimes, whose version suffixes vary.
	sonamePrefixes []string

	// pathVariablePrefixes mark runtime-expanded search paths.
	pathVariablePrefixes []string
}

// DefaultRuntime covers glibc, the dynamic linker and the GCC runtime.
var DefaultRuntime = &RuntimeRegistry{
	sonames: map[string]bool{
		// glibc
		"libc.so.6":       true,
		"libm.so.6":       true,
		"libdl.so.2":      true,
		"libpthread.so.0": true,
		"librt.so.1":      true,
		"libutil.so.1":    true,
		"libresolv.so.2":  true,
		"libcrypt.so.1":   true,
		"libcrypt.so.2":   true,
		"libmvec.so.1":    true,
		"libnsl.so.1":     true,

		// Dynamic linker and kernel vDSO
		"ld-linux-x86-64.so.2": true,
		"linux-vdso.so.1":      true,

		// GCC runtime
		"libstdc++.so.6":   true,
		"libgcc_s.so.1":    true,
		"libatomic.so.1":   true,
		"libgomp.so.1":     true,
		"libquadmath.so.0": true,
	},
	sonamePrefixes: []string{
		"libnss_",
		"libasan.so",
		"libtsan.so",
		"libubsan.so",
		"ld-linux-",
	},
	pathVariablePrefixes: []string{
		"$ORIGIN",
		"${ORIGIN}",
		"$LIB",
		"${LIB}",
		"$PLATFORM",
		"${PLATFORM}",
	},
}

// IsRuntimeLibrary reports whether soname is provided by the toolchain runtime.
func (r *RuntimeRegistry) IsRuntimeLibrary(soname string) bool {
	if r.sonames[soname] {
		return true
	}
	for _, p := range r.sonamePrefixes {
		if strings.HasPrefix(soname, p) {
			return true
		}
	}
	return false
}

// IsPathVariable reports whether a search path entry is expanded by the
// dynamic linker at run time.
func (r *RuntimeRegistry) IsPathVariable(p string) bool {
	for _, prefix := range r.pathVariablePrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}
