package toolchain

import (
	"path/filepath"
	"strings"

	"github.com/buckos/pkgbuild/internal/builderr"
	"github.com/buckos/pkgbuild/internal/depscan"
	"github.com/buckos/pkgbuild/internal/log"
	"github.com/buckos/pkgbuild/internal/stage"
)

// Binaries holds the resolved tool identities. A value is either an
// absolute path or a bare name resolved on the composed PATH.
type Binaries struct {
	CC      string
	CXX     string
	AR      string
	AS      string
	LD      string
	NM      string
	RANLIB  string
	STRIP   string
	OBJCOPY string
	OBJDUMP string
	READELF string
}

// toolNames maps environment variable names to unprefixed tool names, in
// the order they are rendered.
var toolNames = []struct{ Var, Tool string }{
	{"CC", "gcc"},
	{"CXX", "g++"},
	{"AR", "ar"},
	{"AS", "as"},
	{"LD", "ld"},
	{"NM", "nm"},
	{"RANLIB", "ranlib"},
	{"STRIP", "strip"},
	{"OBJCOPY", "objcopy"},
	{"OBJDUMP", "objdump"},
	{"READELF", "readelf"},
}

// Vars returns the binaries as ordered NAME=value pairs.
func (b Binaries) Vars() [][2]string {
	vals := []string{b.CC, b.CXX, b.AR, b.AS, b.LD, b.NM, b.RANLIB, b.STRIP, b.OBJCOPY, b.OBJDUMP, b.READELF}
	out := make([][2]string, 0, len(toolNames))
	for i, t := range toolNames {
		out = append(out, [2]string{t.Var, vals[i]})
	}
	return out
}

func (b *Binaries) set(varName, value string) {
	switch varName {
	case "CC":
		b.CC = value
	case "CXX":
		b.CXX = value
	case "AR":
		b.AR = value
	case "AS":
		b.AS = value
	case "LD":
		b.LD = value
	case "NM":
		b.NM = value
	case "RANLIB":
		b.RANLIB = value
	case "STRIP":
		b.STRIP = value
	case "OBJCOPY":
		b.OBJCOPY = value
	case "OBJDUMP":
		b.OBJDUMP = value
	case "READELF":
		b.READELF = value
	}
}

// HostBinaries are the generic identities used when no toolchain root applies.
func HostBinaries() Binaries {
	var b Binaries
	for _, t := range toolNames {
		b.set(t.Var, t.Tool)
	}
	return b
}

// Selection is the toolchain a build uses.
type Selection struct {
	Stage stage.Stage
	// Triple is the target triple for cross stages, empty otherwise.
	Triple string
	// BuildTriple is the machine running the build.
	BuildTriple string
	Binaries    Binaries
	Sysroot     string
	// HeaderFlags are -isystem flags in search order: C++ library headers
	// always precede C library headers.
	HeaderFlags []string
	// CHeaderFlags is the C library subset of HeaderFlags, for C-only
	// compiles.
	CHeaderFlags []string
	// BinDir is the directory holding the compiler, used as a -B hint.
	BinDir string
	// Root is the dependency root providing the compiler.
	Root string
}

// Cross reports whether the selection targets a different triple.
func (s *Selection) Cross() bool { return s.Triple != "" }

// Options tune selection.
type Options struct {
	// HostTriple is recorded as the build triple. Required for STAGE1
	// and STAGE2 cross builds.
	HostTriple string
	Logger     log.Logger
}

// Select chooses the toolchain for st from det.
func Select(st stage.Stage, det *DetectionResult, opts Options) (*Selection, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoop()
	}
	if det == nil {
		det = &DetectionResult{}
	}
	sel := &Selection{Stage: st, BuildTriple: opts.HostTriple}

	switch st {
	case stage.None, stage.Host:
		sel.Binaries = HostBinaries()

	case stage.Stage1:
		cross, ok := det.FirstCross(false)
		if !ok {
			logger.Warn("no cross toolchain among dependency roots, using host compiler",
				"stage", st.String(), "searched", strings.Join(det.Roots, ", "))
			sel.Binaries = HostBinaries()
			return sel, nil
		}
		sel.Triple = cross.Triple
		sel.Root = cross.Root
		sel.BinDir = cross.BinDir
		sel.Binaries = det.crossBinaries(cross.Triple, func(tool string) string { return tool })
		if sr, ok := det.SysrootFor(cross.Triple); ok && sr.Nested {
			sel.Sysroot = sr.Path
		}
		logger.Debug("selected cross toolchain", "triple", cross.Triple, "root", cross.Root)

	case stage.Stage2:
		cross, ok := det.FirstCross(true)
		if !ok {
			return nil, &builderr.ConfigurationError{
				Stage:    st.String(),
				What:     "cross compiler",
				Pattern:  "<triple>-gcc in " + strings.Join(depscan.ToolDirs, ", "),
				Searched: append([]string(nil), det.Roots...),
			}
		}
		sr, ok := det.SysrootFor(cross.Triple)
		if !ok {
			return nil, &builderr.ConfigurationError{
				Stage: st.String(),
				What:  "sysroot for " + cross.Triple,
				Pattern: "tools/" + cross.Triple + "/sys-root, " + cross.Triple + "/sys-root, tools/sysroot, sysroot, or a root providing " +
					strings.Join(LibcCandidates, " | "),
				Searched: append([]string(nil), det.Roots...),
			}
		}
		sel.Triple = cross.Triple
		sel.Root = cross.Root
		sel.BinDir = cross.BinDir
		sel.Sysroot = sr.Path
		// A missing binutil stays target-prefixed; the host tool would
		// silently produce objects for the wrong machine.
		sel.Binaries = det.crossBinaries(cross.Triple, func(tool string) string { return cross.Triple + "-" + tool })
		sel.HeaderFlags, sel.CHeaderFlags = det.headerFlags(cross.Triple, sr)
		logger.Debug("selected cross toolchain", "triple", cross.Triple, "root", cross.Root, "sysroot", sr.Path)

	case stage.Stage3:
		if len(det.Native) == 0 {
			return nil, &builderr.ConfigurationError{
				Stage:    st.String(),
				What:     "native compiler",
				Pattern:  "gcc in " + strings.Join(depscan.ToolDirs, ", "),
				Searched: append([]string(nil), det.Roots...),
			}
		}
		native := det.Native[0]
		sel.Root = native.Root
		sel.BinDir = native.BinDir
		sel.Binaries = det.nativeBinaries()
		logger.Debug("selected native toolchain", "root", native.Root, "bin", native.BinDir)
	}
	return sel, nil
}

// crossBinaries resolves each tool as <triple>-<tool> from the first cross
// toolchain for triple that has it, or uses missing(tool) otherwise.
func (det *DetectionResult) crossBinaries(triple string, missing func(string) string) Binaries {
	var b Binaries
	for _, t := range toolNames {
		value := missing(t.Tool)
		for _, c := range det.Cross {
			if c.Triple == triple && c.Tools[t.Tool] {
				value = filepath.Join(c.BinDir, triple+"-"+t.Tool)
				break
			}
		}
		b.set(t.Var, value)
	}
	return b
}

// nativeBinaries resolves each tool from the selected compiler's directory,
// then from any other root's tool directory; tools absent from every root
// stay bare names.
func (det *DetectionResult) nativeBinaries() Binaries {
	var b Binaries
	dirs := append([]NativeToolchain{det.Native[0]}, det.Unprefixed...)
	for _, t := range toolNames {
		value := t.Tool
		for _, n := range dirs {
			if n.Tools[t.Tool] {
				value = filepath.Join(n.BinDir, t.Tool)
				break
			}
		}
		b.set(t.Var, value)
	}
	return b
}

// headerFlags orders C++ library headers before C library headers. The
// C++ wrappers reach the C headers with #include_next, which only searches
// directories after their own.
func (det *DetectionResult) headerFlags(triple string, sr Sysroot) (all, cOnly []string) {
	if h, ok := det.CxxFor(triple, sr.Path); ok {
		all = append(all, "-isystem", h.Dir)
		if h.TargetDir != "" {
			all = append(all, "-isystem", h.TargetDir)
		}
	}
	if sr.IncludeDir != "" {
		cOnly = []string{"-isystem", sr.IncludeDir}
		all = append(all, cOnly...)
	}
	return all, cOnly
}
