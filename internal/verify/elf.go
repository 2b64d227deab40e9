package verify

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"os"
	"strings"
)

// Security limits for RPATH processing
const (
	// MaxRpathEntries is the maximum number of RPATH entries allowed per binary
	MaxRpathEntries = 100

	// MaxPathLength is the maximum length of any path (matches Linux PATH_MAX)
	MaxPathLength = 4096
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// ELFInfo is the dynamic-linking view of one ELF file.
type ELFInfo struct {
	Path string
	// Interp is the PT_INTERP program interpreter, empty for static files
	// and shared libraries.
	Interp string
	// Runpath holds DT_RUNPATH entries, or DT_RPATH when RUNPATH is absent.
	Runpath []string
	Needed  []string
}

// IsELF reports whether path starts with the ELF magic.
func IsELF(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()
	magic := make([]byte, len(elfMagic))
	if _, err := io.ReadFull(f, magic); err != nil {
		return false
	}
	return bytes.Equal(magic, elfMagic)
}

// InspectELF reads the interpreter, search path and needed libraries of an
// ELF file.
func InspectELF(path string) (info *ELFInfo, err error) {
	// Panic recovery for robustness against malformed input
	defer func() {
		if r := recover(); r != nil {
			info = nil
			err = &ValidationError{
				Category: ErrCorrupted,
				Path:     path,
				Message:  fmt.Sprintf("parser panic: %v", r),
			}
		}
	}()

	f, err := elf.Open(path)
	if err != nil {
		return nil, &ValidationError{Category: ErrUnreadable, Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	info = &ELFInfo{Path: path}
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_INTERP {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, readErr := prog.ReadAt(data, 0); readErr != nil && readErr != io.EOF {
			return nil, &ValidationError{
				Category: ErrCorrupted,
				Path:     path,
				Message:  fmt.Sprintf("cannot read PT_INTERP segment: %v", readErr),
			}
		}
		info.Interp = string(bytes.TrimRight(data, "\x00"))
		break
	}

	// Static executables have no dynamic section; that is not an error.
	if f.Section(".dynamic") == nil {
		return info, nil
	}

	// Prefer DT_RUNPATH, as the dynamic linker does.
	if runpaths, err := f.DynString(elf.DT_RUNPATH); err == nil && len(runpaths) > 0 {
		if info.Runpath, err = parseRpathString(runpaths[0], path); err != nil {
			return nil, err
		}
	} else if rpaths, err := f.DynString(elf.DT_RPATH); err == nil && len(rpaths) > 0 {
		if info.Runpath, err = parseRpathString(rpaths[0], path); err != nil {
			return nil, err
		}
	}

	needed, err := f.DynString(elf.DT_NEEDED)
	if err != nil {
		return nil, &ValidationError{Category: ErrCorrupted, Path: path, Err: err}
	}
	info.Needed = needed
	return info, nil
}

// parseRpathString parses a colon-separated RPATH string into individual paths.
// Enforces the RPATH limit and path length limits.
func parseRpathString(rpathStr string, binaryPath string) ([]string, error) {
	if rpathStr == "" {
		return nil, nil
	}

	parts := strings.Split(rpathStr, ":")
	if len(parts) > MaxRpathEntries {
		return nil, &ValidationError{
			Category: ErrRpathLimitExceeded,
			Path:     binaryPath,
			Message:  fmt.Sprintf("binary has %d RPATH entries (limit: %d)", len(parts), MaxRpathEntries),
		}
	}

	var rpaths []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(p) > MaxPathLength {
			return nil, &ValidationError{
				Category: ErrPathLengthExceeded,
				Path:     binaryPath,
				Message:  fmt.Sprintf("RPATH entry exceeds %d characters", MaxPathLength),
			}
		}
		rpaths = append(rpaths, p)
	}
	return rpaths, nil
}
