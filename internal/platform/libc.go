package platform

import (
	"bytes"
	"debug/elf"
	"path/filepath"
	"strings"
)

// DetectLibc returns "musl" or "glibc" for the build machine.
//
// The ELF interpreter of /bin/sh answers which C library dynamically linked
// host programs use. When /bin/sh cannot be parsed the musl loader is looked
// for under /lib.
func DetectLibc() string {
	if libc := libcFromBinary("/bin/sh"); libc != "" {
		return libc
	}
	return DetectLibcWithRoot("")
}

func libcFromBinary(path string) string {
	f, err := elf.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_INTERP {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil {
			return ""
		}
		if strings.Contains(string(bytes.TrimRight(data, "\x00")), "musl") {
			return "musl"
		}
		return "glibc"
	}
	return ""
}

// DetectLibcWithRoot checks for the musl dynamic loader below root. An empty
// root means the real filesystem.
func DetectLibcWithRoot(root string) string {
	matches, _ := filepath.Glob(filepath.Join(root, "lib", "ld-musl-*.so.1"))
	if len(matches) > 0 {
		return "musl"
	}
	return "glibc"
}
