// Package platform answers questions about the build machine: its GNU
// target triple and C library.
package platform

import (
	"os"
	"runtime"
)

// archNames maps GOARCH values onto the GNU machine name used in triples.
var archNames = map[string]string{
	"amd64":    "x86_64",
	"386":      "i686",
	"arm64":    "aarch64",
	"arm":      "armv7l",
	"riscv64":  "riscv64",
	"ppc64le":  "powerpc64le",
	"ppc64":    "powerpc64",
	"s390x":    "s390x",
	"loong64":  "loongarch64",
	"mips64le": "mips64el",
}

// HostTriple returns the build machine's triple, for example
// "x86_64-pc-linux-gnu". It is the default build triple for Stage1.
func HostTriple() string {
	return TripleFor(runtime.GOARCH, DetectLibc())
}

// TripleFor assembles a Linux triple from a GOARCH value and libc name.
func TripleFor(goarch, libc string) string {
	arch, ok := archNames[goarch]
	if !ok {
		arch = goarch
	}
	vendor := "unknown"
	if arch == "x86_64" || arch == "i686" {
		vendor = "pc"
	}
	env := "gnu"
	if libc == "musl" {
		env = "musl"
	}
	if arch == "armv7l" {
		env += "eabihf"
	}
	return arch + "-" + vendor + "-linux-" + env
}

// Hostname returns the build host name, or "unknown".
func Hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}
