package depscan

import (
	"regexp"
	"strings"
)

// ToolDirs are the directories searched for compiler and linker executables.
var ToolDirs = []string{"tools/bin", "bin", "usr/bin"}

// crossSuffixes are the tool names that identify a cross toolchain.
var crossSuffixes = []string{"-gcc", "-ld"}

// tripleRe accepts arch-vendor-os with an optional fourth component.
var tripleRe = regexp.MustCompile(`^[A-Za-z0-9_.]+-[A-Za-z0-9_.]+-[A-Za-z0-9_.]+(-[A-Za-z0-9_.]+)?$`)

// ParseCrossTool splits a cross tool executable name such as
// "x86_64-buckos-linux-gnu-gcc" into its target triple and tool suffix.
func ParseCrossTool(name string) (triple, tool string, ok bool) {
	for _, suffix := range crossSuffixes {
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		t := strings.TrimSuffix(name, suffix)
		if tripleRe.MatchString(t) {
			return t, strings.TrimPrefix(suffix, "-"), true
		}
	}
	return "", "", false
}

// ValidTriple reports whether t looks like a GNU target triple.
func ValidTriple(t string) bool {
	return tripleRe.MatchString(t)
}
