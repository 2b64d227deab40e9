package buildenv

import (
	"os"
	"strings"

	"github.com/buckos/pkgbuild/internal/stage"
)

// Passthrough lists the variables copied from the inherited environment.
var Passthrough = []string{"HOME", "USER", "LOGNAME", "TMPDIR", "TEMP", "TMP", "TERM"}

// DeterminismPins are fixed for every build so outputs do not depend on
// the machine that produced them.
var DeterminismPins = map[string]string{
	"LC_ALL":                    "C",
	"LANG":                      "C",
	"SOURCE_DATE_EPOCH":         "315576000",
	"CCACHE_DISABLE":            "1",
	"RUSTC_WRAPPER":             "",
	"CARGO_BUILD_RUSTC_WRAPPER": "",
}

// SourceDateEpoch is the pinned SOURCE_DATE_EPOCH as a Unix time.
const SourceDateEpoch int64 = 315576000

// Base is the explicit inherited environment a composition starts from.
// Only passthrough variables, PATH and the search variables are retained;
// everything else in the caller's environment is dropped.
type Base map[string]string

// BaseFromEnviron filters an os.Environ style list.
func BaseFromEnviron(environ []string) Base {
	keep := make(map[string]bool, len(Passthrough)+len(stage.SearchVars)+1)
	for _, k := range Passthrough {
		keep[k] = true
	}
	for _, k := range stage.SearchVars {
		keep[k] = true
	}
	keep["PATH"] = true

	b := make(Base)
	for _, e := range environ {
		k, v, ok := strings.Cut(e, "=")
		if ok && keep[k] {
			b[k] = v
		}
	}
	return b
}

// BaseFromProcess captures the current process environment.
func BaseFromProcess() Base {
	return BaseFromEnviron(os.Environ())
}

// PathList splits a colon-separated variable, dropping empty elements.
func (b Base) PathList(name string) []string {
	var out []string
	for _, p := range strings.Split(b[name], ":") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
