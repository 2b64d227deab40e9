// Package buildinfo reports the pkgbuild version from Go build metadata.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func (i Info) String() string {
	return fmt.Sprintf("pkgbuild %s (%s, %s)", i.Version, i.GoVersion, i.Platform)
}

// Version returns the version string for the current build: the module
// version for tagged installs, "dev-<hash>[-dirty]" for VCS builds, "dev"
// without VCS data and "unknown" when build info is unavailable.
func Version() string {
	return Read().Version
}

// Read collects Info for the running binary.
func Read() Info {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Info{Version: "unknown", GoVersion: runtime.Version(), Platform: runtime.GOOS + "/" + runtime.GOARCH}
	}
	return fromBuildInfo(info)
}

func fromBuildInfo(info *debug.BuildInfo) Info {
	out := Info{
		GoVersion: info.GoVersion,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if out.GoVersion == "" {
		out.GoVersion = runtime.Version()
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			out.Commit = setting.Value
		case "vcs.modified":
			out.Modified = setting.Value == "true"
		}
	}

	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		out.Version = info.Main.Version
		return out
	}
	out.Version = devVersion(out.Commit, out.Modified)
	return out
}

// devVersion builds "dev-<short hash>[-dirty]", or "dev" without a revision.
func devVersion(revision string, modified bool) string {
	if revision == "" {
		return "dev"
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	v := "dev-" + revision
	if modified {
		v += "-dirty"
	}
	return v
}
