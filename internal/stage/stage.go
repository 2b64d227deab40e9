// Package stage defines the bootstrap stages a package can be built in and
// the isolation policy each stage imposes.
package stage

import (
	"fmt"
	"strings"
)

// Stage is a bootstrap phase. It decides where the toolchain comes from and
// how much of the host the build may see.
type Stage int

const (
	// None builds with whatever the host provides. It is the default.
	None Stage = iota
	// Host builds tools that run on the build machine.
	Host
	// Stage1 uses the host compiler to build a cross toolchain.
	Stage1
	// Stage2 cross-compiles the target system with the Stage1 toolchain.
	Stage2
	// Stage3 rebuilds natively with the Stage2 compiler, with no host fallback.
	Stage3
)

var stageNames = [...]string{
	None:   "none",
	Host:   "host",
	Stage1: "stage1",
	Stage2: "stage2",
	Stage3: "stage3",
}

func (s Stage) String() string {
	if s < None || s > Stage3 {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Parse converts a stage name to a Stage. The empty string is None.
func Parse(name string) (Stage, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return None, nil
	}
	for i, s := range stageNames {
		if s == n {
			return Stage(i), nil
		}
	}
	return None, fmt.Errorf("unknown stage %q (want one of %s)", name, strings.Join(stageNames[:], ", "))
}

// Hermetic reports whether the stage rebuilds every search variable from
// dependency roots alone.
func (s Stage) Hermetic() bool {
	return s == Stage2 || s == Stage3
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so stages decode from
// TOML, YAML and JSON request files.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
