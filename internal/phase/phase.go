// Package phase runs a package's build phases in their fixed order through
// the sandbox, stopping at the first failure.
package phase

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Name is a build phase.
type Name string

// Phase names in execution order.
const (
	Prepare   Name = "prepare"
	Configure Name = "configure"
	Compile   Name = "compile"
	Test      Name = "test"
	Install   Name = "install"
)

// Order is the canonical phase order.
var Order = []Name{Prepare, Configure, Compile, Test, Install}

// Index returns the position of n in Order, or -1.
func (n Name) Index() int {
	for i, o := range Order {
		if o == n {
			return i
		}
	}
	return -1
}

// Phase is one step of a build. Exactly one of Args and Script is set.
// Script bodies run under "sh -e -c"; they are data, never assembled from
// fragments.
type Phase struct {
	Name   Name     `toml:"name" yaml:"name" json:"name"`
	Args   []string `toml:"args" yaml:"args" json:"args,omitempty"`
	Script string   `toml:"script" yaml:"script" json:"script,omitempty"`
	// Dir is relative to the source directory.
	Dir string `toml:"dir" yaml:"dir" json:"dir,omitempty"`
}

// Command returns the argument vector the phase runs.
func (p Phase) Command() []string {
	if p.Script != "" {
		return []string{"sh", "-e", "-c", p.Script}
	}
	return append([]string(nil), p.Args...)
}

// Validate checks a single phase.
func (p Phase) Validate() error {
	if p.Name.Index() < 0 {
		return fmt.Errorf("unknown phase %q", p.Name)
	}
	hasArgs := len(p.Args) > 0
	hasScript := strings.TrimSpace(p.Script) != ""
	switch {
	case hasArgs && hasScript:
		return fmt.Errorf("phase %s sets both args and script", p.Name)
	case !hasArgs && !hasScript:
		return fmt.Errorf("phase %s has neither args nor script", p.Name)
	case hasArgs && p.Args[0] == "":
		return fmt.Errorf("phase %s has an empty program name", p.Name)
	}
	if strings.HasPrefix(p.Dir, "/") || strings.Contains("/"+p.Dir+"/", "/../") {
		return fmt.Errorf("phase %s dir %q must stay inside the source directory", p.Name, p.Dir)
	}
	return nil
}

// ValidateOrder checks that phases are valid and appear in strictly
// increasing canonical order. Phases may be omitted.
func ValidateOrder(phases []Phase) error {
	var errs []error
	last := -1
	for _, p := range phases {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		idx := p.Name.Index()
		if idx <= last {
			errs = append(errs, fmt.Errorf("phase %s is out of order or repeated", p.Name))
			continue
		}
		last = idx
	}
	return errors.Join(errs...)
}

// Context carries the package facts exported to every phase.
type Context struct {
	Name      string
	Version   string
	Category  string
	DestDir   string
	SourceDir string
	WorkDir   string
	Use       []string
	// Jobs sets MAKEFLAGS when positive.
	Jobs int
}

// Vars returns the per-build variables added to the composed environment.
func (c Context) Vars() map[string]string {
	use := append([]string(nil), c.Use...)
	sort.Strings(use)
	vars := map[string]string{
		"DESTDIR":      c.DestDir,
		"SRCDIR":       c.SourceDir,
		"WORKDIR":      c.WorkDir,
		"PKG_NAME":     c.Name,
		"PKG_VERSION":  c.Version,
		"PKG_CATEGORY": c.Category,
		"USE":          strings.Join(use, " "),
	}
	if c.Jobs > 0 {
		vars["MAKEFLAGS"] = "-j" + strconv.Itoa(c.Jobs)
	}
	return vars
}
