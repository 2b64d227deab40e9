// Package request defines PackageBuildRequest, the already-resolved
// description of one package build, and loads it from TOML or YAML files.
package request

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/buckos/pkgbuild/internal/buildenv"
	"github.com/buckos/pkgbuild/internal/fetch"
	"github.com/buckos/pkgbuild/internal/phase"
	"github.com/buckos/pkgbuild/internal/stage"
	"github.com/buckos/pkgbuild/internal/verify"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)

// PackageBuildRequest is one package build. Dependency resolution has already
// happened: Roots lists the dependency outputs in priority order.
type PackageBuildRequest struct {
	Name     string `toml:"name" yaml:"name" json:"name"`
	Version  string `toml:"version" yaml:"version" json:"version"`
	Category string `toml:"category" yaml:"category" json:"category,omitempty"`

	// PackageType, Target and GraphHash are recorded in provenance as given.
	PackageType string `toml:"package_type" yaml:"package_type" json:"packageType,omitempty"`
	Target      string `toml:"target" yaml:"target" json:"target,omitempty"`
	GraphHash   string `toml:"graph_hash" yaml:"graph_hash" json:"graphHash,omitempty"`

	Stage stage.Stage `toml:"stage" yaml:"stage" json:"stage"`
	// BuildTriple is used by STAGE1; the host triple when empty.
	BuildTriple string `toml:"build_triple" yaml:"build_triple" json:"buildTriple,omitempty"`

	Use  []string `toml:"use" yaml:"use" json:"use,omitempty"`
	Jobs int      `toml:"jobs" yaml:"jobs" json:"jobs,omitempty"`

	Roots []string `toml:"roots" yaml:"roots" json:"roots,omitempty"`

	Dest    string `toml:"dest" yaml:"dest" json:"dest"`
	WorkDir string `toml:"work_dir" yaml:"work_dir" json:"workDir"`
	// SourceDir defaults to <work_dir>/src.
	SourceDir string `toml:"source_dir" yaml:"source_dir" json:"sourceDir,omitempty"`

	Sources []fetch.Source      `toml:"sources" yaml:"sources" json:"sources,omitempty"`
	Phases  []phase.Phase       `toml:"phases" yaml:"phases" json:"phases"`
	Flags   buildenv.ExtraFlags `toml:"flags" yaml:"flags" json:"flags"`
	Env     map[string]string   `toml:"env" yaml:"env" json:"env,omitempty"`

	// Contamination overrides the configured STAGE3 mode for this package.
	Contamination string `toml:"contamination" yaml:"contamination" json:"contamination,omitempty"`
}

// LogDir is where phase logs and the verification report go.
func (r *PackageBuildRequest) LogDir() string {
	return filepath.Join(r.WorkDir, "logs")
}

// SortedUse returns the USE flags sorted, without duplicates.
func (r *PackageBuildRequest) SortedUse() []string {
	seen := make(map[string]bool, len(r.Use))
	out := make([]string, 0, len(r.Use))
	for _, u := range r.Use {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// PhaseContext returns the per-build phase variables.
func (r *PackageBuildRequest) PhaseContext() phase.Context {
	return phase.Context{
		Name:      r.Name,
		Version:   r.Version,
		Category:  r.Category,
		DestDir:   r.Dest,
		SourceDir: r.SourceDir,
		WorkDir:   r.WorkDir,
		Use:       r.SortedUse(),
		Jobs:      r.Jobs,
	}
}

// Resolve makes relative paths absolute against base and fills defaults.
func (r *PackageBuildRequest) Resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	r.Dest = abs(r.Dest)
	r.WorkDir = abs(r.WorkDir)
	for i, root := range r.Roots {
		r.Roots[i] = abs(root)
	}
	for i := range r.Sources {
		r.Sources[i].KeyFile = abs(r.Sources[i].KeyFile)
		if r.Sources[i].Package == "" {
			r.Sources[i].Package = r.Name
		}
	}
	if r.SourceDir == "" && r.WorkDir != "" {
		r.SourceDir = filepath.Join(r.WorkDir, "src")
	} else if r.SourceDir != "" && !filepath.IsAbs(r.SourceDir) {
		r.SourceDir = filepath.Join(r.WorkDir, r.SourceDir)
	}
}

// Validate reports every problem found, joined.
func (r *PackageBuildRequest) Validate() error {
	var errs []error
	if !namePattern.MatchString(r.Name) {
		errs = append(errs, fmt.Errorf("invalid package name %q", r.Name))
	}
	if r.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}
	if r.Dest == "" {
		errs = append(errs, errors.New("dest is required"))
	}
	if r.WorkDir == "" {
		errs = append(errs, errors.New("work_dir is required"))
	}
	if r.Dest != "" && r.Dest == r.WorkDir {
		errs = append(errs, errors.New("dest and work_dir must differ"))
	}
	if r.Jobs < 0 {
		errs = append(errs, fmt.Errorf("jobs must not be negative, got %d", r.Jobs))
	}
	for _, root := range r.Roots {
		if !filepath.IsAbs(root) {
			errs = append(errs, fmt.Errorf("dependency root %q is not absolute", root))
		}
	}
	for i, s := range r.Sources {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("sources[%d]: %w", i, err))
		}
	}
	if len(r.Phases) == 0 {
		errs = append(errs, errors.New("at least one phase is required"))
	} else if err := phase.ValidateOrder(r.Phases); err != nil {
		errs = append(errs, err)
	}
	if _, err := verify.ParseMode(r.Contamination); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
