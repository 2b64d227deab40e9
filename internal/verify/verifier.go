package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/buckos/pkgbuild/internal/builderr"
	"github.com/buckos/pkgbuild/internal/log"
)

// DefaultSampleLimit bounds how many ELF files the contamination scan reads.
const DefaultSampleLimit = 64

// destLibDirs are searched under the destination when resolving DT_NEEDED.
var destLibDirs = []string{"lib", "lib64", "usr/lib", "usr/lib64"}

// Options configure one verification.
type Options struct {
	Package string
	Stage   string
	Dest    string

	// Contamination enables the ELF scan.
	Contamination bool
	Mode          Mode
	// SampleLimit caps the files inspected; zero means DefaultSampleLimit.
	SampleLimit int
	// AllowedPrefixes are trees an interpreter or search path may point
	// into: the toolchain and dependency roots. Dest is always allowed.
	AllowedPrefixes []string
	// Interpreters are exact loader paths accepted as PT_INTERP, such as
	// the target sysroot's /lib64/ld-linux-x86-64.so.2.
	Interpreters []string
	// LibDirs are dependency library directories for DT_NEEDED resolution.
	LibDirs []string

	// ReportPath receives the report as JSON when set.
	ReportPath string
	Logger     log.Logger
}

// Report is the outcome of a verification.
type Report struct {
	Package   string `json:"package"`
	Stage     string `json:"stage"`
	Dest      string `json:"dest"`
	FileCount int    `json:"fileCount"`
	DirCount  int    `json:"dirCount"`

	Scanned       bool               `json:"contaminationScanned"`
	Mode          Mode               `json:"contaminationMode,omitempty"`
	Sampled       int                `json:"sampled"`
	Contamination []builderr.Finding `json:"contamination"`
}

// Verify counts the output tree and, when enabled, scans it for host
// contamination. An empty tree is a *builderr.VerificationFailure; findings
// in Strict mode are a *builderr.ContaminationError. The report is returned
// and written in every case where the tree could be read.
func Verify(ctx context.Context, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoop()
	}
	if opts.Mode == "" {
		opts.Mode = Advisory
	}
	report := &Report{
		Package:       opts.Package,
		Stage:         opts.Stage,
		Dest:          opts.Dest,
		Contamination: []builderr.Finding{},
	}

	files, dirs, err := CountOutput(opts.Dest)
	if err != nil {
		return nil, &builderr.VerificationFailure{Package: opts.Package, Stage: opts.Stage, Dest: opts.Dest, Reason: err.Error()}
	}
	report.FileCount, report.DirCount = files, dirs
	logger.Info("output counted", "files", files, "dirs", dirs)

	if files == 0 {
		if err := writeReport(opts.ReportPath, report); err != nil {
			logger.Warn("failed to write verification report", "error", err)
		}
		return report, &builderr.VerificationFailure{
			Package: opts.Package,
			Stage:   opts.Stage,
			Dest:    opts.Dest,
			Reason:  "no files were installed; the install step may have written elsewhere",
		}
	}

	if opts.Contamination {
		report.Scanned = true
		report.Mode = opts.Mode
		sampled, findings, err := scanContamination(ctx, opts, logger)
		if err != nil {
			return nil, err
		}
		report.Sampled = sampled
		report.Contamination = findings
		for _, f := range findings {
			logger.Warn("contamination", "binary", f.BinaryPath, "reason", f.Reason)
		}
	}

	if err := writeReport(opts.ReportPath, report); err != nil {
		logger.Warn("failed to write verification report", "error", err)
	}

	if opts.Mode == Strict && len(report.Contamination) > 0 {
		return report, &builderr.ContaminationError{
			Package:  opts.Package,
			Stage:    opts.Stage,
			Findings: report.Contamination,
		}
	}
	return report, nil
}

// CountOutput counts regular files and directories under dest, excluding
// dest itself. Symlinks are not counted.
func CountOutput(dest string) (files, dirs int, err error) {
	info, err := os.Stat(dest)
	if err != nil {
		return 0, 0, fmt.Errorf("destination unreadable: %w", err)
	}
	if !info.IsDir() {
		return 0, 0, fmt.Errorf("destination %s is not a directory", dest)
	}
	err = filepath.WalkDir(dest, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch {
		case p == dest:
		case d.Type().IsRegular():
			files++
		case d.IsDir():
			dirs++
		}
		return nil
	})
	return files, dirs, err
}

// SampleELF returns up to limit ELF files under dest, in lexical order.
func SampleELF(ctx context.Context, dest string, limit int) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dest, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(out) >= limit {
			return filepath.SkipAll
		}
		if d.Type().IsRegular() && IsELF(p) {
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

func scanContamination(ctx context.Context, opts Options, logger log.Logger) (int, []builderr.Finding, error) {
	limit := opts.SampleLimit
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	sample, err := SampleELF(ctx, opts.Dest, limit)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to sample output: %w", err)
	}

	allowed := append([]string{opts.Dest}, opts.AllowedPrefixes...)
	findings := []builderr.Finding{}
	for _, p := range sample {
		info, err := InspectELF(p)
		if err != nil {
			logger.Debug("skipping unreadable ELF file", "path", p, "error", err)
			continue
		}
		rel, _ := filepath.Rel(opts.Dest, p)
		findings = append(findings, Judge(info, rel, opts.Dest, allowed, opts.Interpreters, opts.LibDirs)...)
	}
	return len(sample), findings, nil
}

// Judge returns the contamination findings for one inspected file. rel is
// its path relative to dest, used in findings. An interpreter passes when it
// lies under an allowed prefix or equals one of interps.
func Judge(info *ELFInfo, rel, dest string, allowed, interps, libDirs []string) []builderr.Finding {
	var out []builderr.Finding
	add := func(format string, args ...any) {
		out = append(out, builderr.Finding{BinaryPath: rel, Reason: fmt.Sprintf(format, args...)})
	}

	if info.Interp != "" && !underAny(info.Interp, allowed) && !slices.Contains(interps, filepath.Clean(info.Interp)) {
		add("interpreter %s outside toolchain and output trees", info.Interp)
	}

	searchDirs := make([]string, 0, len(info.Runpath)+len(destLibDirs)+len(libDirs))
	origin := filepath.Dir(filepath.Join(dest, rel))
	for _, rp := range info.Runpath {
		switch {
		case strings.HasPrefix(rp, "$ORIGIN") || strings.HasPrefix(rp, "${ORIGIN}"):
			rp = strings.Replace(strings.Replace(rp, "${ORIGIN}", origin, 1), "$ORIGIN", origin, 1)
			searchDirs = append(searchDirs, filepath.Clean(rp))
		case DefaultRuntime.IsPathVariable(rp):
		case !filepath.IsAbs(rp) || !underAny(rp, allowed):
			add("runpath %s outside toolchain and output trees", rp)
		default:
			searchDirs = append(searchDirs, rp)
		}
	}
	for _, d := range destLibDirs {
		searchDirs = append(searchDirs, filepath.Join(dest, d))
	}
	searchDirs = append(searchDirs, libDirs...)

	for _, soname := range info.Needed {
		if DefaultRuntime.IsRuntimeLibrary(soname) || resolves(soname, searchDirs) {
			continue
		}
		add("needed %s not provided by output, dependencies or toolchain runtime", soname)
	}
	return out
}

func resolves(soname string, dirs []string) bool {
	if strings.Contains(soname, "/") {
		_, err := os.Stat(soname)
		return err == nil
	}
	for _, d := range dirs {
		if _, err := os.Stat(filepath.Join(d, soname)); err == nil {
			return true
		}
	}
	return false
}

func underAny(p string, prefixes []string) bool {
	p = filepath.Clean(p)
	for _, pre := range prefixes {
		if pre == "" {
			continue
		}
		pre = filepath.Clean(pre)
		if p == pre || strings.HasPrefix(p, pre+"/") {
			return true
		}
	}
	return false
}

func writeReport(path string, report *Report) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
