// Package build runs one package build end to end: it composes the build
// environment for the request's stage, acquires sources, runs the phases
// under the isolation enforcer, verifies the output and records provenance.
package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/buckos/pkgbuild/internal/buildenv"
	"github.com/buckos/pkgbuild/internal/builderr"
	"github.com/buckos/pkgbuild/internal/config"
	"github.com/buckos/pkgbuild/internal/depscan"
	"github.com/buckos/pkgbuild/internal/fetch"
	"github.com/buckos/pkgbuild/internal/log"
	"github.com/buckos/pkgbuild/internal/phase"
	"github.com/buckos/pkgbuild/internal/pkgconfig"
	"github.com/buckos/pkgbuild/internal/platform"
	"github.com/buckos/pkgbuild/internal/provenance"
	"github.com/buckos/pkgbuild/internal/request"
	"github.com/buckos/pkgbuild/internal/sandbox"
	"github.com/buckos/pkgbuild/internal/stage"
	"github.com/buckos/pkgbuild/internal/toolchain"
	"github.com/buckos/pkgbuild/internal/verify"
)

// HelperDirName is the STAGE2 host helper directory under the work directory.
const HelperDirName = ".host-helpers"

// ReportFile is the verification report name inside the log directory.
const ReportFile = "verification.json"

// Builder runs builds with shared settings.
type Builder struct {
	settings  *config.Settings
	logger    log.Logger
	stdout    io.Writer
	stderr    io.Writer
	self      string
	base      buildenv.Base
	runner    phase.Runner
	fetcher   *fetch.Fetcher
	noIsolate bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// WithOutput mirrors phase output to the given writers.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(b *Builder) {
		b.stdout = stdout
		b.stderr = stderr
	}
}

// WithSelf installs the pkg-config wrapper pointing at the given
// executable. Without it no wrapper is installed.
func WithSelf(path string) Option {
	return func(b *Builder) { b.self = path }
}

// WithBase replaces the inherited process environment.
func WithBase(base buildenv.Base) Option {
	return func(b *Builder) { b.base = base }
}

// WithRunner replaces the sandbox enforcer.
func WithRunner(r phase.Runner) Option {
	return func(b *Builder) { b.runner = r }
}

// WithFetcher replaces the fetcher built from settings.
func WithFetcher(f *fetch.Fetcher) Option {
	return func(b *Builder) { b.fetcher = f }
}

// WithIsolationDisabled runs phases without namespaces even when the stage
// requests them.
func WithIsolationDisabled(disabled bool) Option {
	return func(b *Builder) { b.noIsolate = disabled }
}

// New creates a Builder.
func New(settings *config.Settings, opts ...Option) *Builder {
	b := &Builder{settings: settings, logger: log.NewNoop()}
	for _, opt := range opts {
		opt(b)
	}
	if b.base == nil {
		b.base = buildenv.BaseFromProcess()
	}
	if b.runner == nil {
		b.runner = sandbox.New(sandbox.WithLogger(b.logger), sandbox.WithIsolationDisabled(b.noIsolate))
	}
	return b
}

// Plan is a composed but not yet executed build.
type Plan struct {
	Request   *request.PackageBuildRequest
	Policy    stage.IsolationPolicy
	Snapshot  depscan.Snapshot
	Scan      *depscan.Result
	Detection *toolchain.DetectionResult
	Toolchain *toolchain.Selection
	Env       *buildenv.BuildEnvironment
}

// Outcome is a finished build.
type Outcome struct {
	Plan       *Plan
	Sources    []*fetch.Result
	Phases     []phase.Result
	Report     *verify.Report
	Provenance *provenance.Result
}

// Prepare composes the environment for req without running anything. The
// wrapper and helper directories are created under the work directory.
func (b *Builder) Prepare(ctx context.Context, req *request.PackageBuildRequest) (*Plan, error) {
	plan, err := b.prepare(ctx, req)
	return plan, builderr.Attribute(err, req.Name, req.Stage.String())
}

func (b *Builder) prepare(_ context.Context, req *request.PackageBuildRequest) (*Plan, error) {
	logger := log.ForPackage(b.logger, req.Name, req.Version, req.Stage.String())
	plan := &Plan{Request: req, Policy: stage.PolicyFor(req.Stage)}

	plan.Snapshot = depscan.LoadSnapshot(req.Roots, logger)
	plan.Scan = depscan.Scan(plan.Snapshot)
	plan.Detection = toolchain.Detect(plan.Snapshot)

	buildTriple := req.BuildTriple
	if buildTriple == "" {
		buildTriple = platform.HostTriple()
	}
	sel, err := toolchain.Select(req.Stage, plan.Detection, toolchain.Options{HostTriple: buildTriple, Logger: logger})
	if err != nil {
		return nil, err
	}
	plan.Toolchain = sel

	in := buildenv.Input{
		Package:   req.Name,
		Stage:     req.Stage,
		Base:      b.base,
		Scan:      plan.Scan,
		Toolchain: sel,
		Extra:     req.Flags,
		ExtraEnv:  req.Env,
	}
	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	if b.self != "" {
		in.WrapperDir = filepath.Join(req.WorkDir, pkgconfig.WrapperDirName)
		if err := pkgconfig.InstallWrapper(in.WrapperDir, b.self); err != nil {
			return nil, err
		}
	}
	if len(plan.Policy.HostHelpers) > 0 {
		in.HelperDir = filepath.Join(req.WorkDir, HelperDirName)
		if err := buildenv.PrepareHelperDir(in.HelperDir, b.base.PathList("PATH"), plan.Policy.HostHelpers, logger); err != nil {
			return nil, err
		}
	}

	env, err := buildenv.Compose(in)
	if err != nil {
		return nil, err
	}
	plan.Env = env.With(req.PhaseContext().Vars())
	logger.Debug("environment composed", "variables", plan.Env.Variables.Len(), "path", len(plan.Env.Path))
	return plan, nil
}

// contaminationMode is the request's override, else the configured mode.
func (b *Builder) contaminationMode(req *request.PackageBuildRequest) (verify.Mode, error) {
	if req.Contamination == "" {
		return b.settings.Contamination, nil
	}
	mode, err := verify.ParseMode(req.Contamination)
	if err != nil {
		return "", &builderr.ConfigurationError{Package: req.Name, Stage: req.Stage.String(), Detail: err.Error()}
	}
	return mode, nil
}

// Build runs req to completion. Errors are attributed to the package and
// stage.
func (b *Builder) Build(ctx context.Context, req *request.PackageBuildRequest) (*Outcome, error) {
	out, err := b.build(ctx, req)
	return out, builderr.Attribute(err, req.Name, req.Stage.String())
}

func (b *Builder) build(ctx context.Context, req *request.PackageBuildRequest) (*Outcome, error) {
	logger := log.ForPackage(b.logger, req.Name, req.Version, req.Stage.String())
	mode, err := b.contaminationMode(req)
	if err != nil {
		return nil, err
	}
	plan, err := b.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Plan: plan}

	for _, dir := range []string{req.Dest, req.SourceDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return out, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if len(req.Sources) > 0 {
		f, err := b.sourceFetcher(ctx)
		if err != nil {
			return out, err
		}
		out.Sources, err = f.FetchAll(ctx, req.Sources)
		if err != nil {
			return out, err
		}
		if err := stageSources(out.Sources, req.SourceDir, logger); err != nil {
			return out, err
		}
	}

	exec := phase.NewExecutor(b.runner, phase.WithLogger(logger), phase.WithOutput(b.stdout, b.stderr))
	out.Phases, err = exec.Run(ctx, phase.Spec{
		Package:   req.Name,
		Stage:     req.Stage.String(),
		Env:       plan.Env,
		SourceDir: req.SourceDir,
		LogDir:    req.LogDir(),
		Isolate:   plan.Policy.NetworkIsolationRequested,
	}, req.Phases)
	if err != nil {
		return out, err
	}

	out.Report, err = verify.Verify(ctx, verify.Options{
		Package:         req.Name,
		Stage:           req.Stage.String(),
		Dest:            req.Dest,
		Contamination:   plan.Policy.ContaminationScan,
		Mode:            mode,
		SampleLimit:     b.settings.SampleLimit,
		AllowedPrefixes: append(plan.Snapshot.Paths(), b.settings.AllowedPrefixes...),
		Interpreters:    plan.Detection.Loaders,
		LibDirs:         plan.Scan.LibDirs,
		ReportPath:      filepath.Join(req.LogDir(), ReportFile),
		Logger:          logger,
	})
	if err != nil {
		return out, err
	}

	out.Provenance, err = b.record(ctx, plan, out.Sources, logger)
	return out, err
}

func (b *Builder) record(ctx context.Context, plan *Plan, sources []*fetch.Result, logger log.Logger) (*provenance.Result, error) {
	req := plan.Request
	rec := provenance.Record{
		Name:        req.Name,
		Version:     req.Version,
		PackageType: req.PackageType,
		Target:      req.Target,
		GraphHash:   req.GraphHash,
		UseFlags:    req.SortedUse(),
	}
	if rec.Target == "" {
		rec.Target = plan.Toolchain.Triple
	}
	if rec.Target == "" {
		rec.Target = plan.Toolchain.BuildTriple
	}
	if len(sources) > 0 {
		rec.SourceURL = sources[0].Source.URL
		sum, err := fetch.HashFile(sources[0].Path, "sha256")
		if err != nil {
			return nil, err
		}
		rec.SourceSHA256 = sum
	}

	opts := []provenance.Option{
		provenance.WithLogger(logger),
		provenance.WithBuildInfo(b.settings.RecordBuildInfo),
	}
	if b.settings.StampELF {
		opts = append(opts, provenance.WithStamping(plan.Env.Binaries.OBJCOPY, plan.Env.Environ()))
	}
	return provenance.NewRecorder(opts...).Record(ctx, req.Dest, rec, plan.Snapshot.Paths())
}

func (b *Builder) sourceFetcher(ctx context.Context) (*fetch.Fetcher, error) {
	if b.fetcher != nil {
		return b.fetcher, nil
	}
	f, err := NewFetcher(ctx, b.settings, b.logger)
	if err != nil {
		return nil, err
	}
	b.fetcher = f
	return f, nil
}
