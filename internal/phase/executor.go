package phase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/buckos/pkgbuild/internal/buildenv"
	"github.com/buckos/pkgbuild/internal/builderr"
	"github.com/buckos/pkgbuild/internal/log"
	"github.com/buckos/pkgbuild/internal/sandbox"
)

// Runner starts one child process. *sandbox.Enforcer satisfies it.
type Runner interface {
	Run(ctx context.Context, req sandbox.Request) (*sandbox.Result, error)
}

// Result records one completed phase.
type Result struct {
	Name     Name          `json:"name"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Isolated bool          `json:"isolated"`
	LogPath  string        `json:"log_path,omitempty"`
}

// Spec is what a run needs besides the phases.
type Spec struct {
	Package string
	Stage   string
	Env     *buildenv.BuildEnvironment
	// SourceDir is the working directory of every phase.
	SourceDir string
	// LogDir receives <phase>.log files. Empty disables phase logs.
	LogDir  string
	Isolate bool
}

// Executor runs phases sequentially.
type Executor struct {
	runner Runner
	logger log.Logger
	stdout io.Writer
	stderr io.Writer
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets a logger for phase boundaries.
func WithLogger(logger log.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithOutput mirrors phase output to the given writers as well as the logs.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Executor) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// NewExecutor creates an Executor around runner.
func NewExecutor(runner Runner, opts ...Option) *Executor {
	e := &Executor{runner: runner, logger: log.NewNoop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes phases in order. The first phase that exits non-zero, or
// cannot be started, ends the run with a *builderr.PhaseFailure; later
// phases never start. The results of every phase that ran are returned.
func (e *Executor) Run(ctx context.Context, spec Spec, phases []Phase) ([]Result, error) {
	if err := ValidateOrder(phases); err != nil {
		return nil, &builderr.ConfigurationError{Package: spec.Package, Stage: spec.Stage, Detail: err.Error()}
	}
	if spec.Env == nil {
		return nil, &builderr.ConfigurationError{Package: spec.Package, Stage: spec.Stage, Detail: "no build environment"}
	}
	if spec.LogDir != "" {
		if err := os.MkdirAll(spec.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	var results []Result
	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := e.runOne(ctx, spec, p)
		if res != nil {
			results = append(results, *res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (e *Executor) runOne(ctx context.Context, spec Spec, p Phase) (*Result, error) {
	logger := e.logger.With("phase", string(p.Name))
	logger.Info("phase started")

	res := &Result{Name: p.Name}
	var stdout, stderr []io.Writer
	if e.stdout != nil {
		stdout = append(stdout, e.stdout)
	}
	if e.stderr != nil {
		stderr = append(stderr, e.stderr)
	}
	if spec.LogDir != "" {
		res.LogPath = filepath.Join(spec.LogDir, string(p.Name)+".log")
		f, err := os.Create(res.LogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create phase log: %w", err)
		}
		defer func() { _ = f.Close() }()
		stdout = append(stdout, f)
		stderr = append(stderr, f)
	}

	dir := spec.SourceDir
	if p.Dir != "" {
		dir = filepath.Join(spec.SourceDir, filepath.FromSlash(p.Dir))
	}

	start := time.Now()
	out, err := e.runner.Run(ctx, sandbox.Request{
		Args:    p.Command(),
		Dir:     dir,
		Env:     spec.Env.Environ(),
		Path:    spec.Env.Path,
		Stdout:  io.MultiWriter(stdout...),
		Stderr:  io.MultiWriter(stderr...),
		Isolate: spec.Isolate,
	})
	res.Duration = time.Since(start)
	if err != nil {
		res.ExitCode = -1
		logger.Error("phase could not start", "error", err)
		return res, &builderr.PhaseFailure{Package: spec.Package, Stage: spec.Stage, Phase: string(p.Name), ExitCode: -1, Err: err}
	}
	res.ExitCode = out.ExitCode
	res.Isolated = out.Isolated
	if out.ExitCode != 0 {
		logger.Error("phase failed", "exit_code", out.ExitCode, "log", res.LogPath)
		return res, &builderr.PhaseFailure{Package: spec.Package, Stage: spec.Stage, Phase: string(p.Name), ExitCode: out.ExitCode}
	}
	logger.Info("phase finished", "duration", res.Duration.Round(time.Millisecond))
	return res, nil
}
