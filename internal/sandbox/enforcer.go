// Package sandbox runs build phases as child processes with an exact,
// curated environment and, when the stage asks for it, inside a fresh
// network namespace. Namespace entry is best effort: when the kernel or
// the caller's privileges refuse it, the phase runs directly and a warning
// is logged.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"

	"github.com/buckos/pkgbuild/internal/log"
)

// Request describes one child process.
type Request struct {
	// Args is the argument vector. Args[0] without a slash is looked up in
	// Path, never in the parent's PATH.
	Args []string
	Dir  string
	// Env is the child's entire environment.
	Env  []string
	Path []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Isolate requests a private network namespace.
	Isolate bool
}

// Result reports how a child ran.
type Result struct {
	ExitCode int
	// Isolated is true when the child ran in its own network namespace.
	Isolated bool
	// Fallback is true when isolation was requested but unavailable.
	Fallback bool
}

// Enforcer launches phase children.
type Enforcer struct {
	logger log.Logger
	// disabled turns isolation off entirely, e.g. from configuration.
	disabled bool
	// unavailable latches after the first refused namespace entry so the
	// warning is logged once per build.
	unavailable atomic.Bool
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithLogger sets a logger for enforcer messages.
func WithLogger(logger log.Logger) Option {
	return func(e *Enforcer) {
		e.logger = logger
	}
}

// WithIsolationDisabled runs every child directly.
func WithIsolationDisabled(disabled bool) Option {
	return func(e *Enforcer) {
		e.disabled = disabled
	}
}

// New creates an Enforcer.
func New(opts ...Option) *Enforcer {
	e := &Enforcer{logger: log.NewNoop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run starts the child, waits for it and returns its exit status. An error
// is returned only when the child could not be started at all; a non-zero
// exit is reported through Result.
func (e *Enforcer) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.Args) == 0 {
		return nil, errors.New("empty command")
	}
	prog, err := LookPath(req.Args[0], req.Path)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	isolate := req.Isolate && !e.disabled && isolationSupported
	if isolate && e.unavailable.Load() {
		isolate = false
		res.Fallback = true
	}

	cmd := e.command(ctx, prog, req, isolate)
	err = cmd.Start()
	if err != nil && isolate && isolationRefused(err) {
		if !e.unavailable.Swap(true) {
			e.logger.Warn("network isolation unavailable, running phases without a sandbox", "error", err)
		}
		isolate = false
		res.Fallback = true
		cmd = e.command(ctx, prog, req, false)
		err = cmd.Start()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", prog, err)
	}
	if req.Isolate && !isolate && !res.Fallback {
		res.Fallback = true
	}
	res.Isolated = isolate

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed waiting for %s: %w", prog, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

func (e *Enforcer) command(ctx context.Context, prog string, req Request, isolate bool) *exec.Cmd {
	cmd := exec.CommandContext(ctx, prog, req.Args[1:]...)
	cmd.Args[0] = req.Args[0]
	cmd.Dir = req.Dir
	cmd.Env = append([]string{}, req.Env...)
	cmd.Stdin = req.Stdin
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr
	if isolate {
		cmd.SysProcAttr = isolationAttr(os.Getuid(), os.Getgid())
	}
	return cmd
}

// LookPath resolves name against dirs. Names containing a slash are used
// as given.
func LookPath(name string, dirs []string) (string, error) {
	if filepath.Base(name) != name {
		return name, nil
	}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		p := filepath.Join(d, name)
		info, err := os.Stat(p)
		if err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0 {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}
