package pkgconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/buckos/pkgbuild/internal/log"
)

// WrapperEnv names the variable the wrapper script sets to its own
// directory, so the proxy can skip it when locating the real tool.
const WrapperEnv = "PKGBUILD_PKGCONF_WRAPPER"

// RealToolNames are tried in order when locating the real pkg-config.
var RealToolNames = []string{"pkg-config", "pkgconf"}

// Proxy forwards one pkg-config invocation.
type Proxy struct {
	// Getenv reads the caller's environment. Defaults to os.Getenv.
	Getenv func(string) string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

func (p *Proxy) getenv(k string) string {
	if p.Getenv != nil {
		return p.Getenv(k)
	}
	return os.Getenv(k)
}

// FindReal returns the first pkg-config implementation on path that is not
// inside skipDir.
func FindReal(path, skipDir string) (string, error) {
	skip := ""
	if skipDir != "" {
		skip = filepath.Clean(skipDir)
	}
	for _, name := range RealToolNames {
		for _, d := range strings.Split(path, ":") {
			if d == "" || filepath.Clean(d) == skip {
				continue
			}
			candidate := filepath.Join(d, name)
			info, err := os.Stat(candidate)
			if err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0 {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("no pkg-config implementation found on PATH outside %s", skipDir)
}

// Run forwards args to the real tool and returns its exit status. Output of
// flag queries is rewritten; everything else passes through untouched.
func (p *Proxy) Run(ctx context.Context, args []string) int {
	logger := p.Logger
	if logger == nil {
		logger = log.NewNoop()
	}
	stdout, stderr := p.Stdout, p.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	tool, err := FindReal(p.getenv("PATH"), p.getenv(WrapperEnv))
	if err != nil {
		fmt.Fprintf(stderr, "pkg-config proxy: %v\n", err)
		return 127
	}

	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stdin = p.Stdin
	cmd.Stderr = stderr

	rewrite := IsFlagQuery(args)
	var captured bytes.Buffer
	if rewrite {
		cmd.Stdout = &captured
	} else {
		cmd.Stdout = stdout
	}

	runErr := cmd.Run()
	code := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			fmt.Fprintf(stderr, "pkg-config proxy: %v\n", runErr)
			return 127
		}
		code = exitErr.ExitCode()
	}

	if rewrite {
		out := captured.String()
		if code == 0 {
			rw := NewRewriter(p.getenv("PKG_CONFIG_PATH"))
			rewritten := rw.Rewrite(out, Packages(args))
			if rewritten != out {
				logger.Debug("rewrote pkg-config output", "from", strings.TrimSpace(out), "to", strings.TrimSpace(rewritten))
			}
			out = rewritten
		}
		_, _ = io.WriteString(stdout, out)
	}
	return code
}
