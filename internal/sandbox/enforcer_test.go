package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func hostPath(t *testing.T) []string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return []string{filepath.Dir(sh)}
}

func TestRunExitCode(t *testing.T) {
	t.Parallel()

	e := New()
	res, err := e.Run(context.Background(), Request{
		Args: []string{"sh", "-c", "exit 3"},
		Path: hostPath(t),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestRunUsesExactEnvironment(t *testing.T) {
	t.Setenv("PKGBUILD_LEAK_CHECK", "leaked")

	var out bytes.Buffer
	e := New()
	res, err := e.Run(context.Background(), Request{
		Args:   []string{"sh", "-c", `printf '%s|%s' "$FOO" "$PKGBUILD_LEAK_CHECK"`},
		Env:    []string{"FOO=bar"},
		Path:   hostPath(t),
		Stdout: &out,
	})
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("Run() = %+v, %v", res, err)
	}
	if got := out.String(); got != "bar|" {
		t.Errorf("output = %q, want %q", got, "bar|")
	}
}

func TestRunLooksUpInComposedPath(t *testing.T) {
	t.Parallel()

	bin := t.TempDir()
	script := "#!/bin/sh\necho from-composed-path\n"
	if err := os.WriteFile(filepath.Join(bin, "only-here"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	res, err := New().Run(context.Background(), Request{
		Args:   []string{"only-here"},
		Path:   []string{bin},
		Stdout: &out,
	})
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("Run() = %+v, %v", res, err)
	}
	if strings.TrimSpace(out.String()) != "from-composed-path" {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunMissingProgram(t *testing.T) {
	t.Parallel()

	_, err := New().Run(context.Background(), Request{
		Args: []string{"definitely-not-a-program"},
		Path: []string{t.TempDir()},
	})
	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("Run() error = %v, want ErrNotFound", err)
	}
}

func TestRunIsolationNeverAborts(t *testing.T) {
	t.Parallel()

	e := New()
	for i := 0; i < 2; i++ {
		res, err := e.Run(context.Background(), Request{
			Args:    []string{"sh", "-c", "exit 0"},
			Path:    hostPath(t),
			Isolate: true,
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if res.ExitCode != 0 {
			t.Errorf("ExitCode = %d", res.ExitCode)
		}
		if res.Isolated == res.Fallback {
			t.Errorf("exactly one of Isolated and Fallback should be set: %+v", res)
		}
	}
}

func TestRunIsolationDisabled(t *testing.T) {
	t.Parallel()

	e := New(WithIsolationDisabled(true))
	res, err := e.Run(context.Background(), Request{
		Args:    []string{"sh", "-c", "exit 0"},
		Path:    hostPath(t),
		Isolate: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Isolated || !res.Fallback {
		t.Errorf("Result = %+v, want fallback without isolation", res)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	t.Parallel()

	if _, err := New().Run(context.Background(), Request{}); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestLookPath(t *testing.T) {
	t.Parallel()

	if p, err := LookPath("/bin/sh", nil); err != nil || p != "/bin/sh" {
		t.Errorf("LookPath(/bin/sh) = %q, %v", p, err)
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "plain"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LookPath("plain", []string{dir}); err == nil {
		t.Error("non-executable file should not resolve")
	}
}
