package functional

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"
)

// aCleanPkgbuildEnvironment is a no-op because the Before hook already sets
// up the environment. This step exists so feature files read naturally.
func aCleanPkgbuildEnvironment(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

// expand replaces ${WORK} with the scenario directory and ${SHA256:<file>}
// with the digest of a file in it.
func (s *testState) expand(text string) (string, error) {
	text = strings.ReplaceAll(text, "${WORK}", s.workDir)
	for {
		start := strings.Index(text, "${SHA256:")
		if start < 0 {
			return text, nil
		}
		end := strings.Index(text[start:], "}")
		if end < 0 {
			return "", fmt.Errorf("unterminated ${SHA256:...} in %q", text)
		}
		name := text[start+len("${SHA256:") : start+end]
		data, err := os.ReadFile(filepath.Join(s.workDir, name))
		if err != nil {
			return "", err
		}
		sum := sha256.Sum256(data)
		text = text[:start] + hex.EncodeToString(sum[:]) + text[start+end+1:]
	}
}

func (s *testState) writeFile(rel, content string, mode os.FileMode) error {
	p := filepath.Join(s.workDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(p, []byte(content), mode); err != nil {
		return err
	}
	return os.Chmod(p, mode)
}

// aDependencyRootWithExecutables creates empty executable files, one per
// table row, under the root.
func aDependencyRootWithExecutables(ctx context.Context, root string, table *godog.Table) (context.Context, error) {
	state := getState(ctx)
	for _, row := range table.Rows {
		rel := row.Cells[0].Value
		if err := state.writeFile(filepath.Join(root, rel), "#!/bin/sh\nexit 0\n", 0o755); err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}

// aDependencyRootWithFiles creates regular files; a trailing slash makes a
// directory instead.
func aDependencyRootWithFiles(ctx context.Context, root string, table *godog.Table) (context.Context, error) {
	state := getState(ctx)
	for _, row := range table.Rows {
		rel := row.Cells[0].Value
		if strings.HasSuffix(rel, "/") {
			if err := os.MkdirAll(filepath.Join(state.workDir, root, rel), 0o755); err != nil {
				return ctx, err
			}
			continue
		}
		content := ""
		if len(row.Cells) > 1 {
			content = row.Cells[1].Value
		}
		if err := state.writeFile(filepath.Join(root, rel), content, 0o644); err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}

func aFileContaining(ctx context.Context, rel, content string) (context.Context, error) {
	return ctx, getState(ctx).writeFile(rel, content+"\n", 0o644)
}

func aRequestFile(ctx context.Context, rel string, body *godog.DocString) (context.Context, error) {
	state := getState(ctx)
	content, err := state.expand(body.Content)
	if err != nil {
		return ctx, err
	}
	return ctx, state.writeFile(rel, content, 0o644)
}

func theConfigFile(ctx context.Context, body *godog.DocString) (context.Context, error) {
	state := getState(ctx)
	content, err := state.expand(body.Content)
	if err != nil {
		return ctx, err
	}
	return ctx, os.WriteFile(filepath.Join(state.homeDir, "config.toml"), []byte(content), 0o644)
}

// iRun executes a command string, replacing "pkgbuild" with the test binary
// path. It runs in the scenario directory.
func iRun(ctx context.Context, command string) (context.Context, error) {
	state := getState(ctx)
	if state == nil {
		return ctx, fmt.Errorf("no test state; is the Before hook running?")
	}

	expanded, err := state.expand(command)
	if err != nil {
		return ctx, err
	}
	args := strings.Fields(expanded)
	if len(args) > 0 && args[0] == "pkgbuild" {
		args[0] = state.binPath
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = state.workDir
	cmd.Env = append(os.Environ(),
		"PKGBUILD_HOME="+state.homeDir,
		"PKGBUILD_DEBUG=",
	)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	state.stdout = stdout.String()
	state.stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		state.exitCode = exitErr.ExitCode()
	case err != nil:
		return ctx, fmt.Errorf("command execution failed: %w", err)
	default:
		state.exitCode = 0
	}
	return ctx, nil
}

func theExitCodeIs(ctx context.Context, expected int) error {
	state := getState(ctx)
	if state.exitCode != expected {
		return fmt.Errorf("expected exit code %d, got %d\nstdout: %s\nstderr: %s",
			expected, state.exitCode, state.stdout, state.stderr)
	}
	return nil
}

func theExitCodeIsNot(ctx context.Context, notExpected int) error {
	state := getState(ctx)
	if state.exitCode == notExpected {
		return fmt.Errorf("expected exit code to not be %d\nstdout: %s\nstderr: %s",
			notExpected, state.stdout, state.stderr)
	}
	return nil
}

func theOutputContains(ctx context.Context, text string) error {
	state := getState(ctx)
	text, _ = state.expand(unquote(text))
	if !strings.Contains(state.stdout, text) {
		return fmt.Errorf("expected stdout to contain %q, got:\n%s", text, state.stdout)
	}
	return nil
}

func theOutputDoesNotContain(ctx context.Context, text string) error {
	state := getState(ctx)
	text, _ = state.expand(unquote(text))
	if strings.Contains(state.stdout, text) {
		return fmt.Errorf("expected stdout not to contain %q, got:\n%s", text, state.stdout)
	}
	return nil
}

func theErrorOutputContains(ctx context.Context, text string) error {
	state := getState(ctx)
	text, _ = state.expand(unquote(text))
	if !strings.Contains(state.stderr, text) {
		return fmt.Errorf("expected stderr to contain %q, got:\n%s", text, state.stderr)
	}
	return nil
}

func theFileExists(ctx context.Context, path string) error {
	state := getState(ctx)
	fullPath := filepath.Join(state.workDir, path)
	// Use Lstat to detect symlinks even if their target doesn't resolve
	if _, err := os.Lstat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("expected file %q to exist", fullPath)
	}
	return nil
}

func theFileDoesNotExist(ctx context.Context, path string) error {
	state := getState(ctx)
	fullPath := filepath.Join(state.workDir, path)
	if _, err := os.Lstat(fullPath); err == nil {
		return fmt.Errorf("expected file %q not to exist", fullPath)
	}
	return nil
}

func theFileContains(ctx context.Context, path, text string) error {
	state := getState(ctx)
	data, err := os.ReadFile(filepath.Join(state.workDir, path))
	if err != nil {
		return err
	}
	text, _ = state.expand(unquote(text))
	if !strings.Contains(string(data), text) {
		return fmt.Errorf("expected %s to contain %q, got:\n%s", path, text, data)
	}
	return nil
}
