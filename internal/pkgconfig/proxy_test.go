package pkgconfig

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakePkgConfig installs a pkg-config script that prints out and exits
// with code.
func fakePkgConfig(t *testing.T, out string, code int) string {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/sh\nprintf '%s\\n' '" + out + "'\nexit " + string(rune('0'+code)) + "\n"
	if err := os.WriteFile(filepath.Join(dir, "pkg-config"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestProxyRewritesFlagQuery(t *testing.T) {
	t.Parallel()

	bin := fakePkgConfig(t, "-I/usr/include/foo", 0)
	root := t.TempDir()
	pcDir := filepath.Join(root, "usr", "lib64", "pkgconfig")
	if err := os.MkdirAll(pcDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pcDir, "foo.pc"), []byte("Name: foo\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	wrapper := t.TempDir()
	env := map[string]string{
		"PATH":            wrapper + ":" + bin,
		"PKG_CONFIG_PATH": pcDir,
		WrapperEnv:        wrapper,
	}
	var stdout, stderr bytes.Buffer
	p := &Proxy{Getenv: func(k string) string { return env[k] }, Stdout: &stdout, Stderr: &stderr}

	if code := p.Run(context.Background(), []string{"--cflags", "foo"}); code != 0 {
		t.Fatalf("Run() = %d, stderr: %s", code, stderr.String())
	}
	want := "-I" + filepath.Join(root, "usr/include/foo")
	if got := strings.TrimSpace(stdout.String()); got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
}

func TestProxyPassesThroughOtherQueries(t *testing.T) {
	t.Parallel()

	bin := fakePkgConfig(t, "/usr/lib/whatever", 0)
	env := map[string]string{"PATH": bin, "PKG_CONFIG_PATH": "/nonexistent/lib/pkgconfig"}
	var stdout bytes.Buffer
	p := &Proxy{Getenv: func(k string) string { return env[k] }, Stdout: &stdout, Stderr: &bytes.Buffer{}}

	if code := p.Run(context.Background(), []string{"--variable=libdir", "foo"}); code != 0 {
		t.Fatalf("Run() = %d", code)
	}
	if got := strings.TrimSpace(stdout.String()); got != "/usr/lib/whatever" {
		t.Errorf("stdout = %q", got)
	}
}

func TestProxyPropagatesExitStatus(t *testing.T) {
	t.Parallel()

	bin := fakePkgConfig(t, "", 1)
	env := map[string]string{"PATH": bin}
	p := &Proxy{Getenv: func(k string) string { return env[k] }, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}

	if code := p.Run(context.Background(), []string{"--exists", "nope"}); code != 1 {
		t.Errorf("Run() = %d, want 1", code)
	}
}

func TestProxyWithoutRealTool(t *testing.T) {
	t.Parallel()

	wrapper := t.TempDir()
	env := map[string]string{"PATH": wrapper, WrapperEnv: wrapper}
	var stderr bytes.Buffer
	p := &Proxy{Getenv: func(k string) string { return env[k] }, Stdout: &bytes.Buffer{}, Stderr: &stderr}

	if code := p.Run(context.Background(), []string{"--cflags", "foo"}); code != 127 {
		t.Errorf("Run() = %d, want 127", code)
	}
	if !strings.Contains(stderr.String(), "no pkg-config implementation") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestInstallWrapper(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), WrapperDirName)
	if err := InstallWrapper(dir, "/opt/it's/pkgbuild"); err != nil {
		t.Fatal(err)
	}
	for _, name := range RealToolNames {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm()&0o111 == 0 {
			t.Errorf("%s is not executable", name)
		}
	}
	data, _ := os.ReadFile(filepath.Join(dir, "pkg-config"))
	if !strings.Contains(string(data), `'/opt/it'\''s/pkgbuild' pkg-config-proxy "$@"`) {
		t.Errorf("wrapper script = %q", data)
	}
}
