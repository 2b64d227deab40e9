package main_test

import (
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
)

// Each check runs the go tool from the module root. The _examples tree is
// not part of the module, so file-based tools get the package directories
// from go list instead of walking ".".
func TestLint(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode: skipping lint checks")
	}

	checks := []struct {
		name string
		run  func(t *testing.T)
	}{
		{"vet", func(t *testing.T) { goTool(t, "vet", "./...") }},
		{"gofmt", checkFormatted},
		{"golangci-lint", func(t *testing.T) {
			goTool(t, "run", "github.com/golangci/golangci-lint/cmd/golangci-lint@latest", "run", "--timeout=5m", "./...")
		}},
		{"govulncheck", func(t *testing.T) {
			goTool(t, "run", "golang.org/x/vuln/cmd/govulncheck@latest", "./...")
		}},
		{"mod tidy", func(t *testing.T) {
			if _, err := os.Stat("go.sum"); err != nil {
				t.Skip("go.sum not present")
			}
			goTool(t, "mod", "tidy", "-diff")
		}},
	}
	for _, c := range checks {
		t.Run(c.name, c.run)
	}
}

func checkFormatted(t *testing.T) {
	dirs := strings.Fields(goTool(t, "list", "-f", "{{.Dir}}", "./..."))
	if len(dirs) == 0 {
		t.Fatal("go list returned no packages")
	}
	out, err := exec.Command("gofmt", append([]string{"-l"}, dirs...)...).CombinedOutput()
	if err != nil {
		t.Fatalf("gofmt failed to run: %v\n%s", err, out)
	}
	if len(out) > 0 {
		t.Errorf("unformatted files:\n%s", out)
	}
}

func goTool(t *testing.T, args ...string) string {
	t.Helper()
	cmd := exec.Command("go", args...)
	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			t.Fatalf("%v: %v\n%s%s", cmd, err, out, ee.Stderr)
		}
		t.Fatalf("%v: %v", cmd, err)
	}
	return string(out)
}
