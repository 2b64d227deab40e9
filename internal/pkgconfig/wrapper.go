package pkgconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WrapperDirName is the directory created under the work directory.
const WrapperDirName = ".pkgconf-wrapper"

// InstallWrapper writes pkg-config and pkgconf scripts into dir that
// re-enter self through the hidden pkg-config-proxy command.
func InstallWrapper(dir, self string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create wrapper directory: %w", err)
	}
	script := WrapperScript(dir, self)
	for _, name := range RealToolNames {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(script), 0o755); err != nil {
			return fmt.Errorf("failed to write %s wrapper: %w", name, err)
		}
		// WriteFile keeps the mode of an existing file.
		if err := os.Chmod(p, 0o755); err != nil {
			return fmt.Errorf("failed to chmod %s wrapper: %w", name, err)
		}
	}
	return nil
}

// WrapperScript renders the wrapper body.
func WrapperScript(dir, self string) string {
	return "#!/bin/sh\n" +
		WrapperEnv + "=" + shellQuote(dir) + " exec " + shellQuote(self) + " pkg-config-proxy \"$@\"\n"
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
