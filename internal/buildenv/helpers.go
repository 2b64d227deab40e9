package buildenv

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/buckos/pkgbuild/internal/log"
)

// PrepareHelperDir populates dir with symlinks to the named host programs,
// taking the first match on hostPath for each. Programs not found on the
// host are skipped. The directory is recreated on every call so a stale
// link from an earlier build cannot linger.
func PrepareHelperDir(dir string, hostPath, helpers []string, logger log.Logger) error {
	if logger == nil {
		logger = log.NewNoop()
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear helper directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create helper directory: %w", err)
	}
	for _, name := range helpers {
		target := findExecutable(hostPath, name)
		if target == "" {
			logger.Debug("host helper not found", "helper", name)
			continue
		}
		if err := os.Symlink(target, filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("failed to link host helper %s: %w", name, err)
		}
	}
	return nil
}

func findExecutable(dirs []string, name string) string {
	for _, d := range dirs {
		p := filepath.Join(d, name)
		info, err := os.Stat(p)
		if err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0 {
			return p
		}
	}
	return ""
}
