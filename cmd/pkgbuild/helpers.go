package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buckos/pkgbuild/internal/config"
	"github.com/buckos/pkgbuild/internal/errmsg"
	"github.com/buckos/pkgbuild/internal/fetch"
	"github.com/buckos/pkgbuild/internal/lock"
	"github.com/buckos/pkgbuild/internal/request"
	"github.com/buckos/pkgbuild/internal/stage"
	"github.com/buckos/pkgbuild/internal/verify"
)

// printInfo prints an informational message unless quiet mode is enabled
func printInfo(a ...interface{}) {
	if !quietFlag {
		fmt.Println(a...)
	}
}

// printInfof prints a formatted informational message unless quiet mode is enabled
func printInfof(format string, a ...interface{}) {
	if !quietFlag {
		fmt.Printf(format, a...)
	}
}

// printJSON marshals the given value to JSON and prints it to stdout
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}
	return nil
}

// printError prints an error to stderr with suggestions if available.
func printError(err error) {
	errmsg.Fprint(os.Stderr, err, errContext)
}

// errContext is filled in once a request is loaded so error suggestions
// can point at the right log files.
var errContext *errmsg.ErrorContext

// usageArgs wraps an argument validator so its failures exit with ExitUsage.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// settingsFlags are command-line overrides applied on top of the
// environment and config file.
type settingsFlags struct {
	slots         int
	lockDir       string
	signatures    string
	contamination string
}

func (f *settingsFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.slots, "slots", 0, fmt.Sprintf("Concurrent download slots (1-%d)", lock.MaxSlots))
	cmd.Flags().StringVar(&f.lockDir, "lock-dir", "", "Directory holding the download slot lock files")
	cmd.Flags().StringVar(&f.signatures, "verify-signatures", "", "Signature verification: auto, on or off")
	cmd.Flags().StringVar(&f.contamination, "contamination", "", "STAGE3 contamination handling: advisory or strict")
}

// loadSettings resolves settings and applies the flags that were set.
func (f *settingsFlags) loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	s, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("slots") {
		if f.slots < 1 || f.slots > lock.MaxSlots {
			return nil, &usageError{err: fmt.Errorf("--slots must be between 1 and %d", lock.MaxSlots)}
		}
		s.Slots = f.slots
	}
	if f.lockDir != "" {
		s.LockDir = f.lockDir
	}
	if f.signatures != "" {
		if s.Signatures, err = fetch.ParseSignatureMode(f.signatures); err != nil {
			return nil, &usageError{err: err}
		}
	}
	if f.contamination != "" {
		if s.Contamination, err = verify.ParseMode(f.contamination); err != nil {
			return nil, &usageError{err: err}
		}
	}
	return s, nil
}

// requestFlags override fields of the loaded request.
type requestFlags struct {
	stage       string
	roots       []string
	buildTriple string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.stage, "stage", "", "Override the request's stage (none, host, stage1, stage2, stage3)")
	cmd.Flags().StringArrayVar(&f.roots, "root", nil, "Dependency root, in priority order; replaces the request's roots (repeatable)")
	cmd.Flags().StringVar(&f.buildTriple, "build-triple", "", "Build machine triple for STAGE1 (default: detected)")
}

// loadRequest reads path and applies the overrides.
func (f *requestFlags) loadRequest(path string) (*request.PackageBuildRequest, error) {
	req, err := request.Load(path)
	if err != nil {
		return nil, err
	}
	if f.stage != "" {
		if req.Stage, err = stage.Parse(f.stage); err != nil {
			return nil, &usageError{err: err}
		}
	}
	if len(f.roots) > 0 {
		req.Roots = append([]string(nil), f.roots...)
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		req.Resolve(wd)
	}
	if f.buildTriple != "" {
		req.BuildTriple = f.buildTriple
	}
	errContext = &errmsg.ErrorContext{Package: req.Name, WorkDir: req.WorkDir}
	return req, nil
}
