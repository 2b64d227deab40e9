package main

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"

	"github.com/buckos/pkgbuild/internal/builderr"
	"github.com/buckos/pkgbuild/internal/config"
)

func TestLogLevel(t *testing.T) {
	origQuiet, origVerbose, origDebug := quietFlag, verboseFlag, debugFlag
	defer func() {
		quietFlag, verboseFlag, debugFlag = origQuiet, origVerbose, origDebug
	}()

	tests := []struct {
		name                  string
		quiet, verbose, debug bool
		env                   string
		want                  slog.Level
	}{
		{"default", false, false, false, "", slog.LevelWarn},
		{"quiet", true, false, false, "", slog.LevelError},
		{"verbose", false, true, false, "", slog.LevelInfo},
		{"debug flag", false, false, true, "", slog.LevelDebug},
		{"debug env", false, false, false, "1", slog.LevelDebug},
		{"debug env beats quiet", true, false, false, "true", slog.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(config.EnvDebug, tt.env)
			quietFlag, verboseFlag, debugFlag = tt.quiet, tt.verbose, tt.debug
			if got := logLevel(); got != tt.want {
				t.Errorf("logLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitGeneral},
		{"usage", &usageError{err: errors.New("accepts 1 arg")}, ExitUsage},
		{"phase", &builderr.PhaseFailure{Phase: "compile", ExitCode: 2}, ExitPhaseFailed},
		{"configuration", fmt.Errorf("prepare: %w", &builderr.ConfigurationError{What: "cross compiler"}), ExitConfiguration},
		{"verification", &builderr.VerificationFailure{Reason: "no files"}, ExitVerifyFailed},
		{"integrity", errors.Join(&builderr.IntegrityError{Kind: "checksum"}, errors.New("not found")), ExitIntegrity},
		{"contamination", &builderr.ContaminationError{}, ExitContamination},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUsageArgs(t *testing.T) {
	validate := usageArgs(cobra.ExactArgs(1))
	err := validate(&cobra.Command{}, nil)
	var usage *usageError
	if !errors.As(err, &usage) {
		t.Fatalf("expected a usage error, got %v", err)
	}
	if err := validate(&cobra.Command{}, []string{"zlib.toml"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"build", "env", "detect", "fetch", "locks", "provenance", "pkg-config-proxy", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("command %q not registered", name)
		}
	}
	if !pkgConfigProxyCmd.Hidden || !pkgConfigProxyCmd.DisableFlagParsing {
		t.Error("pkg-config-proxy must be hidden and pass flags through")
	}
}
