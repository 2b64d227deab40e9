// Package config resolves pkgbuild settings from defaults, the
// $PKGBUILD_HOME/config.toml file and environment variables, in increasing
// precedence. Command-line flags are applied on top by the CLI.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/buckos/pkgbuild/internal/fetch"
	"github.com/buckos/pkgbuild/internal/lock"
	"github.com/buckos/pkgbuild/internal/verify"
)

const (
	// EnvHome overrides the default state directory (~/.pkgbuild).
	EnvHome = "PKGBUILD_HOME"

	// EnvLockDir overrides where download slot files live.
	EnvLockDir = "PKGBUILD_LOCK_DIR"

	// EnvDownloadSlots sets the number of concurrent downloads.
	EnvDownloadSlots = "PKGBUILD_DOWNLOAD_SLOTS"

	// EnvVerifySignatures is auto, on or off.
	EnvVerifySignatures = "PKGBUILD_VERIFY_SIGNATURES"

	// EnvContamination is advisory or strict.
	EnvContamination = "PKGBUILD_CONTAMINATION"

	// EnvDebug enables debug logging when set to 1 or true.
	EnvDebug = "PKGBUILD_DEBUG"

	// DefaultTimeout bounds waiting for response headers from a backend.
	DefaultTimeout = 30 * time.Second
)

// DefaultBackends is the backend order when the file names none. Backends
// without configuration are skipped.
var DefaultBackends = []string{"vendor", "mirror", "s3", "upstream"}

// Paths are the directories under the state home.
type Paths struct {
	HomeDir      string // $PKGBUILD_HOME
	DistfilesDir string // $PKGBUILD_HOME/distfiles
	LockDir      string // $PKGBUILD_HOME/locks
	KeyCacheDir  string // $PKGBUILD_HOME/keys (PGP public keys)
	ConfigFile   string // $PKGBUILD_HOME/config.toml
}

// DefaultPaths returns the paths for $PKGBUILD_HOME, or ~/.pkgbuild.
func DefaultPaths() (Paths, error) {
	home := os.Getenv(EnvHome)
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		home = filepath.Join(userHome, ".pkgbuild")
	}
	return PathsFor(home), nil
}

// PathsFor lays out the paths under home.
func PathsFor(home string) Paths {
	return Paths{
		HomeDir:      home,
		DistfilesDir: filepath.Join(home, "distfiles"),
		LockDir:      filepath.Join(home, "locks"),
		KeyCacheDir:  filepath.Join(home, "keys"),
		ConfigFile:   filepath.Join(home, "config.toml"),
	}
}

// Settings are the effective values after every layer is applied.
type Settings struct {
	Paths

	Slots                int
	Backends             []string
	VendorDir            string
	MirrorURL            string
	FirstBackendRequired bool
	Signatures           fetch.SignatureMode
	Timeout              time.Duration
	S3                   fetch.S3Config

	Contamination   verify.Mode
	SampleLimit     int
	AllowedPrefixes []string

	StampELF        bool
	RecordBuildInfo bool

	Debug bool
}

// Load resolves settings for the current process environment. Invalid
// environment values fall back with a warning on stderr; an unreadable or
// malformed config file is an error.
func Load() (*Settings, error) {
	paths, err := DefaultPaths()
	if err != nil {
		return nil, err
	}
	file, err := LoadFile(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	return Resolve(paths, file, os.Getenv, os.Stderr)
}

// Resolve layers getenv over file over defaults. Warnings go to warn.
func Resolve(paths Paths, file *File, getenv func(string) string, warn io.Writer) (*Settings, error) {
	s := &Settings{
		Paths:                paths,
		Slots:                lock.ClampSlots(file.Download.Slots),
		Backends:             file.Download.Backends,
		VendorDir:            file.Download.VendorDir,
		MirrorURL:            file.Download.MirrorURL,
		FirstBackendRequired: file.Download.FirstBackendRequired,
		Timeout:              DefaultTimeout,
		S3:                   file.S3,
		SampleLimit:          file.Verify.SampleLimit,
		AllowedPrefixes:      file.Verify.AllowedPrefixes,
		StampELF:             file.Provenance.StampELF,
		RecordBuildInfo:      file.Provenance.RecordBuildHost,
	}
	if len(s.Backends) == 0 {
		s.Backends = DefaultBackends
	}
	if file.Download.LockDir != "" {
		s.LockDir = file.Download.LockDir
	}
	if file.Download.Timeout != "" {
		d, err := time.ParseDuration(file.Download.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid download.timeout %q: %w", file.Download.Timeout, err)
		}
		s.Timeout = d
	}
	var err error
	if s.Signatures, err = fetch.ParseSignatureMode(file.Download.VerifySignatures); err != nil {
		return nil, fmt.Errorf("download.verify_signatures: %w", err)
	}
	if s.Contamination, err = verify.ParseMode(file.Verify.Contamination); err != nil {
		return nil, fmt.Errorf("verify.contamination: %w", err)
	}
	for _, b := range s.Backends {
		if !knownBackend(b) {
			return nil, fmt.Errorf("unknown download backend %q", b)
		}
	}

	if v := getenv(EnvLockDir); v != "" {
		s.LockDir = v
	}
	if v := getenv(EnvDownloadSlots); v != "" {
		s.Slots = parseSlots(v, s.Slots, warn)
	}
	if v := getenv(EnvVerifySignatures); v != "" {
		if m, err := fetch.ParseSignatureMode(v); err != nil {
			_, _ = fmt.Fprintf(warn, "Warning: invalid %s value %q, using %s\n", EnvVerifySignatures, v, s.Signatures)
		} else {
			s.Signatures = m
		}
	}
	if v := getenv(EnvContamination); v != "" {
		if m, err := verify.ParseMode(v); err != nil {
			_, _ = fmt.Fprintf(warn, "Warning: invalid %s value %q, using %s\n", EnvContamination, v, s.Contamination)
		} else {
			s.Contamination = m
		}
	}
	s.Debug = IsTruthy(getenv(EnvDebug))
	return s, nil
}

func parseSlots(v string, fallback int, warn io.Writer) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		_, _ = fmt.Fprintf(warn, "Warning: invalid %s value %q, using %d\n", EnvDownloadSlots, v, fallback)
		return fallback
	}
	// An explicit zero is out of range here; only an unset value means the
	// default.
	clamped := lock.ClampSlots(max(n, 1))
	if n < 1 || n > lock.MaxSlots {
		_, _ = fmt.Fprintf(warn, "Warning: %s=%d out of range, using %d\n", EnvDownloadSlots, n, clamped)
	}
	return clamped
}

func knownBackend(name string) bool {
	for _, b := range DefaultBackends {
		if b == name {
			return true
		}
	}
	return false
}

// IsTruthy reports whether an environment value means "enabled".
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
