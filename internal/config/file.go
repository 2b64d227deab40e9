package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/buckos/pkgbuild/internal/fetch"
)

// File mirrors config.toml.
type File struct {
	Download   DownloadSection   `toml:"download"`
	S3         fetch.S3Config    `toml:"s3"`
	Verify     VerifySection     `toml:"verify"`
	Provenance ProvenanceSection `toml:"provenance"`
}

// DownloadSection configures source acquisition.
type DownloadSection struct {
	Slots                int      `toml:"slots"`
	LockDir              string   `toml:"lock_dir"`
	Backends             []string `toml:"backends"`
	VendorDir            string   `toml:"vendor_dir"`
	MirrorURL            string   `toml:"mirror_url"`
	FirstBackendRequired bool     `toml:"first_backend_required"`
	VerifySignatures     string   `toml:"verify_signatures"`
	Timeout              string   `toml:"timeout"`
}

// VerifySection configures output verification.
type VerifySection struct {
	Contamination   string   `toml:"contamination"`
	SampleLimit     int      `toml:"sample_limit"`
	AllowedPrefixes []string `toml:"allowed_prefixes"`
}

// ProvenanceSection configures provenance recording.
type ProvenanceSection struct {
	StampELF        bool `toml:"stamp_elf"`
	RecordBuildHost bool `toml:"record_build_host"`
}

// LoadFile reads path. A missing file yields an empty File; unknown keys
// are an error so typos do not pass silently.
func LoadFile(path string) (*File, error) {
	f := &File{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	md, err := toml.Decode(string(data), f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}
	return f, nil
}

// Save writes f to path, creating the parent directory.
func (f *File) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := toml.NewEncoder(out).Encode(f); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return out.Close()
}
