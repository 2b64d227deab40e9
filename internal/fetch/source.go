// Package fetch acquires source archives: from the local distfile cache,
// then from each configured backend in order, verifying every copy
// against the expected checksum before it is accepted.
package fetch

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrNotFound is returned by a backend that does not have the file.
var ErrNotFound = errors.New("not found")

// Source is one file to acquire.
type Source struct {
	// Package names the owning package; it selects the mirror directory.
	Package string `toml:"package" yaml:"package" json:"package"`
	URL     string `toml:"url" yaml:"url" json:"url"`
	// Filename defaults to the last URL path segment.
	Filename string `toml:"filename" yaml:"filename" json:"filename,omitempty"`
	// Checksum is "algo:hex" or a bare sha256 hex digest.
	Checksum string `toml:"checksum" yaml:"checksum" json:"checksum,omitempty"`

	SignatureURL   string `toml:"signature_url" yaml:"signature_url" json:"signatureUrl,omitempty"`
	KeyFile        string `toml:"key_file" yaml:"key_file" json:"keyFile,omitempty"`
	KeyURL         string `toml:"key_url" yaml:"key_url" json:"keyUrl,omitempty"`
	KeyFingerprint string `toml:"key_fingerprint" yaml:"key_fingerprint" json:"keyFingerprint,omitempty"`

	// StripComponents is applied when the archive is unpacked.
	StripComponents int `toml:"strip_components" yaml:"strip_components" json:"stripComponents,omitempty"`
}

// Name returns the file name the source is stored under.
func (s Source) Name() string {
	if s.Filename != "" {
		return s.Filename
	}
	if u, err := url.Parse(s.URL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(s.URL)
}

// Validate checks the fields needed to fetch.
func (s Source) Validate() error {
	name := s.Name()
	if s.URL == "" && s.Filename == "" {
		return fmt.Errorf("source needs a url or filename")
	}
	if name == "" || name == "." || name == "/" || strings.ContainsAny(name, `/\`) || name == ".." {
		return fmt.Errorf("invalid source filename %q", name)
	}
	if s.Checksum != "" {
		if _, err := ParseChecksum(s.Checksum); err != nil {
			return err
		}
	}
	return nil
}

// MirrorPaths returns the relative paths a mirror may store s under: the
// letter directory with the package-prefixed name first, then flat names.
func MirrorPaths(s Source) []string {
	name := s.Name()
	pkg := s.Package
	if pkg == "" {
		return []string{name}
	}
	mirrorName := name
	if !strings.HasPrefix(name, pkg+"-") {
		mirrorName = pkg + "-" + name
	}
	letter := strings.ToLower(pkg[:1])
	out := []string{path.Join(letter, mirrorName), mirrorName}
	if mirrorName != name {
		out = append(out, name)
	}
	return out
}

// Result reports where a source ended up.
type Result struct {
	Source  Source
	Path    string
	Backend string
}
