package request

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Load reads a request file. The format follows the extension: .toml, or
// .yaml/.yml. Relative paths in the file are resolved against its directory.
func Load(path string) (*PackageBuildRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	req, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	req.Resolve(dir)
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid request: %w", path, err)
	}
	return req, nil
}

// Parse decodes data in the format named by ext. Unknown keys are errors.
func Parse(data []byte, ext string) (*PackageBuildRequest, error) {
	req := &PackageBuildRequest{}
	switch strings.ToLower(ext) {
	case ".toml":
		md, err := toml.Decode(string(data), req)
		if err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(req); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported request format %q (want .toml, .yaml or .yml)", ext)
	}
	return req, nil
}
