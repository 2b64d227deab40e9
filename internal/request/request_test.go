package request

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buckos/pkgbuild/internal/phase"
	"github.com/buckos/pkgbuild/internal/stage"
)

const tomlRequest = `
name = "zlib"
version = "1.3.1"
category = "sys-libs"
stage = "STAGE2"
use = ["static", "minizip", "static"]
jobs = 4
roots = ["deps/toolchain", "/opt/buckos/glibc"]
dest = "out/image"
work_dir = "out/work"

[flags]
cflags = ["-fPIC"]

[env]
ZLIB_DEBUG = "0"

[[sources]]
url = "https://zlib.net/zlib-1.3.1.tar.xz"
checksum = "sha256:38ef96b8dfe510d42707d9c781877914792541133e1870841463bfa73f883e32"
strip_components = 1

[[phases]]
name = "configure"
args = ["./configure", "--prefix=/usr"]

[[phases]]
name = "compile"
args = ["make"]

[[phases]]
name = "install"
script = "make install DESTDIR=\"$DESTDIR\""
`

const yamlRequest = `
name: zlib
version: 1.3.1
stage: stage3
dest: /tmp/image
work_dir: /tmp/work
contamination: strict
phases:
  - name: compile
    args: [make]
  - name: install
    args: [make, install]
`

func TestLoadTOML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "zlib.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlRequest), 0o644))

	req, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, stage.Stage2, req.Stage)
	assert.Equal(t, []string{filepath.Join(dir, "deps/toolchain"), "/opt/buckos/glibc"}, req.Roots)
	assert.Equal(t, filepath.Join(dir, "out/image"), req.Dest)
	assert.Equal(t, filepath.Join(dir, "out/work/src"), req.SourceDir)
	assert.Equal(t, filepath.Join(dir, "out/work/logs"), req.LogDir())
	assert.Equal(t, "zlib", req.Sources[0].Package)
	assert.Equal(t, []string{"-fPIC"}, req.Flags.CFlags)
	assert.Equal(t, "0", req.Env["ZLIB_DEBUG"])
	require.Len(t, req.Phases, 3)
	assert.Equal(t, phase.Install, req.Phases[2].Name)

	ctx := req.PhaseContext()
	assert.Equal(t, []string{"minizip", "static"}, ctx.Use)
	assert.Equal(t, "-j4", ctx.Vars()["MAKEFLAGS"])
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "zlib.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlRequest), 0o644))

	req, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, stage.Stage3, req.Stage)
	assert.Equal(t, "strict", req.Contamination)
	assert.Equal(t, "/tmp/work/src", req.SourceDir)
	assert.Equal(t, []string{"make", "install"}, req.Phases[1].Args)
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ext  string
		data string
	}{
		{"unknown toml key", ".toml", "name = \"a\"\nverison = \"1\"\n"},
		{"unknown yaml key", ".yaml", "name: a\nverison: 1\n"},
		{"bad stage", ".toml", "stage = \"stage9\"\n"},
		{"unsupported format", ".json", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.ext)
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *PackageBuildRequest {
		return &PackageBuildRequest{
			Name:    "zlib",
			Version: "1.3.1",
			Dest:    "/tmp/image",
			WorkDir: "/tmp/work",
			Phases:  []phase.Phase{{Name: phase.Install, Args: []string{"true"}}},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(r *PackageBuildRequest)
	}{
		{"bad name", func(r *PackageBuildRequest) { r.Name = "../zlib" }},
		{"no version", func(r *PackageBuildRequest) { r.Version = "" }},
		{"no dest", func(r *PackageBuildRequest) { r.Dest = "" }},
		{"dest is work dir", func(r *PackageBuildRequest) { r.Dest = r.WorkDir }},
		{"negative jobs", func(r *PackageBuildRequest) { r.Jobs = -1 }},
		{"relative root", func(r *PackageBuildRequest) { r.Roots = []string{"deps"} }},
		{"no phases", func(r *PackageBuildRequest) { r.Phases = nil }},
		{"phase order", func(r *PackageBuildRequest) {
			r.Phases = append(r.Phases, phase.Phase{Name: phase.Compile, Args: []string{"make"}})
		}},
		{"bad contamination", func(r *PackageBuildRequest) { r.Contamination = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			assert.Error(t, r.Validate())
		})
	}
}
