package build

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buckos/pkgbuild/internal/buildenv"
	"github.com/buckos/pkgbuild/internal/builderr"
	"github.com/buckos/pkgbuild/internal/config"
	"github.com/buckos/pkgbuild/internal/fetch"
	"github.com/buckos/pkgbuild/internal/phase"
	"github.com/buckos/pkgbuild/internal/provenance"
	"github.com/buckos/pkgbuild/internal/request"
	"github.com/buckos/pkgbuild/internal/stage"
	"github.com/buckos/pkgbuild/internal/testutil"
)

func testSettings(t *testing.T, vendorDir string) *config.Settings {
	t.Helper()
	return testutil.NewTestSettings(t, &config.File{
		Download: config.DownloadSection{VendorDir: vendorDir, Backends: []string{"vendor"}},
	})
}

func testBase(t *testing.T) buildenv.Base {
	return buildenv.Base{"PATH": os.Getenv("PATH"), "HOME": t.TempDir()}
}

func testRequest(t *testing.T, phases ...phase.Phase) *request.PackageBuildRequest {
	t.Helper()
	dir := t.TempDir()
	req := &request.PackageBuildRequest{
		Name:    "hello",
		Version: "2.12",
		Use:     []string{"nls"},
		Dest:    "image",
		WorkDir: "work",
		Phases:  phases,
	}
	req.Resolve(dir)
	require.NoError(t, req.Validate())
	return req
}

func TestBuildEndToEnd(t *testing.T) {
	vendor := t.TempDir()
	content := []byte("hello, world\n")
	require.NoError(t, os.WriteFile(filepath.Join(vendor, "hello-notes.txt"), content, 0o644))
	sum := sha256.Sum256(content)

	req := testRequest(t,
		phase.Phase{Name: phase.Configure, Args: []string{"test", "-f", "hello-notes.txt"}},
		phase.Phase{Name: phase.Install, Script: `mkdir -p "$DESTDIR/usr/share/doc/$PKG_NAME" && cp hello-notes.txt "$DESTDIR/usr/share/doc/$PKG_NAME/"`},
	)
	req.Sources = []fetch.Source{{
		Package:  "hello",
		URL:      "https://ftp.gnu.org/gnu/hello/notes.txt",
		Filename: "hello-notes.txt",
		Checksum: "sha256:" + hex.EncodeToString(sum[:]),
	}}

	var stdout bytes.Buffer
	b := New(testSettings(t, vendor), WithBase(testBase(t)), WithOutput(&stdout, &stdout))
	out, err := b.Build(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, out.Sources, 1)
	assert.Equal(t, "vendor", out.Sources[0].Backend)
	require.Len(t, out.Phases, 2)
	assert.Equal(t, 1, out.Report.FileCount)
	assert.FileExists(t, filepath.Join(req.Dest, "usr/share/doc/hello/hello-notes.txt"))
	assert.FileExists(t, filepath.Join(req.LogDir(), "install.log"))
	assert.FileExists(t, filepath.Join(req.LogDir(), ReportFile))

	rec := out.Provenance.Record
	assert.Equal(t, hex.EncodeToString(sum[:]), rec.SourceSHA256)
	assert.Equal(t, []string{"nls"}, rec.UseFlags)
	assert.NotEmpty(t, rec.Target)

	got, err := provenance.Verify(req.Dest)
	require.NoError(t, err)
	assert.Equal(t, rec.ContentHash, got.ContentHash)
}

func TestBuildStopsAtFirstFailedPhase(t *testing.T) {
	req := testRequest(t,
		phase.Phase{Name: phase.Compile, Args: []string{"false"}},
		phase.Phase{Name: phase.Install, Script: `touch "$DESTDIR/marker"`},
	)
	b := New(testSettings(t, ""), WithBase(testBase(t)))
	out, err := b.Build(context.Background(), req)

	var pf *builderr.PhaseFailure
	require.True(t, errors.As(err, &pf), "got %v", err)
	assert.Equal(t, "hello", pf.Package)
	assert.Equal(t, "compile", pf.Phase)
	assert.Equal(t, 1, pf.ExitCode)
	assert.Len(t, out.Phases, 1)
	assert.NoFileExists(t, filepath.Join(req.Dest, "marker"))
	assert.NoFileExists(t, filepath.Join(req.LogDir(), "install.log"))
}

func TestBuildEmptyOutput(t *testing.T) {
	req := testRequest(t, phase.Phase{Name: phase.Install, Args: []string{"true"}})
	b := New(testSettings(t, ""), WithBase(testBase(t)))
	_, err := b.Build(context.Background(), req)

	var vf *builderr.VerificationFailure
	require.True(t, errors.As(err, &vf), "got %v", err)
	assert.Equal(t, "hello", vf.Package)
	assert.Equal(t, "none", vf.Stage)
}

func TestBuildRejectsUnknownContaminationMode(t *testing.T) {
	t.Parallel()

	req := testRequest(t, phase.Phase{Name: phase.Install, Script: `touch "$WORKDIR/ran"`})
	// Set after Validate, as a caller that skips validation would.
	req.Contamination = "loud"
	_, err := New(testSettings(t, ""), WithBase(testBase(t))).Build(context.Background(), req)

	var ce *builderr.ConfigurationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Contains(t, ce.Detail, "loud")
	assert.NoFileExists(t, filepath.Join(req.WorkDir, "ran"))
}

func TestPrepareExportsPhaseVariables(t *testing.T) {
	t.Parallel()

	req := testRequest(t, phase.Phase{Name: phase.Install, Args: []string{"true"}})
	req.Jobs = 3
	req.Category = "app-misc"
	plan, err := New(testSettings(t, ""), WithBase(testBase(t))).Prepare(context.Background(), req)
	require.NoError(t, err)

	for k, want := range map[string]string{
		"DESTDIR":           req.Dest,
		"PKG_NAME":          "hello",
		"PKG_CATEGORY":      "app-misc",
		"USE":               "nls",
		"MAKEFLAGS":         "-j3",
		"SOURCE_DATE_EPOCH": "315576000",
	} {
		got, ok := plan.Env.Lookup(k)
		assert.True(t, ok, k)
		assert.Equal(t, want, got, k)
	}
}

func TestPrepareInstallsWrapper(t *testing.T) {
	t.Parallel()

	req := testRequest(t, phase.Phase{Name: phase.Install, Args: []string{"true"}})
	plan, err := New(testSettings(t, ""), WithBase(testBase(t)), WithSelf("/usr/bin/pkgbuild")).Prepare(context.Background(), req)
	require.NoError(t, err)
	wrapper := filepath.Join(req.WorkDir, ".pkgconf-wrapper")
	assert.FileExists(t, filepath.Join(wrapper, "pkg-config"))
	require.NotEmpty(t, plan.Env.Path)
	assert.Equal(t, wrapper, plan.Env.Path[0])
}

func TestPrepareStage2WithoutCrossCompiler(t *testing.T) {
	t.Parallel()

	req := testRequest(t, phase.Phase{Name: phase.Install, Args: []string{"true"}})
	req.Stage = stage.Stage2
	req.Roots = []string{t.TempDir()}
	_, err := New(testSettings(t, ""), WithBase(testBase(t))).Prepare(context.Background(), req)

	var ce *builderr.ConfigurationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "hello", ce.Package)
	assert.Equal(t, "stage2", ce.Stage)
	assert.NotEmpty(t, ce.Searched)
}

func TestPrepareStage3UsesOnlyDependencyRoots(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutil.WriteExecutables(t, root, "tools/bin/gcc", "tools/bin/ld", "usr/bin/make")
	testutil.WriteTree(t, root, map[string]string{
		"usr/include/zlib.h":        "",
		"usr/lib/pkgconfig/zlib.pc": "prefix=/usr\nincludedir=${prefix}/include\n",
		"usr/share/aclocal/zlib.m4": "",
	})

	req := testRequest(t, phase.Phase{Name: phase.Install, Args: []string{"true"}})
	req.Stage = stage.Stage3
	req.Roots = []string{root}
	plan, err := New(testSettings(t, ""), WithBase(testBase(t))).Prepare(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "tools/bin/gcc"), plan.Env.Binaries.CC)
	for _, dir := range plan.Env.Path {
		assert.True(t, strings.HasPrefix(dir, root), "PATH entry %s outside the dependency root", dir)
	}
	cppflags, _ := plan.Env.Lookup("CPPFLAGS")
	assert.Contains(t, cppflags, "-I"+filepath.Join(root, "usr/include"))
	aclocal, _ := plan.Env.Lookup("ACLOCAL_PATH")
	assert.Equal(t, filepath.Join(root, "usr/share/aclocal"), aclocal)
	assert.True(t, plan.Policy.ContaminationScan)
}

func TestBackendsSkipUnconfigured(t *testing.T) {
	t.Parallel()

	s := testSettings(t, "")
	s.Backends = config.DefaultBackends
	backends, err := Backends(context.Background(), s, nil)
	require.NoError(t, err)
	require.Len(t, backends, 1)
	assert.Equal(t, "upstream", backends[0].Name())

	s.VendorDir = "/srv/distfiles"
	s.MirrorURL = "https://mirror.example.org/distfiles"
	backends, err = Backends(context.Background(), s, nil)
	require.NoError(t, err)
	var names []string
	for _, b := range backends {
		names = append(names, b.Name())
	}
	assert.Equal(t, []string{"vendor", "mirror", "upstream"}, names)
}

func TestNewFetcherNeedsABackend(t *testing.T) {
	t.Parallel()

	s := testSettings(t, "")
	_, err := NewFetcher(context.Background(), s, nil)
	assert.ErrorContains(t, err, "no download backend")
}
