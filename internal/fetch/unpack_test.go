package fetch

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

type tarEntry struct {
	name     string
	body     string
	typeflag byte
	linkname string
}

func buildTar(t *testing.T, w io.Writer, entries []tarEntry) {
	t.Helper()
	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Typeflag: e.typeflag, Linkname: e.linkname, Mode: 0o644, Size: int64(len(e.body))}
		switch e.typeflag {
		case tar.TypeDir:
			hdr.Mode = 0o755
		case tar.TypeSymlink, tar.TypeLink:
			hdr.Size = 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
}

var sampleTree = []tarEntry{
	{name: "zlib-1.3.1/", typeflag: tar.TypeDir},
	{name: "zlib-1.3.1/configure", body: "#!/bin/sh\n", typeflag: tar.TypeReg},
	{name: "zlib-1.3.1/src/zlib.h", body: "/* zlib */\n", typeflag: tar.TypeReg},
	{name: "zlib-1.3.1/include", typeflag: tar.TypeSymlink, linkname: "src"},
	{name: "zlib-1.3.1/zconf.h", typeflag: tar.TypeLink, linkname: "zlib-1.3.1/src/zlib.h"},
}

func writeArchive(t *testing.T, name string, entries []tarEntry) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	f, err := os.Create(p)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	switch DetectFormat(name) {
	case "tar":
		buildTar(t, f, entries)
	case "tar.gz":
		gz := gzip.NewWriter(f)
		buildTar(t, gz, entries)
		require.NoError(t, gz.Close())
	case "tar.zst":
		zw, err := zstd.NewWriter(f)
		require.NoError(t, err)
		buildTar(t, zw, entries)
		require.NoError(t, zw.Close())
	case "tar.xz":
		xw, err := xz.NewWriter(f)
		require.NoError(t, err)
		buildTar(t, xw, entries)
		require.NoError(t, xw.Close())
	default:
		t.Fatalf("no writer for %s", name)
	}
	return p
}

func TestUnpackFormats(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"zlib.tar", "zlib.tar.gz", "zlib.tgz", "zlib.tar.zst", "zlib.tar.xz"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			archive := writeArchive(t, name, sampleTree)
			dest := t.TempDir()
			require.NoError(t, Unpack(archive, dest, UnpackOptions{StripComponents: 1}))

			data, err := os.ReadFile(filepath.Join(dest, "src", "zlib.h"))
			require.NoError(t, err)
			assert.Equal(t, "/* zlib */\n", string(data))

			link, err := os.Readlink(filepath.Join(dest, "include"))
			require.NoError(t, err)
			assert.Equal(t, "src", link)

			data, err = os.ReadFile(filepath.Join(dest, "zconf.h"))
			require.NoError(t, err)
			assert.Equal(t, "/* zlib */\n", string(data))

			_, err = os.Stat(filepath.Join(dest, "zlib-1.3.1"))
			assert.True(t, os.IsNotExist(err), "top directory is stripped")
		})
	}
}

func TestUnpackRejectsTraversal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries []tarEntry
	}{
		{"dotdot path", []tarEntry{{name: "../escape", body: "x", typeflag: tar.TypeReg}}},
		{"absolute symlink", []tarEntry{{name: "link", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"}}},
		{"escaping symlink", []tarEntry{{name: "a/link", typeflag: tar.TypeSymlink, linkname: "../../outside"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			archive := writeArchive(t, "evil.tar", tt.entries)
			assert.Error(t, Unpack(archive, t.TempDir(), UnpackOptions{}))
		})
	}
}

func TestUnpackEpoch(t *testing.T) {
	t.Parallel()

	archive := writeArchive(t, "zlib.tar.gz", sampleTree)
	dest := t.TempDir()
	epoch := time.Unix(315576000, 0)
	require.NoError(t, Unpack(archive, dest, UnpackOptions{Epoch: epoch}))

	for _, rel := range []string{"zlib-1.3.1", "zlib-1.3.1/src", "zlib-1.3.1/configure"} {
		info, err := os.Stat(filepath.Join(dest, rel))
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(epoch), "%s mtime = %v", rel, info.ModTime())
	}
	info, err := os.Lstat(filepath.Join(dest, "zlib-1.3.1", "include"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(epoch), "symlink mtime = %v", info.ModTime())
}

func TestUnpackZip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("pkg-1.0/README")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	archive := filepath.Join(t.TempDir(), "pkg-1.0.zip")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))

	dest := t.TempDir()
	require.NoError(t, Unpack(archive, dest, UnpackOptions{StripComponents: 1}))
	data, err := os.ReadFile(filepath.Join(dest, "README"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tar.lz", DetectFormat("gzip-1.13.tar.lz"))
	assert.Equal(t, "tar.bz2", DetectFormat("bzip2-1.0.8.TAR.BZ2"))
	assert.Equal(t, "", DetectFormat("patch.diff"))
	assert.Error(t, Unpack("patch.diff", t.TempDir(), UnpackOptions{}))
}
