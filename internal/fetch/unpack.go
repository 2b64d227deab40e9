package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	lzip "github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"
	"golang.org/x/sys/unix"
)

// UnpackOptions control extraction.
type UnpackOptions struct {
	// Format overrides detection from the file name.
	Format          string
	StripComponents int
	// Epoch, when non-zero, is applied as the mtime of every extracted
	// entry.
	Epoch time.Time
}

// DetectFormat maps an archive file name to a format name, or "" when
// the name is not a known archive.
func DetectFormat(name string) string {
	lower := strings.ToLower(name)
	for _, f := range []struct{ suffix, format string }{
		{".tar.gz", "tar.gz"}, {".tgz", "tar.gz"},
		{".tar.xz", "tar.xz"}, {".txz", "tar.xz"},
		{".tar.bz2", "tar.bz2"}, {".tbz2", "tar.bz2"}, {".tbz", "tar.bz2"},
		{".tar.zst", "tar.zst"}, {".tzst", "tar.zst"},
		{".tar.lz", "tar.lz"}, {".tlz", "tar.lz"},
		{".tar", "tar"},
		{".zip", "zip"},
	} {
		if strings.HasSuffix(lower, f.suffix) {
			return f.format
		}
	}
	return ""
}

// Unpack extracts archive into dest. Entries that would land outside dest,
// absolute symlinks and symlinks escaping dest are rejected.
func Unpack(archive, dest string, opts UnpackOptions) error {
	format := opts.Format
	if format == "" {
		format = DetectFormat(archive)
	}
	if format == "" {
		return fmt.Errorf("cannot detect archive format of %s", filepath.Base(archive))
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	dest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}

	u := &unpacker{dest: dest, strip: opts.StripComponents, epoch: opts.Epoch}
	if format == "zip" {
		err = u.zip(archive)
	} else {
		err = u.tarFile(archive, format)
	}
	if err != nil {
		return err
	}
	return u.stamp()
}

type unpacker struct {
	dest  string
	strip int
	epoch time.Time
}

func (u *unpacker) tarFile(archive, format string) error {
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader
	switch format {
	case "tar":
		r = f
	case "tar.gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	case "tar.xz":
		if r, err = xz.NewReader(f); err != nil {
			return fmt.Errorf("failed to create xz reader: %w", err)
		}
	case "tar.bz2":
		r = bzip2.NewReader(f)
	case "tar.zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case "tar.lz":
		if r, err = lzip.NewReader(f); err != nil {
			return fmt.Errorf("failed to create lzip reader: %w", err)
		}
	default:
		return fmt.Errorf("unsupported archive format: %s", format)
	}
	return u.tar(tar.NewReader(r))
}

// target strips leading components from name and returns the absolute
// destination, or "" when the entry is stripped away entirely.
func (u *unpacker) target(name string) (string, error) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '/' })
	if len(parts) <= u.strip {
		return "", nil
	}
	rel := filepath.Join(parts[u.strip:]...)
	if rel == "." {
		return "", nil
	}
	target := filepath.Join(u.dest, rel)
	if !within(target, u.dest) {
		return "", fmt.Errorf("archive entry escapes destination directory: %s", name)
	}
	return target, nil
}

func (u *unpacker) tar(tr *tar.Reader) error {
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}
		target, err := u.target(hdr.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := u.file(target, hdr.FileInfo().Mode().Perm(), tr); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := u.symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			source, err := u.target(hdr.Linkname)
			if err != nil {
				return err
			}
			if source == "" {
				return fmt.Errorf("hard link %s points at a stripped entry %s", hdr.Name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Link(source, target); err != nil {
				return fmt.Errorf("failed to create hard link: %w", err)
			}
		default:
			// Devices, fifos and pax metadata have no place in a source tree.
			continue
		}
	}
}

func (u *unpacker) zip(archive string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer func() { _ = r.Close() }()

	for _, zf := range r.File {
		target, err := u.target(zf.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}
		mode := zf.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case mode&os.ModeSymlink != 0:
			rc, err := zf.Open()
			if err != nil {
				return err
			}
			link, err := io.ReadAll(io.LimitReader(rc, 4096))
			_ = rc.Close()
			if err != nil {
				return err
			}
			if err := u.symlink(string(link), target); err != nil {
				return err
			}
		default:
			rc, err := zf.Open()
			if err != nil {
				return fmt.Errorf("failed to open file in zip: %w", err)
			}
			err = u.file(target, mode.Perm(), rc)
			_ = rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (u *unpacker) file(target string, perm os.FileMode, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if perm == 0 {
		perm = 0o644
	}
	// Never follow a symlink planted by an earlier entry.
	_ = os.Remove(target)
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	return out.Close()
}

func (u *unpacker) symlink(linkname, target string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("absolute symlink targets are not allowed: %s -> %s", target, linkname)
	}
	if resolved := filepath.Join(filepath.Dir(target), linkname); !within(resolved, u.dest) {
		return fmt.Errorf("symlink target escapes destination directory: %s -> %s", target, linkname)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	// Replace atomically so a concurrent reader never sees a gap.
	tmp := target + ".tmp-link"
	_ = os.Remove(tmp)
	if err := os.Symlink(linkname, tmp); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to create symlink: %w", err)
	}
	return nil
}

// stamp sets the mtime of dest and everything under it to the epoch,
// children before parents.
func (u *unpacker) stamp() error {
	if u.epoch.IsZero() {
		return nil
	}
	var paths []string
	err := filepath.WalkDir(u.dest, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return err
	}
	tv := unix.NsecToTimeval(u.epoch.UnixNano())
	for i := len(paths) - 1; i >= 0; i-- {
		if err := unix.Lutimes(paths[i], []unix.Timeval{tv, tv}); err != nil {
			return fmt.Errorf("failed to set timestamp on %s: %w", paths[i], err)
		}
	}
	return nil
}

func within(target, base string) bool {
	target = filepath.Clean(target)
	return target == base || strings.HasPrefix(target, base+string(os.PathSeparator))
}
