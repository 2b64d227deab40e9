package provenance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/buckos/pkgbuild/internal/log"
	"github.com/buckos/pkgbuild/internal/platform"
)

// Recorder writes provenance into a destination tree.
type Recorder struct {
	logger    log.Logger
	objcopy   string
	env       []string
	buildInfo bool
	now       func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithStamping enables ELF stamping with the given objcopy, resolved
// against PATH in env when it has no slash.
func WithStamping(objcopy string, env []string) Option {
	return func(r *Recorder) {
		r.objcopy = objcopy
		r.env = env
	}
}

// WithBuildInfo records build time and host. Records carrying them are no
// longer reproducible.
func WithBuildInfo(enabled bool) Option {
	return func(r *Recorder) { r.buildInfo = enabled }
}

// NewRecorder creates a Recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{logger: log.NewNoop(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result summarizes a recording.
type Result struct {
	Record       Record
	Lineage      int
	SubgraphHash string
	Stamped      int
}

// Record seals rec, writes the lineage and subgraph hash files into dest,
// and stamps ELF files when stamping is enabled.
func (r *Recorder) Record(ctx context.Context, dest string, rec Record, depRoots []string) (*Result, error) {
	if r.buildInfo {
		rec.BuildTime = r.now().UTC().Format(time.RFC3339)
		rec.BuildHost = platform.Hostname()
	}
	sealed, err := rec.Seal()
	if err != nil {
		return nil, err
	}
	line, err := sealed.Line()
	if err != nil {
		return nil, err
	}

	entries, err := MergeLineage(Entry{Record: sealed, Raw: line}, depRoots)
	if err != nil {
		return nil, err
	}
	if err := writeLineage(dest, entries); err != nil {
		return nil, fmt.Errorf("failed to write lineage: %w", err)
	}
	subgraph := SubgraphHash(entries)
	if err := os.WriteFile(filepath.Join(dest, SubgraphHashFile), []byte(subgraph+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write subgraph hash: %w", err)
	}

	res := &Result{Record: sealed, Lineage: len(entries), SubgraphHash: subgraph}
	r.logger.Info("provenance recorded", "content_hash", sealed.ContentHash, "lineage", len(entries))

	if r.objcopy != "" {
		res.Stamped, err = r.stamp(ctx, dest, line)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// stamp embeds line into every regular ELF file under dest. A failure on
// one file is logged and skipped.
func (r *Recorder) stamp(ctx context.Context, dest, line string) (int, error) {
	objcopy, err := r.resolveObjcopy()
	if err != nil {
		r.logger.Warn("objcopy not found, skipping ELF stamping", "objcopy", r.objcopy)
		return 0, nil
	}

	note, err := os.CreateTemp("", "pkgbuild-note-*.json")
	if err != nil {
		return 0, fmt.Errorf("failed to create note file: %w", err)
	}
	defer func() { _ = os.Remove(note.Name()) }()
	if _, err := io.WriteString(note, line+"\n"); err != nil {
		_ = note.Close()
		return 0, fmt.Errorf("failed to write note file: %w", err)
	}
	if err := note.Close(); err != nil {
		return 0, err
	}

	stamped := 0
	err = filepath.WalkDir(dest, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() || !isELF(p) {
			return nil
		}
		cmd := exec.CommandContext(ctx, objcopy,
			"--add-section", NoteSection+"="+note.Name(),
			"--set-section-flags", NoteSection+"=noload,readonly",
			p)
		cmd.Env = r.env
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			rel, _ := filepath.Rel(dest, p)
			r.logger.Warn("objcopy failed", "file", rel, "error", strings.TrimSpace(stderr.String()))
			return nil
		}
		stamped++
		return nil
	})
	if err != nil {
		return stamped, err
	}
	r.logger.Info("stamped ELF files", "count", stamped)
	return stamped, nil
}

func (r *Recorder) resolveObjcopy() (string, error) {
	if strings.Contains(r.objcopy, "/") {
		if _, err := os.Stat(r.objcopy); err != nil {
			return "", err
		}
		return r.objcopy, nil
	}
	for _, kv := range r.env {
		if path, ok := strings.CutPrefix(kv, "PATH="); ok {
			for _, dir := range filepath.SplitList(path) {
				candidate := filepath.Join(dir, r.objcopy)
				if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
					return candidate, nil
				}
			}
			return "", exec.ErrNotFound
		}
	}
	return exec.LookPath(r.objcopy)
}

func isELF(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()
	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return false
	}
	return bytes.Equal(magic, []byte{0x7f, 'E', 'L', 'F'})
}

// MismatchError reports a provenance file that does not match its
// recomputed hash.
type MismatchError struct {
	File     string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: hash mismatch (recorded %s, computed %s)", e.File, e.Expected, e.Actual)
}

// Verify recomputes the own record's content hash and the subgraph hash
// of the tree at root. It returns the own record.
func Verify(root string) (*Record, error) {
	entries, err := ReadLineage(root)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", LineageFile, ErrNoLineage)
	}
	own := entries[0].Record
	actual, err := own.ComputeContentHash()
	if err != nil {
		return nil, err
	}
	if actual != own.ContentHash {
		return &own, &MismatchError{File: LineageFile, Expected: own.ContentHash, Actual: actual}
	}

	data, err := os.ReadFile(filepath.Join(root, SubgraphHashFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &own, err
	}
	if err == nil {
		recorded := strings.TrimSpace(string(data))
		if computed := SubgraphHash(entries); recorded != computed {
			return &own, &MismatchError{File: SubgraphHashFile, Expected: recorded, Actual: computed}
		}
	}
	return &own, nil
}
