package provenance

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrNoLineage is returned when a tree has no lineage file.
var ErrNoLineage = errors.New("no provenance lineage")

// maxLineSize bounds a single lineage line.
const maxLineSize = 1 << 20

// Entry is one parsed lineage line. Raw is kept verbatim so dependency
// records are copied without re-encoding.
type Entry struct {
	Record Record
	Raw    string
}

// ReadLineage parses the lineage file under root. Unparseable lines are
// skipped. A missing file yields ErrNoLineage.
func ReadLineage(root string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(root, LineageFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoLineage
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		out = append(out, Entry{Record: rec, Raw: line})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lineage: %w", err)
	}
	return out, nil
}

// MergeLineage returns own followed by each dependency root's lineage
// lines in root order, keeping the first occurrence of every name and
// version. Roots without a lineage file are skipped.
func MergeLineage(own Entry, depRoots []string) ([]Entry, error) {
	seen := map[string]bool{own.Record.Key(): true}
	out := []Entry{own}
	for _, root := range depRoots {
		entries, err := ReadLineage(root)
		if errors.Is(err, ErrNoLineage) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", root, err)
		}
		for _, e := range entries {
			if seen[e.Record.Key()] {
				continue
			}
			seen[e.Record.Key()] = true
			out = append(out, e)
		}
	}
	return out, nil
}

// SubgraphHash is the sha256 over the sorted unique content hashes of the
// lineage, one per line.
func SubgraphHash(entries []Entry) string {
	uniq := map[string]bool{}
	for _, e := range entries {
		if e.Record.ContentHash != "" {
			uniq[e.Record.ContentHash] = true
		}
	}
	hashes := make([]string, 0, len(uniq))
	for h := range uniq {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	h := sha256.New()
	for _, s := range hashes {
		h.Write([]byte(s))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeLineage(dest string, entries []Entry) error {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Raw)
		b.WriteByte('\n')
	}
	return os.WriteFile(filepath.Join(dest, LineageFile), []byte(b.String()), 0o644)
}

// SortRecords orders records by name, then by version with semantic
// versions compared numerically and everything else lexically.
func SortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Name != recs[j].Name {
			return recs[i].Name < recs[j].Name
		}
		return versionLess(recs[i].Version, recs[j].Version)
	})
}

func versionLess(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.LessThan(vb)
	}
	return a < b
}
