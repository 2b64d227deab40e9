// Package provenance records where a package's output came from: an own
// record with a content hash, the lineage of its dependencies, and
// optionally the own record embedded into every ELF file.
package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"
)

const (
	// LineageFile lists the own record first, then dependency records.
	LineageFile = ".buckos-provenance.jsonl"
	// SubgraphHashFile holds the hash over every content hash in the lineage.
	SubgraphHashFile = ".buckos-subgraph-hash"
	// NoteSection is the ELF section the own record is stamped into.
	NoteSection = ".note.package"
)

// Record is one package's provenance.
type Record struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	PackageType  string   `json:"packageType"`
	Target       string   `json:"target"`
	SourceURL    string   `json:"sourceUrl"`
	SourceSHA256 string   `json:"sourceSha256"`
	GraphHash    string   `json:"graphHash"`
	UseFlags     []string `json:"useFlags"`

	BuildTime string `json:"buildTime,omitempty"`
	BuildHost string `json:"buildHost,omitempty"`

	ContentHash string `json:"contentHash,omitempty"`
}

// Key identifies a record for lineage deduplication.
func (r Record) Key() string { return r.Name + "|" + r.Version }

// ComputeContentHash returns the sha256 of the RFC 8785 canonical JSON of r
// with ContentHash cleared.
func (r Record) ComputeContentHash() (string, error) {
	r.ContentHash = ""
	if r.UseFlags == nil {
		r.UseFlags = []string{}
	}
	canonical, err := canonicalJSON(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Seal normalizes r (sorted use flags) and fills in its content hash.
func (r Record) Seal() (Record, error) {
	flags := append([]string{}, r.UseFlags...)
	sort.Strings(flags)
	r.UseFlags = flags
	hash, err := r.ComputeContentHash()
	if err != nil {
		return Record{}, err
	}
	r.ContentHash = hash
	return r, nil
}

// Line returns the canonical single-line JSON form of r.
func (r Record) Line() (string, error) {
	if r.UseFlags == nil {
		r.UseFlags = []string{}
	}
	b, err := canonicalJSON(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize record: %w", err)
	}
	return out, nil
}
