package fetch

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"lukechampine.com/blake3"
)

// Checksum is a parsed expected digest.
type Checksum struct {
	Algo string
	Hex  string
}

func (c Checksum) String() string { return c.Algo + ":" + c.Hex }

var digestSizes = map[string]int{"sha256": 32, "sha512": 64, "blake3": 32}

// ParseChecksum accepts "sha256:…", "sha512:…", "blake3:…" (or "b3:…"), and
// a bare hex string, taken as sha256.
func ParseChecksum(s string) (Checksum, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	algo, digest, ok := strings.Cut(s, ":")
	if !ok {
		algo, digest = "sha256", s
	}
	if algo == "b3" {
		algo = "blake3"
	}
	size, known := digestSizes[algo]
	if !known {
		return Checksum{}, fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
	if raw, err := hex.DecodeString(digest); err != nil || len(raw) != size {
		return Checksum{}, fmt.Errorf("invalid %s digest %q", algo, digest)
	}
	return Checksum{Algo: algo, Hex: digest}, nil
}

func newHash(algo string) (hash.Hash, error) {
	switch algo {
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	case "blake3":
		return blake3.New(32, nil), nil
	}
	return nil, fmt.Errorf("unsupported hash algorithm: %s", algo)
}

// HashFile returns the hex digest of path with algo.
func HashFile(path, algo string) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Matches hashes path and compares it with c. It returns the actual digest.
func (c Checksum) Matches(path string) (bool, string, error) {
	actual, err := HashFile(path, c.Algo)
	if err != nil {
		return false, "", err
	}
	return actual == c.Hex, actual, nil
}
