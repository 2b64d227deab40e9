package fetch

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/gopenpgp/v2/crypto"

	"github.com/buckos/pkgbuild/internal/log"
)

const (
	// maxKeySize bounds a fetched public key.
	maxKeySize = 100 * 1024
	// maxSignatureSize bounds a fetched detached signature.
	maxSignatureSize = 64 * 1024
)

// SignatureMode decides when detached signatures are checked.
type SignatureMode string

const (
	// SignaturesAuto verifies when the source names a signature and a key.
	SignaturesAuto SignatureMode = "auto"
	// SignaturesOn requires a verified signature for every source.
	SignaturesOn SignatureMode = "on"
	// SignaturesOff never verifies.
	SignaturesOff SignatureMode = "off"
)

// ParseSignatureMode parses auto, on or off; empty means auto.
func ParseSignatureMode(s string) (SignatureMode, error) {
	switch SignatureMode(strings.ToLower(s)) {
	case "", SignaturesAuto:
		return SignaturesAuto, nil
	case SignaturesOn:
		return SignaturesOn, nil
	case SignaturesOff:
		return SignaturesOff, nil
	}
	return "", fmt.Errorf("invalid signature mode %q (want auto, on or off)", s)
}

// ParseFingerprint normalizes a fingerprint by removing spaces and
// upper-casing it. The result must be 40 hex characters.
func ParseFingerprint(fp string) (string, error) {
	fp = strings.ToUpper(strings.ReplaceAll(fp, " ", ""))
	if len(fp) != 40 {
		return "", fmt.Errorf("fingerprint must be 40 hex characters, got %d", len(fp))
	}
	if _, err := hex.DecodeString(fp); err != nil {
		return "", fmt.Errorf("fingerprint contains invalid hex characters: %w", err)
	}
	return fp, nil
}

// KeyCache keeps fetched public keys by fingerprint.
type KeyCache struct {
	dir    string
	client *http.Client
}

// NewKeyCache creates a key cache in dir.
func NewKeyCache(dir string, client *http.Client) *KeyCache {
	return &KeyCache{dir: dir, client: client}
}

// Get returns the key with fingerprint, loading it from the cache or
// fetching it from keyURL. The fingerprint is checked either way.
func (c *KeyCache) Get(ctx context.Context, fingerprint, keyURL string) (*crypto.Key, error) {
	fingerprint, err := ParseFingerprint(fingerprint)
	if err != nil {
		return nil, err
	}
	cachePath := filepath.Join(c.dir, fingerprint+".asc")
	if data, err := os.ReadFile(cachePath); err == nil {
		if key, err := keyWithFingerprint(data, fingerprint); err == nil {
			return key, nil
		}
		// Corrupt or wrong key
		_ = os.Remove(cachePath)
	}
	if keyURL == "" {
		return nil, fmt.Errorf("key %s is not cached and has no url", fingerprint)
	}

	data, err := fetchLimited(ctx, c.client, keyURL, maxKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch key: %w", err)
	}
	key, err := keyWithFingerprint(data, fingerprint)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.dir, 0o700); err == nil {
		_ = os.WriteFile(cachePath, data, 0o600)
	}
	return key, nil
}

func keyWithFingerprint(armored []byte, fingerprint string) (*crypto.Key, error) {
	key, err := crypto.NewKeyFromArmored(string(armored))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PGP key: %w", err)
	}
	if got := strings.ToUpper(key.GetFingerprint()); got != fingerprint {
		return nil, fmt.Errorf("key fingerprint mismatch: expected %s, got %s", fingerprint, got)
	}
	return key, nil
}

// SignatureVerifier checks detached OpenPGP signatures on fetched files.
type SignatureVerifier struct {
	Mode   SignatureMode
	Keys   *KeyCache
	Client *http.Client
	Logger log.Logger
}

// Verify checks path against src's detached signature according to Mode.
// Failures are *signatureError so the fetcher can report them per backend.
func (v *SignatureVerifier) Verify(ctx context.Context, src Source, path string) error {
	if v == nil || v.Mode == SignaturesOff {
		return nil
	}
	logger := v.Logger
	if logger == nil {
		logger = log.NewNoop()
	}
	hasKey := src.KeyFile != "" || src.KeyFingerprint != ""
	if src.SignatureURL == "" || !hasKey {
		if v.Mode == SignaturesOn {
			return &signatureError{fmt.Errorf("signature verification required but %s has no signature and key", src.Name())}
		}
		return nil
	}

	key, err := v.loadKey(ctx, src)
	if err != nil {
		return &signatureError{err}
	}
	sig, err := fetchLimited(ctx, v.Client, src.SignatureURL, maxSignatureSize)
	if err != nil {
		return &signatureError{fmt.Errorf("failed to fetch signature: %w", err)}
	}
	if err := VerifyDetached(path, sig, key); err != nil {
		return &signatureError{err}
	}
	logger.Debug("signature verified", "source", src.Name(), "key", key.GetFingerprint())
	return nil
}

func (v *SignatureVerifier) loadKey(ctx context.Context, src Source) (*crypto.Key, error) {
	if src.KeyFile != "" {
		data, err := os.ReadFile(src.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key: %w", err)
		}
		key, err := crypto.NewKeyFromArmored(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse PGP key: %w", err)
		}
		if src.KeyFingerprint != "" {
			want, err := ParseFingerprint(src.KeyFingerprint)
			if err != nil {
				return nil, err
			}
			if got := strings.ToUpper(key.GetFingerprint()); got != want {
				return nil, fmt.Errorf("key fingerprint mismatch: expected %s, got %s", want, got)
			}
		}
		return key, nil
	}
	if v.Keys == nil {
		return nil, errors.New("no key cache configured")
	}
	return v.Keys.Get(ctx, src.KeyFingerprint, src.KeyURL)
}

// VerifyDetached verifies an armored or binary detached signature over the
// file at path.
func VerifyDetached(path string, signature []byte, key *crypto.Key) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file for signature verification: %w", err)
	}
	sig, err := crypto.NewPGPSignatureFromArmored(string(signature))
	if err != nil {
		sig = crypto.NewPGPSignature(signature)
	}
	ring, err := crypto.NewKeyRing(key)
	if err != nil {
		return fmt.Errorf("failed to create keyring: %w", err)
	}
	if err := ring.VerifyDetached(crypto.NewPlainMessage(data), sig, 0); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

type signatureError struct{ err error }

func (e *signatureError) Error() string { return e.err.Error() }
func (e *signatureError) Unwrap() error { return e.err }

func fetchLimited(ctx context.Context, client *http.Client, rawURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s exceeds %d bytes", rawURL, limit)
	}
	return data, nil
}
