package fetch

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buckos/pkgbuild/internal/builderr"
)

type signingFixture struct {
	keyFile     string
	fingerprint string
	sign        func([]byte) []byte
}

func newSigningFixture(t *testing.T) signingFixture {
	t.Helper()
	key, err := crypto.GenerateKey("Release Signer", "release@example.org", "x25519", 0)
	require.NoError(t, err)
	pub, err := key.GetArmoredPublicKey()
	require.NoError(t, err)
	keyFile := filepath.Join(t.TempDir(), "release.asc")
	require.NoError(t, os.WriteFile(keyFile, []byte(pub), 0o644))

	ring, err := crypto.NewKeyRing(key)
	require.NoError(t, err)
	return signingFixture{
		keyFile:     keyFile,
		fingerprint: key.GetFingerprint(),
		sign: func(data []byte) []byte {
			sig, err := ring.SignDetached(crypto.NewPlainMessage(data))
			require.NoError(t, err)
			armored, err := sig.GetArmored()
			require.NoError(t, err)
			return []byte(armored)
		},
	}
}

func TestFetchVerifiesSignature(t *testing.T) {
	t.Parallel()

	fx := newSigningFixture(t)
	good := fx.sign(tarball)
	bad := fx.sign([]byte("something else"))
	srv, _ := serve(t, map[string][]byte{
		"/zlib-1.3.1.tar.xz":     tarball,
		"/zlib-1.3.1.tar.xz.asc": good,
		"/bad.asc":               bad,
	})

	sigs := &SignatureVerifier{Mode: SignaturesAuto, Client: http.DefaultClient}
	src := Source{
		URL:            srv.URL + "/zlib-1.3.1.tar.xz",
		Checksum:       sha256Of(tarball),
		SignatureURL:   srv.URL + "/zlib-1.3.1.tar.xz.asc",
		KeyFile:        fx.keyFile,
		KeyFingerprint: fx.fingerprint,
	}
	f := New(NewCache(t.TempDir()), []Backend{&UpstreamBackend{Client: http.DefaultClient}}, WithSignatures(sigs))
	_, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)

	src.SignatureURL = srv.URL + "/bad.asc"
	f = New(NewCache(t.TempDir()), []Backend{&UpstreamBackend{Client: http.DefaultClient}}, WithSignatures(sigs))
	_, err = f.Fetch(context.Background(), src)
	var ie *builderr.IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "signature", ie.Kind)
}

func TestSignatureModes(t *testing.T) {
	t.Parallel()

	unsigned := Source{URL: "https://example.org/a.tar.gz"}
	p := filepath.Join(t.TempDir(), "a.tar.gz")
	require.NoError(t, os.WriteFile(p, tarball, 0o644))

	assert.NoError(t, (&SignatureVerifier{Mode: SignaturesAuto}).Verify(context.Background(), unsigned, p))
	assert.NoError(t, (&SignatureVerifier{Mode: SignaturesOff}).Verify(context.Background(), unsigned, p))
	assert.Error(t, (&SignatureVerifier{Mode: SignaturesOn}).Verify(context.Background(), unsigned, p))

	var nilVerifier *SignatureVerifier
	assert.NoError(t, nilVerifier.Verify(context.Background(), unsigned, p))
}

func TestKeyCache(t *testing.T) {
	t.Parallel()

	fx := newSigningFixture(t)
	armored, err := os.ReadFile(fx.keyFile)
	require.NoError(t, err)
	srv, hits := serve(t, map[string][]byte{"/key.asc": armored})

	cache := NewKeyCache(t.TempDir(), http.DefaultClient)
	key, err := cache.Get(context.Background(), fx.fingerprint, srv.URL+"/key.asc")
	require.NoError(t, err)
	assert.Equal(t, fx.fingerprint, key.GetFingerprint())

	// Served from disk the second time.
	_, err = cache.Get(context.Background(), fx.fingerprint, srv.URL+"/key.asc")
	require.NoError(t, err)
	assert.Len(t, *hits, 1)

	_, err = cache.Get(context.Background(), "0000000000000000000000000000000000000000", srv.URL+"/key.asc")
	assert.Error(t, err)
}

func TestParseModes(t *testing.T) {
	t.Parallel()

	m, err := ParseSignatureMode("ON")
	require.NoError(t, err)
	assert.Equal(t, SignaturesOn, m)
	_, err = ParseSignatureMode("maybe")
	assert.Error(t, err)

	fp, err := ParseFingerprint("abcd abcd abcd abcd abcd abcd abcd abcd abcd abcd")
	require.NoError(t, err)
	assert.Equal(t, "ABCDABCDABCDABCDABCDABCDABCDABCDABCDABCD", fp)
}
