package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/buckos/pkgbuild/internal/progress"
)

// Backend retrieves a source into dst. A backend that does not carry the
// file returns an error wrapping ErrNotFound.
type Backend interface {
	Name() string
	Fetch(ctx context.Context, src Source, dst string) error
}

// VendorBackend serves files from a local directory laid out like a
// mirror.
type VendorBackend struct {
	Dir string
}

// Name implements Backend.
func (b *VendorBackend) Name() string { return "vendor" }

// Fetch implements Backend.
func (b *VendorBackend) Fetch(ctx context.Context, src Source, dst string) error {
	for _, rel := range MirrorPaths(src) {
		p := filepath.Join(b.Dir, filepath.FromSlash(rel))
		in, err := os.Open(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		defer func() { _ = in.Close() }()
		return writeFile(ctx, dst, in)
	}
	return fmt.Errorf("%s in %s: %w", src.Name(), b.Dir, ErrNotFound)
}

// MirrorBackend fetches over HTTP from a mirror using the letter layout.
type MirrorBackend struct {
	BaseURL  string
	Client   *http.Client
	Progress *os.File
}

// Name implements Backend.
func (b *MirrorBackend) Name() string { return "mirror" }

// Fetch implements Backend.
func (b *MirrorBackend) Fetch(ctx context.Context, src Source, dst string) error {
	base := strings.TrimRight(b.BaseURL, "/")
	for _, rel := range MirrorPaths(src) {
		err := download(ctx, b.Client, base+"/"+rel, dst, src.Name(), b.Progress)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return err
	}
	return fmt.Errorf("%s on mirror %s: %w", src.Name(), b.BaseURL, ErrNotFound)
}

// UpstreamBackend fetches the source's own URL.
type UpstreamBackend struct {
	Client   *http.Client
	Progress *os.File
}

// Name implements Backend.
func (b *UpstreamBackend) Name() string { return "upstream" }

// Fetch implements Backend.
func (b *UpstreamBackend) Fetch(ctx context.Context, src Source, dst string) error {
	if src.URL == "" {
		return fmt.Errorf("%s has no upstream url: %w", src.Name(), ErrNotFound)
	}
	u, err := url.Parse(src.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("unsupported upstream url %q", src.URL)
	}
	return download(ctx, b.Client, src.URL, dst, src.Name(), b.Progress)
}

func download(ctx context.Context, client *http.Client, rawURL, dst, label string, meter *os.File) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%s: HTTP %d: %w", rawURL, resp.StatusCode, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s: HTTP %d", rawURL, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if progress.Enabled(meter) {
		pw := progress.NewWriter(io.Discard, label, resp.ContentLength, meter)
		defer pw.Finish()
		body = io.TeeReader(resp.Body, pw)
	}
	return writeFile(ctx, dst, body)
}

// writeFile copies r into dst, creating or truncating it.
func writeFile(ctx context.Context, dst string, r io.Reader) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, &ctxReader{ctx: ctx, r: r}); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return out.Close()
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
