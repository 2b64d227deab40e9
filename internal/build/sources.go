package build

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/buckos/pkgbuild/internal/buildenv"
	"github.com/buckos/pkgbuild/internal/config"
	"github.com/buckos/pkgbuild/internal/fetch"
	"github.com/buckos/pkgbuild/internal/httputil"
	"github.com/buckos/pkgbuild/internal/lock"
	"github.com/buckos/pkgbuild/internal/log"
)

// NewFetcher builds the source fetcher described by settings: the distfile
// cache, the configured backends in order, the download slots and the
// signature verifier. Backends without configuration are skipped.
func NewFetcher(ctx context.Context, s *config.Settings, logger log.Logger) (*fetch.Fetcher, error) {
	if logger == nil {
		logger = log.NewNoop()
	}
	client := httputil.NewClient(httputil.ClientOptions{ResponseHeaderTimeout: s.Timeout})
	backends, err := Backends(ctx, s, client)
	if err != nil {
		return nil, err
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no download backend is configured")
	}
	slots, err := lock.NewSlotManager(s.LockDir, s.Slots, lock.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	verifier := &fetch.SignatureVerifier{
		Mode:   s.Signatures,
		Keys:   fetch.NewKeyCache(s.KeyCacheDir, client),
		Client: client,
		Logger: logger,
	}
	return fetch.New(fetch.NewCache(s.DistfilesDir), backends,
		fetch.WithLogger(logger),
		fetch.WithSlots(slots),
		fetch.WithSignatures(verifier),
		fetch.WithFirstBackendRequired(s.FirstBackendRequired),
	), nil
}

// Backends instantiates the backends named in settings, in order.
func Backends(ctx context.Context, s *config.Settings, client *http.Client) ([]fetch.Backend, error) {
	var out []fetch.Backend
	for _, name := range s.Backends {
		switch name {
		case "vendor":
			if s.VendorDir != "" {
				out = append(out, &fetch.VendorBackend{Dir: s.VendorDir})
			}
		case "mirror":
			if s.MirrorURL != "" {
				out = append(out, &fetch.MirrorBackend{BaseURL: s.MirrorURL, Client: client, Progress: os.Stderr})
			}
		case "s3":
			if s.S3.Bucket != "" {
				b, err := fetch.NewS3Backend(ctx, s.S3)
				if err != nil {
					return nil, err
				}
				out = append(out, b)
			}
		case "upstream":
			out = append(out, &fetch.UpstreamBackend{Client: client, Progress: os.Stderr})
		}
	}
	return out, nil
}

// stageSources unpacks archives into dir and copies every other file
// there unchanged.
func stageSources(results []*fetch.Result, dir string, logger log.Logger) error {
	epoch := time.Unix(buildenv.SourceDateEpoch, 0)
	for _, r := range results {
		name := r.Source.Name()
		if fetch.DetectFormat(name) == "" {
			if err := copyFile(r.Path, filepath.Join(dir, name)); err != nil {
				return err
			}
			logger.Debug("source copied", "file", name)
			continue
		}
		if err := fetch.Unpack(r.Path, dir, fetch.UnpackOptions{StripComponents: r.Source.StripComponents, Epoch: epoch}); err != nil {
			return fmt.Errorf("failed to unpack %s: %w", name, err)
		}
		logger.Debug("source unpacked", "file", name, "backend", r.Backend)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}
