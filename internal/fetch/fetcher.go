package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/buckos/pkgbuild/internal/builderr"
	"github.com/buckos/pkgbuild/internal/lock"
	"github.com/buckos/pkgbuild/internal/log"
)

// CacheBackend is the Backend name reported for cache hits.
const CacheBackend = "cache"

// SlotAcquirer bounds concurrent downloads.
type SlotAcquirer interface {
	Acquire(ctx context.Context, purpose string) (*lock.Slot, error)
	Slots() int
}

// Fetcher acquires sources through an ordered list of backends.
type Fetcher struct {
	backends      []Backend
	cache         *Cache
	slots         SlotAcquirer
	signatures    *SignatureVerifier
	firstRequired bool
	logger        log.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithSlots bounds downloads with a download semaphore. Cache hits do not
// take a slot.
func WithSlots(slots SlotAcquirer) Option {
	return func(f *Fetcher) { f.slots = slots }
}

// WithSignatures enables detached signature checks.
func WithSignatures(v *SignatureVerifier) Option {
	return func(f *Fetcher) { f.signatures = v }
}

// WithFirstBackendRequired makes a miss or bad copy on the first backend
// fatal instead of falling through. Used for offline builds from a vendor
// directory.
func WithFirstBackendRequired(required bool) Option {
	return func(f *Fetcher) { f.firstRequired = required }
}

// New creates a Fetcher. backends are tried in order after the cache.
func New(cache *Cache, backends []Backend, opts ...Option) *Fetcher {
	f := &Fetcher{backends: backends, cache: cache, logger: log.NewNoop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns a verified local copy of src.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (*Result, error) {
	if err := src.Validate(); err != nil {
		return nil, &builderr.ConfigurationError{Package: src.Package, What: "source", Detail: err.Error()}
	}
	name := src.Name()
	logger := f.logger.With("source", name)

	var sum *Checksum
	if src.Checksum != "" {
		c, _ := ParseChecksum(src.Checksum)
		sum = &c
	} else {
		logger.Warn("source has no checksum; accepting the first copy found")
	}

	if p, ok, err := f.cache.Lookup(src, sum); err != nil {
		return nil, err
	} else if ok {
		logger.Debug("cache hit", "path", p)
		return &Result{Source: src, Path: p, Backend: CacheBackend}, nil
	}

	if f.slots != nil {
		slot, err := f.slots.Acquire(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire download slot: %w", err)
		}
		defer func() {
			if err := slot.Release(); err != nil {
				logger.Warn("failed to release download slot", "error", err)
			}
		}()
	}

	var errs []error
	for i, b := range f.backends {
		p, err := f.tryBackend(ctx, b, src, sum)
		if err == nil {
			logger.Info("fetched", "backend", b.Name(), "path", p)
			return &Result{Source: src, Path: p, Backend: b.Name()}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrNotFound) {
			logger.Debug("backend miss", "backend", b.Name(), "error", err)
		} else {
			logger.Warn("backend failed", "backend", b.Name(), "error", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		if i == 0 && f.firstRequired {
			return nil, fmt.Errorf("%s: first backend required: %w", name, err)
		}
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%s: no fetch backends configured", name)
	}
	return nil, fmt.Errorf("%s: no backend provided a valid copy: %w", name, errors.Join(errs...))
}

func (f *Fetcher) tryBackend(ctx context.Context, b Backend, src Source, sum *Checksum) (string, error) {
	name := src.Name()
	tmp, err := f.cache.TempFile(name)
	if err != nil {
		return "", err
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp)
		}
	}()

	if err := b.Fetch(ctx, src, tmp); err != nil {
		return "", err
	}
	if sum != nil {
		ok, actual, err := sum.Matches(tmp)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", &builderr.IntegrityError{
				Package:  src.Package,
				Source:   name,
				Backend:  b.Name(),
				Kind:     "checksum",
				Expected: sum.String(),
				Actual:   sum.Algo + ":" + actual,
			}
		}
	}
	if err := f.signatures.Verify(ctx, src, tmp); err != nil {
		return "", &builderr.IntegrityError{
			Package: src.Package,
			Source:  name,
			Backend: b.Name(),
			Kind:    "signature",
			Err:     err,
		}
	}

	p, err := f.cache.Commit(tmp, name)
	if err != nil {
		return "", err
	}
	committed = true
	return p, nil
}

// FetchAll fetches every source concurrently, bounded by the slot count,
// and returns results in input order. The first failure cancels the rest.
func (f *Fetcher) FetchAll(ctx context.Context, srcs []Source) ([]*Result, error) {
	results := make([]*Result, len(srcs))
	g, ctx := errgroup.WithContext(ctx)
	limit := 1
	if f.slots != nil {
		limit = f.slots.Slots()
	}
	g.SetLimit(limit)
	for i, src := range srcs {
		g.Go(func() error {
			res, err := f.Fetch(ctx, src)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
