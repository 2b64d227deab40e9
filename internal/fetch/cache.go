package fetch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Cache is the local distfile directory. Files are stored under their
// source name and only ever appear there after verification.
type Cache struct {
	dir string
}

// NewCache returns a cache rooted at dir.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Path returns where name is stored.
func (c *Cache) Path(name string) string {
	return filepath.Join(c.dir, name)
}

// Lookup reports whether a usable copy of src is cached. A copy whose
// digest no longer matches is removed. Without a checksum any copy counts.
func (c *Cache) Lookup(src Source, sum *Checksum) (string, bool, error) {
	p := c.Path(src.Name())
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !info.Mode().IsRegular() {
		return "", false, fmt.Errorf("cached %s is not a regular file", p)
	}
	if sum == nil {
		return p, true, nil
	}
	ok, _, err := sum.Matches(p)
	if err != nil {
		return "", false, err
	}
	if !ok {
		_ = os.Remove(p)
		return "", false, nil
	}
	return p, true, nil
}

// TempFile creates a partial download file beside the final location.
func (c *Cache) TempFile(name string) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := os.CreateTemp(c.dir, "."+name+".part-*")
	if err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// Commit moves a verified temp file into place.
func (c *Cache) Commit(tmp, name string) (string, error) {
	p := c.Path(name)
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize %s: %w", name, err)
	}
	return p, nil
}
