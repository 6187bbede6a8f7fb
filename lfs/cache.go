package lfs

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rubyist/tracerx"
)

// Cache is the local content-addressed object store, laid out the same
// way the reference LFS tool lays out its <git-dir>/lfs/objects tree so
// both can share one working tree.
type Cache struct {
	root string
}

// NewCache opens (without creating) a Cache rooted at root. Callers
// typically pass "<git-dir>/lfs/objects".
func NewCache(root string) *Cache {
	return &Cache{root: root}
}

// Root returns the cache's root directory.
func (c *Cache) Root() string {
	return c.root
}

// Path returns the deterministic on-disk path for oid:
// <root>/<oid[0:2]>/<oid[2:4]>/<oid>.
func (c *Cache) Path(oid string) string {
	return filepath.Join(c.root, oid[0:2], oid[2:4], oid)
}

// Contains reports whether oid is present in the cache. When
// expectedSize is non-negative, a file whose length disagrees with it is
// treated as absent and is removed.
func (c *Cache) Contains(oid string, expectedSize int64) bool {
	path := c.Path(oid)
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if expectedSize >= 0 && info.Size() != expectedSize {
		tracerx.Printf("lfs: cache entry %s has length %d, want %d; removing stale file", oid, info.Size(), expectedSize)
		os.Remove(path)
		return false
	}
	return true
}

// Open returns a readable stream for oid plus its size. The cache does
// not re-verify the hash on read; that was the producer's responsibility
// at insert time.
func (c *Cache) Open(oid string) (io.ReadCloser, int64, error) {
	path := c.Path(oid)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, &ErrCacheIO{Reason: "object " + oid + " not present in cache"}
		}
		return nil, 0, &ErrCacheIO{Reason: err.Error()}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, &ErrCacheIO{Reason: err.Error()}
	}
	return f, info.Size(), nil
}

// Insert streams r into the cache, verifying as it streams that the
// content hashes to oid. It writes to a unique temporary file in the
// same directory as the final path, then atomically renames into place
// so concurrent readers never observe a partial file.
//
// If the computed hash disagrees with oid, the temporary file is
// unlinked and IntegrityError is returned.
func (c *Cache) Insert(oid string, size int64, r io.Reader) (err error) {
	start := time.Now()
	defer func() {
		tracerx.PerformanceSince("cache insert "+oid, start)
	}()

	finalPath := c.Path(oid)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return &ErrCacheIO{Reason: errors.Wrap(err, "create cache directory").Error()}
	}

	tmpPath := filepath.Join(filepath.Dir(finalPath), "tmp-"+uuid.NewString())
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return &ErrCacheIO{Reason: errors.Wrap(err, "create temp file").Error()}
	}
	defer func() {
		tmp.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	sink := NewHashingSink(tmp)
	written, copyErr := io.Copy(sink, r)
	if copyErr != nil {
		return &ErrCacheIO{Reason: errors.Wrap(copyErr, "write cache object").Error()}
	}
	if closeErr := tmp.Close(); closeErr != nil {
		return &ErrCacheIO{Reason: errors.Wrap(closeErr, "close temp file").Error()}
	}

	actual := sink.OID()
	if actual != oid {
		return &ErrIntegrity{Expected: oid, Actual: actual}
	}
	if size >= 0 && written != size {
		return &ErrSizeMismatch{Expected: size, Actual: written}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return &ErrCacheIO{Reason: errors.Wrap(err, "rename into cache").Error()}
	}
	return nil
}

// InsertFile is a convenience wrapper that opens path and inserts its
// content into the cache under oid.
func (c *Cache) InsertFile(oid string, size int64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &ErrCacheIO{Reason: err.Error()}
	}
	defer f.Close()
	return c.Insert(oid, size, f)
}

// Materialize copies the bytes of the cached object for oid to dest, for
// smudging content back into the working tree. It always writes a full
// copy; it never links dest to the cache file.
func (c *Cache) Materialize(oid string, dest string) error {
	src, _, err := c.Open(oid)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return &ErrCacheIO{Reason: errors.Wrap(err, "create destination directory").Error()}
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return &ErrCacheIO{Reason: errors.Wrap(err, "create destination file").Error()}
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return &ErrCacheIO{Reason: errors.Wrap(err, "materialize cache object").Error()}
	}
	return nil
}
