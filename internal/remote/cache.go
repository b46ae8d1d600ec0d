package remote

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

const (
	// DefaultCacheLifetime is how long a cached response is served before refetching.
	DefaultCacheLifetime = time.Hour
	// MinCacheLifetime is the lowest lifetime accepted from configuration.
	MinCacheLifetime = 5 * time.Minute

	cacheFileExt = ".json"
	scopeLen     = 16
	globalScope  = "0000000000000000"
)

// Cache stores GET response bodies on disk, one file per (endpoint, token) pair.
// Entries are laid out in a two-level directory keyed by the first two characters
// of the key hash. Each file name is prefixed with a repository scope hash so all
// entries of one repository can be purged together. The file modification time is
// the fetch time. No locking is performed; concurrent writers of the same key
// produce identical payloads.
type Cache struct {
	fs       afero.Fs
	root     string
	lifetime time.Duration
	now      func() time.Time
}

// CacheStats summarizes the contents of the cache directory.
type CacheStats struct {
	Files int
	Bytes int64
}

// HumanSize returns the total size formatted for display.
func (s CacheStats) HumanSize() string {
	return humanize.Bytes(uint64(s.Bytes))
}

// NewCache creates a cache rooted at root on the given filesystem.
func NewCache(fsys afero.Fs, root string, lifetime time.Duration) (*Cache, error) {
	if err := fsys.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	if lifetime <= 0 {
		lifetime = DefaultCacheLifetime
	}
	return &Cache{fs: fsys, root: root, lifetime: lifetime, now: time.Now}, nil
}

// Lifetime returns the configured entry lifetime.
func (c *Cache) Lifetime() time.Duration {
	return c.lifetime
}

// CacheKey derives the cache key for an endpoint requested with the given credentials.
func CacheKey(endpoint, token string) string {
	sum := sha256.Sum256([]byte(endpoint + "\x00" + token))
	return hex.EncodeToString(sum[:])
}

// ScopeFor returns the scope hash for a repository. An empty owner/repo yields the
// global scope used for non-repository endpoints.
func ScopeFor(owner, repo string) string {
	if owner == "" && repo == "" {
		return globalScope
	}
	sum := sha256.Sum256([]byte(strings.ToLower(owner + "/" + repo)))
	return hex.EncodeToString(sum[:])[:scopeLen]
}

// Get returns the cached payload for key if present and fresh. Missing, expired,
// unreadable and corrupt entries are all reported as a miss.
func (c *Cache) Get(scope, key string) ([]byte, bool) {
	path := c.entryPath(scope, key)

	info, err := c.fs.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.now().Sub(info.ModTime()) >= c.lifetime {
		return nil, false
	}

	data, err := afero.ReadFile(c.fs, path)
	if err != nil || !json.Valid(data) {
		return nil, false
	}
	return data, true
}

// Put stores payload for key, replacing any previous entry.
func (c *Cache) Put(scope, key string, payload []byte) error {
	path := c.entryPath(scope, key)
	dir := filepath.Dir(path)
	if err := c.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := afero.TempFile(c.fs, dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		c.fs.Remove(tmpPath)
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		c.fs.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := c.fs.Rename(tmpPath, path); err != nil {
		c.fs.Remove(tmpPath)
		return fmt.Errorf("rename cache entry: %w", err)
	}

	now := c.now()
	if err := c.fs.Chtimes(path, now, now); err != nil {
		return fmt.Errorf("stamp cache entry: %w", err)
	}
	return nil
}

// Clear removes every cache entry.
func (c *Cache) Clear() (int, error) {
	return c.removeMatching(func(string) bool { return true })
}

// ClearScope removes every entry belonging to one repository scope.
func (c *Cache) ClearScope(scope string) (int, error) {
	prefix := scope + "-"
	return c.removeMatching(func(name string) bool {
		return strings.HasPrefix(name, prefix)
	})
}

// Stats returns the number and total size of stored entries.
func (c *Cache) Stats() (CacheStats, error) {
	var stats CacheStats
	err := c.walkEntries(func(path string, info fs.FileInfo) error {
		stats.Files++
		stats.Bytes += info.Size()
		return nil
	})
	return stats, err
}

func (c *Cache) removeMatching(match func(name string) bool) (int, error) {
	var removed int
	err := c.walkEntries(func(path string, info fs.FileInfo) error {
		if !match(info.Name()) {
			return nil
		}
		if err := c.fs.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove cache entry: %w", err)
		}
		removed++
		return nil
	})
	return removed, err
}

func (c *Cache) walkEntries(fn func(path string, info fs.FileInfo) error) error {
	err := afero.Walk(c.fs, c.root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), cacheFileExt) {
			return nil
		}
		return fn(path, info)
	})
	if err != nil {
		return fmt.Errorf("walk cache: %w", err)
	}
	return nil
}

func (c *Cache) entryPath(scope, key string) string {
	return filepath.Join(c.root, key[:2], scope+"-"+key+cacheFileExt)
}
