package cms

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// RenderCache is the host output cache, invalidated after structural changes.
type RenderCache interface {
	Invalidate() error
}

// DirRenderCache is a render cache kept as files in one directory.
type DirRenderCache struct {
	fs  afero.Fs
	dir string
}

// NewDirRenderCache creates a render cache rooted at dir.
func NewDirRenderCache(fsys afero.Fs, dir string) *DirRenderCache {
	return &DirRenderCache{fs: fsys, dir: dir}
}

// Invalidate removes every cached entry. A missing directory is already clean.
func (c *DirRenderCache) Invalidate() error {
	entries, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read render cache: %w", err)
	}
	for _, e := range entries {
		if err := c.fs.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			return fmt.Errorf("clear render cache: %w", err)
		}
	}
	return nil
}
