package cms

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/kilupskalvis/blocksync/internal/models"
	"github.com/spf13/afero"
)

// ClassTree is the directory holding one sub-directory per installed PHP class.
type ClassTree struct {
	fs   afero.Fs
	base string
}

// NewClassTree creates a class tree rooted at base.
func NewClassTree(fsys afero.Fs, base string) *ClassTree {
	return &ClassTree{fs: fsys, base: base}
}

// Fs returns the underlying filesystem.
func (t *ClassTree) Fs() afero.Fs { return t.fs }

// Base returns the root directory.
func (t *ClassTree) Base() string { return t.base }

// Dir returns the directory of class name.
func (t *ClassTree) Dir(name string) string {
	return filepath.Join(t.base, name)
}

// Path returns the path of file inside the directory of class name. The file is
// rooted at the class directory, so ".." segments cannot leave it.
func (t *ClassTree) Path(name, file string) string {
	return filepath.Join(t.base, name, filepath.FromSlash(path.Clean("/"+file)))
}

// Exists reports whether path exists.
func (t *ClassTree) Exists(p string) bool {
	ok, err := afero.Exists(t.fs, p)
	return err == nil && ok
}

// ReadFile reads a file of class name.
func (t *ClassTree) ReadFile(name, file string) ([]byte, error) {
	return afero.ReadFile(t.fs, t.Path(name, file))
}

// WriteFile writes a file of class name, creating parent directories.
func (t *ClassTree) WriteFile(name, file string, data []byte) error {
	if path.Clean("/"+file) == "/" {
		return fmt.Errorf("invalid class file %q", file)
	}
	p := t.Path(name, file)
	if err := t.fs.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return afero.WriteFile(t.fs, p, data, 0644)
}

// Classes returns the names of the class directories, sorted.
func (t *ClassTree) Classes() ([]string, error) {
	entries, err := afero.ReadDir(t.fs, t.base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read class directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Files returns the slash-separated relative paths of every regular file in the
// directory of class name, sorted.
func (t *ClassTree) Files(name string) ([]string, error) {
	return relativeFiles(t.fs, t.Dir(name))
}

// AssetTree is the public asset root, laid out as "{folder}/{key}/..." with the folder of each kind.
type AssetTree struct {
	fs   afero.Fs
	root string
}

// NewAssetTree creates an asset tree rooted at root.
func NewAssetTree(fsys afero.Fs, root string) *AssetTree {
	return &AssetTree{fs: fsys, root: root}
}

// Dir returns the asset directory of one item.
func (t *AssetTree) Dir(kind models.ItemKind, key string) string {
	return filepath.Join(t.root, kind.Folder(), key)
}

// WriteFile stores an asset at the slash-separated relative path rel.
func (t *AssetTree) WriteFile(kind models.ItemKind, key, rel string, data []byte) error {
	// Rooting the path before cleaning keeps ".." from leaving the item directory.
	clean := path.Clean("/" + rel)[1:]
	if clean == "" {
		return fmt.Errorf("invalid asset path %q", rel)
	}
	p := filepath.Join(t.Dir(kind, key), filepath.FromSlash(clean))
	if err := t.fs.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return afero.WriteFile(t.fs, p, data, 0644)
}

// ReadFile reads an asset at the slash-separated relative path rel.
func (t *AssetTree) ReadFile(kind models.ItemKind, key, rel string) ([]byte, error) {
	return afero.ReadFile(t.fs, filepath.Join(t.Dir(kind, key), filepath.FromSlash(rel)))
}

// Files lists the assets of one item as sorted slash-separated relative paths.
// A missing directory yields no files.
func (t *AssetTree) Files(kind models.ItemKind, key string) ([]string, error) {
	return relativeFiles(t.fs, t.Dir(kind, key))
}

func relativeFiles(fsys afero.Fs, dir string) ([]string, error) {
	if ok, _ := afero.DirExists(fsys, dir); !ok {
		return nil, nil
	}
	var files []string
	err := afero.Walk(fsys, dir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
