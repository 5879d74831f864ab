// Package gallerycache manages the on-disk cache of a photo gallery. Purges
// hold a file lock so two processes never purge the same cache at once.
package gallerycache

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/filesystem"
)

const (
	photosDirName     = "Photos"
	thumbnailsDirName = "Thumbnails"
	lockFileName      = ".lock"
)

// Layout names the paths of a gallery cache rooted at Root
type Layout struct {
	Root string
}

// PhotosDir holds the full-size photos
func (l Layout) PhotosDir() string {
	return filepath.Join(l.Root, photosDirName)
}

// ThumbnailsDir holds the generated thumbnails
func (l Layout) ThumbnailsDir() string {
	return filepath.Join(l.Root, thumbnailsDirName)
}

// LockPath is the file locked while the cache is purged
func (l Layout) LockPath() string {
	return filepath.Join(l.Root, lockFileName)
}

// Cache is an opened gallery cache
type Cache struct {
	layout Layout
	fs     filesystem.FullFileSystem
	logger core.Logger
}

// Options configures a Cache. A nil FS means the unrooted OS filesystem.
type Options struct {
	FS     filesystem.FullFileSystem
	Logger core.Logger
}

// Open creates the cache directories under root if needed
func Open(root string, opts Options) (*Cache, error) {
	if root == "" {
		return nil, fmt.Errorf("gallery cache root is empty")
	}
	if opts.FS == nil {
		opts.FS = filesystem.NewOSFileSystem("")
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger()
	}

	c := &Cache{layout: Layout{Root: root}, fs: opts.FS, logger: opts.Logger}
	if err := c.ensureLayout(); err != nil {
		return nil, err
	}
	return c, nil
}

// Layout returns the cache layout
func (c *Cache) Layout() Layout {
	return c.layout
}

func (c *Cache) ensureLayout() error {
	for _, dir := range []string{c.layout.PhotosDir(), c.layout.ThumbnailsDir()} {
		if err := c.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
		}
	}
	return nil
}

// Usage is the disk usage of a cache
type Usage struct {
	Files int
	Dirs  int
	Bytes int64
}

// Size walks the cache, not following symlinks. The lock file and the root
// itself are not counted.
func (c *Cache) Size() (Usage, error) {
	var u Usage
	entries, err := c.Entries()
	if err != nil {
		return u, err
	}
	for _, e := range entries {
		if err := c.walk(e, &u); err != nil {
			return u, err
		}
	}
	return u, nil
}

func (c *Cache) walk(path string, u *Usage) error {
	info, err := c.fs.Lstat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		u.Files++
		u.Bytes += info.Size()
		return nil
	}

	u.Dirs++
	children, err := c.fs.ReadDir(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	for _, child := range children {
		if err := c.walk(filesystem.Join(c.fs, path, child.Name()), u); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns the top-level cache entries, lock file excluded
func (c *Cache) Entries() ([]string, error) {
	children, err := c.fs.ReadDir(c.layout.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache root: %w", err)
	}
	names := lo.FilterMap(children, func(e fs.DirEntry, _ int) (string, bool) {
		return filesystem.Join(c.fs, c.layout.Root, e.Name()), e.Name() != lockFileName
	})
	return names, nil
}
