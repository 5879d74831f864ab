package filesystem

import (
	"io/fs"
	"os"
	"path/filepath"
)

// OSFileSystem implements FullFileSystem using the OS filesystem. With an
// empty root, names are plain OS paths (absolute or relative to the working
// directory). With a root, names must be valid io/fs paths and are resolved
// beneath it.
type OSFileSystem struct {
	root string
}

// NewOSFileSystem creates a new OS-based filesystem rooted at the given path
func NewOSFileSystem(root string) *OSFileSystem {
	return &OSFileSystem{root: root}
}

// Root returns the root the filesystem resolves names against
func (osfs *OSFileSystem) Root() string {
	return osfs.root
}

func (osfs *OSFileSystem) resolve(op, name string) (string, error) {
	if osfs.root == "" {
		return name, nil
	}
	if !fs.ValidPath(name) {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return filepath.Join(osfs.root, filepath.FromSlash(name)), nil
}

// Lstat implements FileSystem
func (osfs *OSFileSystem) Lstat(name string) (fs.FileInfo, error) {
	fullPath, err := osfs.resolve("lstat", name)
	if err != nil {
		return nil, err
	}
	return os.Lstat(fullPath)
}

// ReadDir implements FileSystem
func (osfs *OSFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	fullPath, err := osfs.resolve("readdir", name)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(fullPath)
}

// Remove implements FileSystem
func (osfs *OSFileSystem) Remove(name string) error {
	fullPath, err := osfs.resolve("remove", name)
	if err != nil {
		return err
	}
	return os.Remove(fullPath)
}

// MkdirAll implements WriteFS
func (osfs *OSFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	fullPath, err := osfs.resolve("mkdirall", path)
	if err != nil {
		return err
	}
	return os.MkdirAll(fullPath, perm)
}

// WriteFile implements WriteFS
func (osfs *OSFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	fullPath, err := osfs.resolve("writefile", name)
	if err != nil {
		return err
	}
	return os.WriteFile(fullPath, data, perm)
}

// Join joins path elements the way names of this filesystem are built
func (osfs *OSFileSystem) Join(elem ...string) string {
	if osfs.root == "" {
		return filepath.Join(elem...)
	}
	return filepath.ToSlash(filepath.Join(elem...))
}
