// Package filesystem abstracts the file system calls the delete and cache
// components make, so tests can inject failures and dry runs can record
// instead of removing.
package filesystem

import (
	"io/fs"
	"path/filepath"
)

// FileSystem is what recursive deletion needs. Lstat must not follow a
// final symlink.
type FileSystem interface {
	Lstat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	Remove(name string) error
}

// WriteFS defines the write operations used to prepare cache layouts.
type WriteFS interface {
	MkdirAll(path string, perm fs.FileMode) error
	WriteFile(name string, data []byte, perm fs.FileMode) error
}

// FullFileSystem combines both
type FullFileSystem interface {
	FileSystem
	WriteFS
}

// Joiner is implemented by filesystems whose names are not plain OS paths
type Joiner interface {
	Join(elem ...string) string
}

// Join builds a name for fsys from elem
func Join(fsys FileSystem, elem ...string) string {
	if j, ok := fsys.(Joiner); ok {
		return j.Join(elem...)
	}
	return filepath.Join(elem...)
}
