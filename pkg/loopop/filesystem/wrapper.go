package filesystem

import (
	"io/fs"
	"sync"
)

// FaultyFileSystem wraps a FileSystem and fails Remove for chosen names,
// the way a locked or busy file would. Other calls pass through.
type FaultyFileSystem struct {
	FileSystem

	mu      sync.Mutex
	faults  map[string]error
	removed []string
}

// NewFaultyFileSystem wraps inner
func NewFaultyFileSystem(inner FileSystem) *FaultyFileSystem {
	return &FaultyFileSystem{FileSystem: inner, faults: make(map[string]error)}
}

// FailRemove makes every Remove of name fail with err
func (f *FaultyFileSystem) FailRemove(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[name] = err
}

// Remove fails with a *fs.PathError for names registered with FailRemove
func (f *FaultyFileSystem) Remove(name string) error {
	f.mu.Lock()
	fault, ok := f.faults[name]
	f.mu.Unlock()
	if ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fault}
	}

	if err := f.FileSystem.Remove(name); err != nil {
		return err
	}
	f.mu.Lock()
	f.removed = append(f.removed, name)
	f.mu.Unlock()
	return nil
}

// Removed returns the names removed through the wrapper, in order
func (f *FaultyFileSystem) Removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

// Join delegates to the wrapped filesystem
func (f *FaultyFileSystem) Join(elem ...string) string {
	return Join(f.FileSystem, elem...)
}

// DryRunFileSystem reads through to the wrapped filesystem but only records
// removals. Since nothing is removed, a directory is never actually empty,
// which does not matter for callers that remove children before parents.
type DryRunFileSystem struct {
	FileSystem

	mu      sync.Mutex
	removed []string
}

// NewDryRunFileSystem wraps inner
func NewDryRunFileSystem(inner FileSystem) *DryRunFileSystem {
	return &DryRunFileSystem{FileSystem: inner}
}

// Remove records name after checking that it exists
func (d *DryRunFileSystem) Remove(name string) error {
	if _, err := d.FileSystem.Lstat(name); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed = append(d.removed, name)
	return nil
}

// Removed returns the names that would have been removed, in order
func (d *DryRunFileSystem) Removed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.removed...)
}

// Join delegates to the wrapped filesystem
func (d *DryRunFileSystem) Join(elem ...string) string {
	return Join(d.FileSystem, elem...)
}
