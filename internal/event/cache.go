package event

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"meteor-refine/internal/observability"
)

// Resource kinds stored per event.
const (
	ResourceImage  = observability.ResourceImage
	ResourceRecord = observability.ResourceRecord
)

var resourceExt = map[string]string{
	ResourceImage:  ".jpg",
	ResourceRecord: ".txt",
}

// Cache is a flat directory holding one image file and one text file per
// event, both named by the event's cache key.
type Cache struct {
	Dir string
}

// NewCache creates a cache rooted at dir. The directory is created lazily.
func NewCache(dir string) *Cache {
	return &Cache{Dir: dir}
}

// Ensure creates the cache directory if it does not exist.
func (c *Cache) Ensure() error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return &FilesystemError{Op: "mkdir", Path: c.Dir, Err: err}
	}
	return nil
}

// Path returns the cache file for resource of key.
func (c *Cache) Path(key Key, resource string) string {
	return filepath.Join(c.Dir, key.String()+resourceExt[resource])
}

// Read returns the cached bytes for resource of key. ok is false when the
// file is not cached yet.
func (c *Cache) Read(key Key, resource string) (data []byte, ok bool, err error) {
	path := c.Path(key, resource)
	data, err = os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &FilesystemError{Op: "read", Path: path, Err: err}
	}
	return data, true, nil
}

// Write stores data as the cache file for resource of key. The file is
// replaced whole, so concurrent writers of the same key leave the last
// complete write in place.
func (c *Cache) Write(key Key, resource string, data []byte) error {
	path := c.Path(key, resource)
	tmp, err := os.CreateTemp(c.Dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return &FilesystemError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &FilesystemError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &FilesystemError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &FilesystemError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
