package source

import (
	"fmt"
	"os"
	"sync"
)

// TempResource owns one temporary directory. The directory lives until
// Release, which deletes it exactly once no matter how often it is called.
type TempResource struct {
	path string
	once sync.Once
	err  error
}

// NewTempResource creates a fresh directory under parent (os.TempDir() when
// empty).
func NewTempResource(parent, prefix string) (*TempResource, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, fmt.Errorf("create temp parent %s: %w", parent, err)
		}
	}
	dir, err := os.MkdirTemp(parent, prefix)
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &TempResource{path: dir}, nil
}

// Path returns the directory. Empty for a nil resource.
func (t *TempResource) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// Release removes the directory tree. Later calls return the first result.
func (t *TempResource) Release() error {
	if t == nil {
		return nil
	}
	t.once.Do(func() {
		t.err = os.RemoveAll(t.path)
	})
	return t.err
}
