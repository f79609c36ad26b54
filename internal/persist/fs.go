package persist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mutgate-project/mutgate/pkg/fsutil"
	"github.com/mutgate-project/mutgate/pkg/pathutil"
)

// FSStore stores resource content as files under a root directory.
// Resource ids are interpreted as relative paths; escapes are refused.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem-backed store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FSStore{root: dir}, nil
}

func (s *FSStore) resolve(resourceID string) (string, error) {
	if err := pathutil.ValidateResourceID(resourceID); err != nil {
		return "", err
	}
	path := filepath.Join(s.root, filepath.FromSlash(resourceID))
	if err := pathutil.ValidatePathSafety(s.root, path); err != nil {
		return "", err
	}
	return path, nil
}

// Read returns the content of a resource file.
func (s *FSStore) Read(resourceID string) ([]byte, error) {
	path, err := s.resolve(resourceID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("read resource %s: %w", resourceID, err)
	}
	return data, nil
}

// Write atomically replaces the content of a resource file.
func (s *FSStore) Write(resourceID string, content []byte) error {
	path, err := s.resolve(resourceID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create resource dir: %w", err)
	}
	if err := fsutil.AtomicWrite(path, content, 0644); err != nil {
		return fmt.Errorf("write resource %s: %w", resourceID, err)
	}
	return nil
}

// Delete removes a resource file. Missing files are not an error.
func (s *FSStore) Delete(resourceID string) error {
	path, err := s.resolve(resourceID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete resource %s: %w", resourceID, err)
	}
	return nil
}

// Exists reports whether the resource file is present.
func (s *FSStore) Exists(resourceID string) (bool, error) {
	path, err := s.resolve(resourceID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat resource %s: %w", resourceID, err)
	}
	return true, nil
}

// Close is a no-op for the filesystem store.
func (s *FSStore) Close() error { return nil }
