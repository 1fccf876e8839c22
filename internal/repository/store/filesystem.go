package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemStore keeps one file per tile under root, laid out as
// zoom/x/y.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) *FilesystemStore {
	return &FilesystemStore{root: root}
}

var _ Store = (*FilesystemStore)(nil)

func (s *FilesystemStore) Get(k Key) ([]byte, bool, error) {
	data, err := os.ReadFile(s.keyToPath(k))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *FilesystemStore) Put(k Key, data []byte) error {
	path := s.keyToPath(k)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	// Write to a temp file first so a failed write can never leave a
	// truncated entry squatting on the key.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return err
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp.Name())
		if werr != nil {
			return werr
		}
		return cerr
	}

	// Link keeps entries write-once: only a complete file can land on
	// the key, and a concurrent first write is left alone.
	err = os.Link(tmp.Name(), path)
	os.Remove(tmp.Name())
	if err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	return nil
}

func (s *FilesystemStore) keyToPath(k Key) string {
	return filepath.Join(s.root, fmt.Sprintf("%d", k.Zoom), fmt.Sprintf("%d", k.X), fmt.Sprintf("%d", k.Y))
}
