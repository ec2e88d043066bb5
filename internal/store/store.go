// Package store persists compiled artifacts.
//
// Two backends are provided: FileStore writes artifacts next to the emitted
// sources on the local filesystem, and RedisStore keeps them in a shared
// Redis instance so several machines can load the same build.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Sentinel errors returned by stores.
var (
	// ErrNotFound is returned by Get when no artifact exists under the key.
	ErrNotFound = errors.New("artifact not found")

	// ErrDigestMismatch is returned by Get when stored bytes no longer
	// match the digest recorded at write time.
	ErrDigestMismatch = errors.New("artifact digest mismatch")
)

// Store reads and writes artifacts by key. Keys are slash or OS separated
// paths such as "dist/src/a.tsb".
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// IsNotFound returns true if err reports a missing artifact.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// FileStore stores artifacts as plain files. Relative keys are joined onto
// Root; absolute keys are used as is.
type FileStore struct {
	Root string
}

// NewFileStore returns a file store rooted at root. An empty root means the
// working directory.
func NewFileStore(root string) *FileStore {
	return &FileStore{Root: root}
}

func (s *FileStore) path(key string) string {
	key = filepath.FromSlash(key)
	if filepath.IsAbs(key) || s.Root == "" {
		return key
	}
	return filepath.Join(s.Root, key)
}

// Put writes data to the file for key, creating parent directories.
func (s *FileStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p, err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// Get reads the file for key.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether a regular file exists for key.
func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	info, err := os.Stat(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}
