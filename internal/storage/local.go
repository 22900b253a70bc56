package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LocalStore implements Store on the local filesystem, one directory per
// bucket. Used by the CLI workspace and by tests.
type LocalStore struct {
	basePath string
	baseURL  string
	mu       sync.RWMutex
}

// NewLocalStore roots the store at basePath. baseURL is the prefix for public
// URLs; the default "local://store" keeps URLs parseable back into
// bucket/path by ParseURL.
func NewLocalStore(basePath, baseURL string) (*LocalStore, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	if baseURL == "" {
		baseURL = "local://store"
	}
	return &LocalStore{basePath: abs, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *LocalStore) resolve(bucket, path string) string {
	return filepath.Join(s.basePath, bucket, filepath.Clean("/"+path))
}

func (s *LocalStore) Upload(_ context.Context, bucket, path string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := s.resolve(bucket, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	// Atomic write: temp file then rename.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (s *LocalStore) Download(_ context.Context, bucket, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.resolve(bucket, path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, path, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s/%s: %w", bucket, path, err)
	}
	return data, nil
}

func (s *LocalStore) Remove(_ context.Context, bucket, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.resolve(bucket, path)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s/%s: %w", bucket, path, ErrNotFound)
		}
		return fmt.Errorf("delete %s/%s: %w", bucket, path, err)
	}
	return nil
}

func (s *LocalStore) List(_ context.Context, bucket, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root := filepath.Join(s.basePath, bucket)
	var paths []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if prefix == "" || strings.HasPrefix(rel, prefix) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}
	return paths, nil
}

func (s *LocalStore) Exists(_ context.Context, bucket, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.resolve(bucket, path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s/%s: %w", bucket, path, err)
	}
	return true, nil
}

func (s *LocalStore) PublicURL(bucket, path string) string {
	return s.baseURL + "/" + bucket + "/" + strings.TrimPrefix(path, "/")
}

// SignedURL has no meaning for local files; it returns the public URL.
func (s *LocalStore) SignedURL(_ context.Context, bucket, path string, _ time.Duration) (string, error) {
	return s.PublicURL(bucket, path), nil
}
