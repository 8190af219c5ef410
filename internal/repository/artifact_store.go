package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"Frisk/internal/domain/repository"
	"Frisk/pkg/cache"
)

// ErrBundleNotFound is returned when a version has no stored blobs.
var ErrBundleNotFound = errors.New("artifact bundle not found")

// RedisArtifactStore serves frozen bundles out of the shared blob cache. The
// training side writes them once under versioned keys; serving only reads.
type RedisArtifactStore struct {
	cache cache.Service
}

// NewRedisArtifactStore creates a Redis-backed artifact store.
func NewRedisArtifactStore(c cache.Service) repository.ArtifactStore {
	return &RedisArtifactStore{cache: c}
}

func (s *RedisArtifactStore) load(ctx context.Context, key string) ([]byte, error) {
	var raw string
	if err := s.cache.Get(ctx, key, &raw); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, key)
		}
		return nil, err
	}
	return []byte(raw), nil
}

func (s *RedisArtifactStore) LoadArtifacts(ctx context.Context, version string) ([]byte, error) {
	return s.load(ctx, cache.GenerateKey("artifacts", version))
}

func (s *RedisArtifactStore) LoadModels(ctx context.Context, version string) ([]byte, error) {
	return s.load(ctx, cache.GenerateKey("models", version))
}

// FileArtifactStore reads bundles from a local directory layout:
// <dir>/<version>/artifacts.json and <dir>/<version>/models.json. Used for
// development and as a fallback when no Redis is configured.
type FileArtifactStore struct {
	dir string
}

// NewFileArtifactStore creates a filesystem-backed artifact store.
func NewFileArtifactStore(dir string) repository.ArtifactStore {
	return &FileArtifactStore{dir: dir}
}

func (s *FileArtifactStore) load(version, name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, version, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrBundleNotFound, version, name)
		}
		return nil, err
	}
	return b, nil
}

func (s *FileArtifactStore) LoadArtifacts(_ context.Context, version string) ([]byte, error) {
	return s.load(version, "artifacts.json")
}

func (s *FileArtifactStore) LoadModels(_ context.Context, version string) ([]byte, error) {
	return s.load(version, "models.json")
}
