package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("store: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("store: zstd decoder initialization failed: " + err.Error())
	}
}

// ArtifactKey returns the Redis key for an artifact.
// Pattern: tsb:{namespace}:artifact:{path}
func ArtifactKey(namespace, path string) string {
	return fmt.Sprintf("tsb:%s:artifact:%s", namespace, filepath.ToSlash(path))
}

// MaxBlobSize bounds the size recorded for a stored artifact.
const MaxBlobSize = 1 << 30

// Digest returns the hex encoded BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RedisStore keeps artifacts in Redis hashes holding the zstd compressed
// blob, its digest and its uncompressed size. All keys are namespaced so
// several projects can share one server.
type RedisStore struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisStore creates a store for the namespace.
// Returns an error if namespace is empty.
func NewRedisStore(opts *redis.Options, namespace string) (*RedisStore, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	return &RedisStore{
		rdb:       redis.NewClient(opts),
		namespace: namespace,
	}, nil
}

// OpenRedisStore parses a redis:// URL and creates a store for namespace.
func OpenRedisStore(url, namespace string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return NewRedisStore(opts, namespace)
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Put compresses data and writes it under key. Writing the same key twice
// replaces the previous artifact.
func (s *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	hash := map[string]interface{}{
		"data":   zstdEncoder.EncodeAll(data, nil),
		"digest": Digest(data),
		"size":   len(data),
	}

	if err := s.rdb.HSet(ctx, ArtifactKey(s.namespace, key), hash).Err(); err != nil {
		return fmt.Errorf("failed to write artifact to Redis: %w", err)
	}
	return nil
}

// Get reads, decompresses and verifies the artifact under key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	fields, err := s.rdb.HGetAll(ctx, ArtifactKey(s.namespace, key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact from Redis: %w", err)
	}

	// HGetAll returns an empty map for missing keys
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	size, err := strconv.Atoi(fields["size"])
	if err != nil {
		return nil, fmt.Errorf("invalid size field for %s: %w", key, err)
	}
	if size < 0 || size > MaxBlobSize {
		return nil, fmt.Errorf("%w: %s: size %d out of range", ErrDigestMismatch, key, size)
	}

	data, err := zstdDecoder.DecodeAll([]byte(fields["data"]), make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", key, err)
	}

	if len(data) != size || Digest(data) != fields["digest"] {
		return nil, fmt.Errorf("%w: %s", ErrDigestMismatch, key)
	}

	return data, nil
}

// Exists checks for an artifact without fetching it.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, ArtifactKey(s.namespace, key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check artifact existence: %w", err)
	}
	return n > 0, nil
}
