package repository

import (
	"context"
	"fmt"

	domrepo "StreamCast/internal/domain/repository"
	"StreamCast/pkg/cache"
)

// SnapshotOptions selects and configures a snapshot backend.
type SnapshotOptions struct {
	Kind          string // memory, redis or sqlite
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// NewSnapshotStore builds and initialises the configured backend.
func NewSnapshotStore(ctx context.Context, opts SnapshotOptions) (domrepo.SnapshotStore, error) {
	switch opts.Kind {
	case "", "memory":
		return NewCacheSnapshotStore(cache.NewMemoryCache()), nil
	case "redis":
		rc, err := cache.NewRedisCache(
			cache.WithRedisAddr(opts.RedisAddr),
			cache.WithRedisPassword(opts.RedisPassword),
			cache.WithRedisDB(opts.RedisDB),
			cache.WithRedisPrefix(opts.RedisPrefix),
		)
		if err != nil {
			return nil, fmt.Errorf("redis snapshot store: %w", err)
		}
		return NewCacheSnapshotStore(rc), nil
	case "sqlite":
		s := NewSQLiteSnapshotStore(opts.SQLitePath)
		if err := s.Init(ctx); err != nil {
			return nil, fmt.Errorf("sqlite snapshot store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("snapshot backend %q: %w", opts.Kind, domrepo.ErrUnsupportedBackend)
	}
}
