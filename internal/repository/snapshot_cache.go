package repository

import (
	"context"
	"errors"
	"fmt"

	"StreamCast/internal/domain/models"
	domrepo "StreamCast/internal/domain/repository"
	"StreamCast/pkg/cache"
)

// CacheSnapshotStore keeps snapshots in a cache.Service, which is either
// Redis or the in-process memory cache.
type CacheSnapshotStore struct {
	svc cache.Service
}

func NewCacheSnapshotStore(svc cache.Service) *CacheSnapshotStore {
	return &CacheSnapshotStore{svc: svc}
}

func snapshotKey(key string) string {
	return cache.GenerateKeyWithParams("snapshot", key)
}

// Save overwrites the snapshot for s.Key. Snapshots never expire.
func (c *CacheSnapshotStore) Save(ctx context.Context, s models.Snapshot) error {
	if s.Key == "" {
		return fmt.Errorf("save snapshot: empty key")
	}
	if err := c.svc.Set(ctx, snapshotKey(s.Key), s, 0); err != nil {
		return fmt.Errorf("save snapshot %s: %w", s.Key, err)
	}
	return nil
}

func (c *CacheSnapshotStore) Load(ctx context.Context, key string) (models.Snapshot, bool, error) {
	var s models.Snapshot
	if err := c.svc.Get(ctx, snapshotKey(key), &s); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.Snapshot{}, false, nil
		}
		return models.Snapshot{}, false, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return s, true, nil
}

func (c *CacheSnapshotStore) Close() error {
	return c.svc.Close()
}

var _ domrepo.SnapshotStore = (*CacheSnapshotStore)(nil)
