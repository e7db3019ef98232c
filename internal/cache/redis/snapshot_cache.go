package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/polarlyst/arbmonitor/internal/domain"
)

// snapshotKey is the single key holding the latest refresh result.
const snapshotKey = "arbmon:snapshot"

// SnapshotCache implements domain.SnapshotCache on Redis, so multiple
// monitor instances can share one refresh result.
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

// SetSnapshot stores the snapshot as JSON with the given TTL.
func (sc *SnapshotCache) SetSnapshot(ctx context.Context, snap domain.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the cached snapshot. A missing or expired key
// maps to domain.ErrStale.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context) (domain.Snapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Snapshot{}, domain.ErrStale
		}
		return domain.Snapshot{}, fmt.Errorf("redis: get snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Invalidate drops the cached snapshot.
func (sc *SnapshotCache) Invalidate(ctx context.Context) error {
	if err := sc.rdb.Del(ctx, snapshotKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate snapshot: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
