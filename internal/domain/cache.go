package domain

import (
	"context"
	"time"
)

// SnapshotCache holds the most recent refresh result for fast reads
// across processes.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, snap Snapshot, ttl time.Duration) error
	GetSnapshot(ctx context.Context) (Snapshot, error)
	Invalidate(ctx context.Context) error
}

// SignalBus provides pub/sub fan-out for refresh and alert events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter enforces a request budget per key over a sliding window.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under the
	// limit. Permitted requests are counted against the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
