package repository

import (
	"context"
	"time"
)

// BlockCounterRepository keeps short-lived counters of how often each proxy was blocked per target.
type BlockCounterRepository interface {
	// Increment bumps the counter for a proxy and refreshes its expiry.
	Increment(ctx context.Context, targetID string, proxyID int64, ttl time.Duration) (int64, error)
	// Counts returns the live counters for a target keyed by proxy id.
	Counts(ctx context.Context, targetID string) (map[int64]int64, error)
}
