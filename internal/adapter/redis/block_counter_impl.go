package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const blockCounterPrefix = "proxyservice:blocked:"

// BlockCounterRepoImpl implements repository.BlockCounterRepository with one Redis hash per target.
// Each field is a proxy id, each value the number of times it was reported blocked.
type BlockCounterRepoImpl struct {
	client redis.UniversalClient
}

// NewBlockCounterRepo creates a new instance of BlockCounterRepoImpl.
func NewBlockCounterRepo(client redis.UniversalClient) *BlockCounterRepoImpl {
	return &BlockCounterRepoImpl{client: client}
}

func (r *BlockCounterRepoImpl) generateKey(targetID string) string {
	return blockCounterPrefix + targetID
}

// Increment bumps a proxy's counter and pushes the hash expiry out to ttl.
func (r *BlockCounterRepoImpl) Increment(ctx context.Context, targetID string, proxyID int64, ttl time.Duration) (int64, error) {
	key := r.generateKey(targetID)

	pipe := r.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, strconv.FormatInt(proxyID, 10), 1)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incrementing block counter for target %s: %w", targetID, err)
	}
	return incr.Val(), nil
}

// Counts returns every live counter of a target. A target with no blocks yields an empty map.
func (r *BlockCounterRepoImpl) Counts(ctx context.Context, targetID string) (map[int64]int64, error) {
	raw, err := r.client.HGetAll(ctx, r.generateKey(targetID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading block counters for target %s: %w", targetID, err)
	}

	counts := make(map[int64]int64, len(raw))
	for field, value := range raw {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		counts[id] = n
	}
	return counts, nil
}
