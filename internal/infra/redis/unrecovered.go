package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/packetfeed/internal/infra/storage"
)

// UnrecoveredRepo implements storage.RescanQueue using Redis.
// Each run gets a sorted set scored by sequence; the set of run IDs with
// pending work is tracked separately.
type UnrecoveredRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewUnrecoveredRepo creates a new Redis-backed repository.
func NewUnrecoveredRepo(client *Client, ttl time.Duration) *UnrecoveredRepo {
	return &UnrecoveredRepo{
		rdb: client.rdb,
		ttl: ttl,
	}
}

// Add queues sequences for runID.
func (r *UnrecoveredRepo) Add(ctx context.Context, runID string, seqs []int32) error {
	if len(seqs) == 0 {
		return nil
	}

	members := make([]redis.Z, len(seqs))
	for i, seq := range seqs {
		members[i] = redis.Z{Score: float64(seq), Member: strconv.Itoa(int(seq))}
	}

	key := unrecoveredKey(runID)
	pipe := r.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, members...)
	pipe.SAdd(ctx, runsKey, runID)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to queue unrecovered sequences: %w", err)
	}
	return nil
}

// Pending returns the queued sequences for runID, ascending.
func (r *UnrecoveredRepo) Pending(ctx context.Context, runID string) ([]int32, error) {
	members, err := r.rdb.ZRange(ctx, unrecoveredKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	seqs := make([]int32, 0, len(members))
	for _, m := range members {
		seq, err := strconv.ParseInt(m, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid sequence %q: %w", m, err)
		}
		seqs = append(seqs, int32(seq))
	}
	return seqs, nil
}

// Resolve removes a recovered sequence from runID's queue.
func (r *UnrecoveredRepo) Resolve(ctx context.Context, runID string, seq int32) error {
	key := unrecoveredKey(runID)
	if err := r.rdb.ZRem(ctx, key, strconv.Itoa(int(seq))).Err(); err != nil {
		return fmt.Errorf("zrem failed: %w", err)
	}

	n, err := r.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("zcard failed: %w", err)
	}
	if n == 0 {
		return r.rdb.SRem(ctx, runsKey, runID).Err()
	}
	return nil
}

// Forget drops runID from the run set along with any queued sequences. The
// per-run key may already be gone through its TTL while the run set entry,
// which has no TTL, is still there.
func (r *UnrecoveredRepo) Forget(ctx context.Context, runID string) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, unrecoveredKey(runID))
	pipe.SRem(ctx, runsKey, runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to forget run %s: %w", runID, err)
	}
	return nil
}

// Runs lists run IDs that still have queued sequences.
func (r *UnrecoveredRepo) Runs(ctx context.Context) ([]string, error) {
	return r.rdb.SMembers(ctx, runsKey).Result()
}

var _ storage.RescanQueue = (*UnrecoveredRepo)(nil)
