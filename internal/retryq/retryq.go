package retryq

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKey = "hookline:retries"

// Queue is a Redis ZSET delayed queue for delivery retries: members are
// delivery IDs, scores are due times (unix seconds). A retry is scheduled
// only after the failed attempt's state is persisted, which keeps attempts
// for one delivery strictly sequential.
type Queue struct {
	rdb *redis.Client
	key string
}

func New(rdb *redis.Client, key string) *Queue {
	if key == "" {
		key = DefaultKey
	}
	return &Queue{rdb: rdb, key: key}
}

// Schedule enqueues the delivery to run at dueAt.
func (q *Queue) Schedule(ctx context.Context, deliveryID string, dueAt time.Time) error {
	return q.rdb.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(dueAt.Unix()),
		Member: deliveryID,
	}).Err()
}

// Claim pops up to limit due delivery IDs. The ZREM acts as the claim: a
// member another poller already removed is skipped, so each retry fires on
// exactly one worker.
func (q *Queue) Claim(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.rdb.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, err
	}

	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := q.rdb.ZRem(ctx, q.key, id).Result()
		if err != nil {
			return claimed, err
		}
		if n == 1 {
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}
