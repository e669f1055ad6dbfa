// Package redisstore keeps per-user daily quota counters in Redis.
package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"scour/internal/ports"
)

// counterTTL outlives the UTC day a counter belongs to.
const counterTTL = 48 * time.Hour

type QuotaStore struct {
	rdb    *redis.Client
	prefix string
}

var _ ports.QuotaStore = (*QuotaStore)(nil)

// Open parses a redis:// URL and pings the server.
func Open(ctx context.Context, url string) (*QuotaStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return New(rdb), nil
}

func New(rdb *redis.Client) *QuotaStore {
	return &QuotaStore{rdb: rdb, prefix: "scour:quota:"}
}

func (q *QuotaStore) Close() error { return q.rdb.Close() }

func (q *QuotaStore) IncrementQuota(ctx context.Context, kind, day, userID string) (int64, error) {
	key := q.prefix + kind + ":" + day + ":" + userID
	pipe := q.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
