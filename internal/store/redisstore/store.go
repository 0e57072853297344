// Package redisstore keeps the short-lived dedup state for inbound webhook
// deliveries. The transport retries deliveries it considers unacknowledged,
// and the pipeline must process each message exactly once.
package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenKeyPrefix = "wa:seen:"

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

// FirstSeen atomically claims a message ID, returning true exactly once per
// TTL window. Retried deliveries of the same message return false.
func (s *Store) FirstSeen(ctx context.Context, messageID string) (bool, error) {
	return s.rdb.SetNX(ctx, seenKeyPrefix+messageID, 1, s.ttl).Result()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
