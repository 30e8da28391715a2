package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisLockTTL  = 10 * time.Second
	redisLockPoll = 25 * time.Millisecond
)

// Redis implements Locker with SET NX and a TTL guarding against a
// holder dying mid-trade. The owner id keeps one instance from
// releasing another's lock.
type Redis struct {
	rdb *redis.Client
	id  string
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{
		rdb: rdb,
		id:  uuid.NewString(),
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := "fncoins:lock:" + key
	for {
		ok, err := r.rdb.SetNX(ctx, lockKey, r.id, redisLockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redisLockPoll):
		}
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		val, err := r.rdb.Get(releaseCtx, lockKey).Result()
		if err == nil && val == r.id {
			r.rdb.Del(releaseCtx, lockKey)
		}
	}, nil
}
