package repo

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

type Redis struct{ C *redis.Client }

func NewRedis(addr string) *Redis {
	return &Redis{C: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *Redis) Ping(ctx context.Context) error { return r.C.Ping(ctx).Err() }
func (r *Redis) Close() error                   { return r.C.Close() }

// Allow counts a hit against key inside a fixed window and reports whether
// the caller is still under limit. A nil receiver allows everything.
func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r == nil || r.C == nil || limit <= 0 {
		return true, nil
	}
	k := "rl:" + key
	n, err := r.C.Incr(ctx, k).Result()
	if err != nil {
		return true, err
	}
	if n == 1 {
		if err := r.C.Expire(ctx, k, window).Err(); err != nil {
			return true, err
		}
	}
	return n <= int64(limit), nil
}
