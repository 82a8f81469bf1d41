package kvstore

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient adapts *redis.Client to Client, translating redis.Nil into
// ErrNotFound so callers never import go-redis directly. Mirrors
// runtime/agent/telemetry's pattern of keeping third-party error types
// behind the package boundary.
type redisClient struct {
	rdb *redis.Client
}

// NewRedisClient wraps an existing Redis connection. Callers own the
// connection's lifecycle (Close it themselves); the Store never closes it.
func NewRedisClient(rdb *redis.Client) Client {
	return &redisClient{rdb: rdb}
}

func (c *redisClient) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", wrapRedisErr(err)
	}
	return val, nil
}

func (c *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

func (c *redisClient) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, wrapRedisErr(err)
	}
	return ok, nil
}

func (c *redisClient) Del(ctx context.Context, keys ...string) error {
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

func (c *redisClient) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrapRedisErr(err)
	}
	return n, nil
}

func (c *redisClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

func (c *redisClient) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	members, err := c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: formatBound(min),
		Max: formatBound(max),
	}).Result()
	if err != nil {
		return nil, wrapRedisErr(err)
	}
	return members, nil
}

func (c *redisClient) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := c.rdb.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapRedisErr(err)
	}
	return score, true, nil
}

func (c *redisClient) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.rdb.SAdd(ctx, key, args...).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

func (c *redisClient) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, wrapRedisErr(err)
	}
	return members, nil
}

func (c *redisClient) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.rdb.SRem(ctx, key, args...).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

func formatBound(f float64) string {
	if f == 0 {
		return "-inf"
	}
	if f >= maxScore {
		return "+inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// wrapRedisErr classifies a go-redis error as transient (network-level,
// worth retrying) or permanent.
func wrapRedisErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrTransientIO
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTransientIO
	}
	return ErrPermanentIO
}

// classify normalizes an error returned by Client into one of this
// package's sentinels, leaving ErrNotFound/ErrTransientIO/ErrPermanentIO
// untouched and wrapping anything else as permanent.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict),
		errors.Is(err, ErrTransientIO), errors.Is(err, ErrPermanentIO):
		return err
	default:
		return ErrPermanentIO
	}
}
