package counter

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the atomic counter primitive the rate limiter is built on:
// keyed integer counters and membership sets, both with per-key expiry.
// There is no cross-key atomicity; callers compensate explicitly.
type Store interface {
	Get(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	// DecrByFloor decrements and clamps the stored value at zero, so
	// compensating rollbacks can never drive a counter negative.
	DecrByFloor(ctx context.Context, key string, delta int64) (int64, error)
	AddToSet(ctx context.Context, key, member string, ttl time.Duration) error
	SetSize(ctx context.Context, key string) (int64, error)
	SetContains(ctx context.Context, key, member string) (bool, error)
}

type redisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) Store {
	return &redisStore{rdb: rdb}
}

// decrFloorScript decrements and clamps in one round trip so concurrent
// releases cannot observe a negative intermediate value.
var decrFloorScript = redis.NewScript(`
local v = redis.call('DECRBY', KEYS[1], ARGV[1])
if v < 0 then
  redis.call('SET', KEYS[1], 0, 'KEEPTTL')
  v = 0
end
return v
`)

func (s *redisStore) Get(ctx context.Context, key string) (int64, error) {
	v, err := s.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return v, nil
}

func (s *redisStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return incr.Val(), nil
}

func (s *redisStore) DecrByFloor(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := decrFloorScript.Run(ctx, s.rdb, []string{key}, delta).Int64()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return v, nil
}

func (s *redisStore) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, key, member)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (s *redisStore) SetSize(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.SCard(ctx, key).Result()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return n, nil
}

func (s *redisStore) SetContains(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return ok, nil
}
