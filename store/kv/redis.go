package kv

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/stores/redis"
)

// RedisStore implements Store on top of go-zero's redis.Redis client, the
// same wrapper the teacher's auth domain/cache package uses (SismemberCtx,
// SaddCtx, SremCtx, SetexCtx, GetCtx) — generalized here into the full
// KeyValueStore contract instead of one bespoke valid-token-set cache.
type RedisStore struct {
	client *redis.Redis
}

// NewRedisStore wraps an already-constructed go-zero redis client.
func NewRedisStore(client *redis.Redis) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.GetCtx(ctx, key)
	if err != nil {
		return "", err
	}
	if val == "" {
		return "", ErrNotFound
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.client.SetCtx(ctx, key, value)
	}
	return s.client.SetexCtx(ctx, key, value, int(ttl.Seconds()))
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	seconds := int(ttl.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return s.client.SetnxExCtx(ctx, key, value, seconds)
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	_, err := s.client.DelCtx(ctx, key)
	return err
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := s.client.IncrCtx(ctx, key)
	if err != nil {
		return 0, err
	}
	if n == 1 && ttl > 0 {
		// First increment establishes the counter window; arm its expiry
		// so the counter resets once that fixed window lapses.
		if err := s.client.ExpireCtx(ctx, key, int(ttl.Seconds())); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.ExpireCtx(ctx, key, int(ttl.Seconds()))
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	seconds, err := s.client.TtlCtx(ctx, key)
	if err != nil {
		return 0, err
	}
	if seconds <= 0 {
		return 0, nil
	}
	return time.Duration(seconds) * time.Second, nil
}

func (s *RedisStore) SAdd(ctx context.Context, key, member string) error {
	_, err := s.client.SaddCtx(ctx, key, member)
	return err
}

func (s *RedisStore) SRem(ctx context.Context, key, member string) error {
	_, err := s.client.SremCtx(ctx, key, member)
	return err
}

func (s *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.client.SismemberCtx(ctx, key, member)
}
