package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		// клиент всё равно возвращается: редис может подняться позже
		return client, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *redisStore) SAdd(ctx context.Context, key string, members ...string) error {
	return wrap(s.client.SAdd(ctx, key, toAny(members)...).Err())
}

func (s *redisStore) SRem(ctx context.Context, key string, members ...string) error {
	return wrap(s.client.SRem(ctx, key, toAny(members)...).Err())
}

func (s *redisStore) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, key).Result()
	return n, wrap(err)
}

func (s *redisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	return members, wrap(err)
}

func (s *redisStore) HSet(ctx context.Context, key string, values map[string]string) error {
	return wrap(s.client.HSet(ctx, key, values).Err())
}

func (s *redisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, key).Result()
	return values, wrap(err)
}

// IncrWithExpiry ставит срок жизни любому счётчику без него, а не только после первого инкремента:
// если EXPIRE однажды не дошёл, ключ восстановится на следующем вызове
func (s *redisStore) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var (
		incr    *redis.IntCmd
		current *redis.DurationCmd
	)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		current = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, wrap(err)
	}

	n := incr.Val()

	// TTL < 0: у ключа нет срока жизни
	if current.Val() < 0 {
		if err = s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return n, wrap(err)
		}
	}

	return n, nil
}

func (s *redisStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return wrap(s.client.Set(ctx, key, value, ttl).Err())
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return wrap(s.client.Expire(ctx, key, ttl).Err())
}

func (s *redisStore) GetDel(ctx context.Context, key string) (string, error) {
	v, err := s.client.GetDel(ctx, key).Result()
	return v, wrap(err)
}

func (s *redisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return wrap(s.client.Del(ctx, keys...).Err())
}

func (s *redisStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)

	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return keys, wrap(err)
		}

		keys = append(keys, batch...)
		cursor = next

		if cursor == 0 {
			return keys, nil
		}
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
