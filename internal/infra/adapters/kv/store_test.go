package kv

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisForTest(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client), mr
}

func storesForTest(t *testing.T) map[string]Store {
	redisStore, _ := newRedisForTest(t)
	return map[string]Store{
		"redis":  redisStore,
		"memory": NewMemoryStore(),
	}
}

func TestStore_Sets(t *testing.T) {
	ctx := context.Background()

	for name, s := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			key := RoomUsersKey("ABC123")

			require.NoError(t, s.SAdd(ctx, key, "u1", "u2", "u1"))

			n, err := s.SCard(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			require.NoError(t, s.SRem(ctx, key, "u1"))

			members, err := s.SMembers(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, []string{"u2"}, members)
		})
	}
}

func TestStore_HashAndScan(t *testing.T) {
	ctx := context.Background()

	for name, s := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.HSet(ctx, UserKey("u1"), map[string]string{"nickname": "Nova", "roomCode": "ABC123"}))
			require.NoError(t, s.SAdd(ctx, RoomUsersKey("ABC123"), "u1"))
			require.NoError(t, s.SAdd(ctx, RoomUsersKey("XYZ999"), "u2"))

			values, err := s.HGetAll(ctx, UserKey("u1"))
			require.NoError(t, err)
			assert.Equal(t, "Nova", values["nickname"])

			keys, err := s.Scan(ctx, RoomPattern("ABC123"))
			require.NoError(t, err)
			sort.Strings(keys)
			assert.Equal(t, []string{"room:ABC123:users"}, keys)

			require.NoError(t, s.Del(ctx, keys...))
			n, err := s.SCard(ctx, RoomUsersKey("ABC123"))
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStore_GetDel(t *testing.T) {
	ctx := context.Background()

	for name, s := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SetEx(ctx, PairingKey("123456"), "ABC123", time.Minute))

			v, err := s.GetDel(ctx, PairingKey("123456"))
			require.NoError(t, err)
			assert.Equal(t, "ABC123", v)

			_, err = s.GetDel(ctx, PairingKey("123456"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRedisStore_IncrWithExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisForTest(t)

	key := RateKey("message", "u1")
	for i := 1; i <= 3; i++ {
		n, err := s.IncrWithExpiry(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(time.Minute + time.Second)

	n, err := s.IncrWithExpiry(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// failFirstExpire роняет первый EXPIRE, как при таймауте сети
type failFirstExpire struct {
	failed atomic.Bool
}

func (h *failFirstExpire) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *failFirstExpire) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "expire" && h.failed.CompareAndSwap(false, true) {
			err := errors.New("i/o timeout")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (h *failFirstExpire) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisStore_IncrWithExpiryHealsLostExpire(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	client.AddHook(&failFirstExpire{})

	s := NewRedisStore(client)
	key := RateKey("message", "u1")

	n, err := s.IncrWithExpiry(ctx, key, time.Minute)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, mr.TTL(key), "expire was lost")

	for i := 2; i <= 40; i++ {
		n, err = s.IncrWithExpiry(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(time.Minute + time.Second)

	n, err = s.IncrWithExpiry(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "window must reset after a lost expire")
}

func TestRedisStore_UnavailableWhenDown(t *testing.T) {
	s, mr := newRedisForTest(t)
	mr.Close()

	_, err := s.IncrWithExpiry(context.Background(), RateKey("message", "u1"), time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newMemoryStoreWithClock(func() time.Time { return now })

	key := RateKey("file", "u1")
	n, err := s.IncrWithExpiry(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	now = now.Add(30 * time.Second)
	n, _ = s.IncrWithExpiry(ctx, key, time.Minute)
	assert.Equal(t, int64(2), n)

	now = now.Add(31 * time.Second)
	n, _ = s.IncrWithExpiry(ctx, key, time.Minute)
	assert.Equal(t, int64(1), n)
}

func TestDisabledStore(t *testing.T) {
	s := NewDisabledStore()

	_, err := s.SCard(context.Background(), RoomUsersKey("ABC123"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, s.SAdd(context.Background(), "k", "v"), ErrUnavailable)
}
