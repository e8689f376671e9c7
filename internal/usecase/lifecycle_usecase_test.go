package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/events"
	"github.com/qrave1/VanishRoom/internal/domain/input"
	"github.com/qrave1/VanishRoom/internal/domain/models"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/kv"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
)

func systemMessages(t *testing.T, e *env, roomCode string) []*models.Message {
	t.Helper()

	msgs, err := e.messages.ListByRoom(context.Background(), roomCode, time.Time{}, 200)
	require.NoError(t, err)

	out := make([]*models.Message, 0)
	for _, m := range msgs {
		if m.IsSystem {
			out = append(out, m)
		}
	}
	return out
}

func TestLifecycle_LockIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	room := e.createRoom(t, userID(1), 60)
	e.connect(t, "c2", userID(2), room.Code, "Guest")

	changed, err := e.lifecycle.Lock(ctx, room.Code)
	require.NoError(t, err)
	assert.True(t, changed)

	first, err := e.rooms.GetByCode(ctx, room.Code)
	require.NoError(t, err)

	e.clock.Advance(time.Minute)

	changed, err = e.lifecycle.Lock(ctx, room.Code)
	require.NoError(t, err)
	assert.False(t, changed)

	second, err := e.rooms.GetByCode(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, first.LockedAt, second.LockedAt)

	notices := systemMessages(t, e, room.Code)
	require.Len(t, notices, 1)
	assert.Equal(t, "Admin has left the room. The room is now read-only and will vanish in 24 hours.", notices[0].Content)

	locked := 0
	for _, typ := range e.conns["c2"].types() {
		if typ == events.OutRoomLocked {
			locked++
		}
	}
	assert.Equal(t, 1, locked)
}

func TestLifecycle_LockMissingRoom(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.lifecycle.Lock(context.Background(), "999999")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLifecycle_VanishDisconnectsEveryone(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	room := e.createRoom(t, userID(1), 60)
	e.connect(t, "c1", userID(1), room.Code, "Owner")
	e.connect(t, "c2", userID(2), room.Code, "Guest")
	e.connect(t, "c3", userID(3), room.Code, "Other")

	_, err := e.send("c2", room.Code, "hello")
	require.NoError(t, err)

	res, err := e.lifecycle.Vanish(ctx, room.Code, "admin")
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Rooms)
	assert.EqualValues(t, 1, res.Messages)
	assert.Equal(t, 3, res.Disconnected)

	for _, id := range []string{"c1", "c2", "c3"} {
		assert.Contains(t, e.conns[id].types(), events.OutRoomVanished, id)
		assert.True(t, e.conns[id].isClosed(), id)
	}

	_, err = e.rooms.GetByCode(ctx, room.Code)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	n, err := e.messages.CountByRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.Zero(t, n)

	members, err := e.coord.SMembers(ctx, kv.RoomUsersKey(room.Code))
	require.NoError(t, err)
	assert.Empty(t, members)

	audits := e.effects.auditRecords()
	require.Len(t, audits, 1)
	assert.Equal(t, models.AuditActionVanish, audits[0].Action)
	assert.Equal(t, "admin", audits[0].AdminID)
	assert.True(t, audits[0].Success)
	assert.Equal(t, string(models.RoomActive), audits[0].Metadata["priorState"])

	_, err = e.lifecycle.Vanish(ctx, room.Code, "admin")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLifecycle_VanishRateLimited(t *testing.T) {
	limiter, _ := newRedisLimiter(t)
	e := newEnv(t, limiter)

	for i := 0; i < 10; i++ {
		_, _ = e.lifecycle.Vanish(context.Background(), "999999", "admin")
	}

	_, err := e.lifecycle.Vanish(context.Background(), "999999", "admin")
	assert.ErrorIs(t, err, apperr.ErrRateLimited)
}

func TestLifecycle_AutoVanishTwiceIsHarmless(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	room := e.createRoom(t, userID(1), 48*60)

	_, err := e.lifecycle.Lock(ctx, room.Code)
	require.NoError(t, err)

	e.clock.Advance(25 * time.Hour)

	res, err := e.lifecycle.AutoVanish(ctx, room)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Rooms)

	res, err = e.lifecycle.AutoVanish(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{}, *res)
}

func TestLifecycle_AutoVanishSkipsRoomUnlockedAfterSweepQuery(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	owner := userID(1)
	room := e.createRoom(t, owner, 48*60)
	e.connect(t, "c2", userID(2), room.Code, "Guest")

	_, err := e.lifecycle.Lock(ctx, room.Code)
	require.NoError(t, err)

	e.clock.Advance(25 * time.Hour)
	now := e.clock.Now()

	found, err := e.rooms.FindLockedBefore(ctx, store.LockedQuery{
		LockedBefore: now.Add(-24 * time.Hour),
		AliveAt:      now,
		Limit:        10,
	})
	require.NoError(t, err)
	require.Len(t, found, 1)

	// владелец вернулся между выборкой и удалением
	joined := e.connect(t, "c1", owner, room.Code, "Host")
	require.False(t, joined.IsLocked)

	res, err := e.lifecycle.AutoVanish(ctx, found[0])
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{}, *res)

	got, err := e.rooms.GetByCode(ctx, room.Code)
	require.NoError(t, err)
	assert.False(t, got.IsLocked)
	assert.Nil(t, got.VanishingAt)

	assert.NotContains(t, e.conns["c2"].types(), events.OutRoomVanished)
	assert.False(t, e.conns["c2"].isClosed())
}

func TestLifecycle_AutoVanishSkipsFreshLock(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	room := e.createRoom(t, userID(1), 48*60)

	_, err := e.lifecycle.Lock(ctx, room.Code)
	require.NoError(t, err)

	e.clock.Advance(time.Hour)

	res, err := e.lifecycle.AutoVanish(ctx, room)
	require.NoError(t, err)
	assert.Zero(t, res.Rooms)

	_, err = e.rooms.GetByCode(ctx, room.Code)
	assert.NoError(t, err)
}

func TestLifecycle_ClaimedRoomCannotBeUnlockedOrJoined(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	owner := userID(1)
	room := e.createRoom(t, owner, 48*60)

	_, err := e.lifecycle.Lock(ctx, room.Code)
	require.NoError(t, err)

	e.clock.Advance(25 * time.Hour)
	now := e.clock.Now()

	claimed, err := e.rooms.ClaimForVanish(ctx, room.Code, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	require.True(t, claimed)

	changed, err := e.lifecycle.Unlock(ctx, room.Code)
	require.NoError(t, err)
	assert.False(t, changed)

	conn := &recordingConn{}
	e.registry.Add("c1", owner, conn)
	_, err = e.presence.Join(ctx, "c1", &input.JoinInput{RoomCode: room.Code, Nickname: "Host"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// восстановление дочищает уже захваченную комнату
	res, err := e.lifecycle.AutoVanish(ctx, room)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Rooms)
}

func TestLifecycle_EndRequiresOwner(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	room := e.createRoom(t, userID(1), 60)
	e.connect(t, "c2", userID(2), room.Code, "Guest")

	_, err := e.lifecycle.End(ctx, room.Code, userID(2))
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = e.rooms.GetByCode(ctx, room.Code)
	require.NoError(t, err)

	res, err := e.lifecycle.End(ctx, room.Code, userID(1))
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Rooms)
	assert.Equal(t, 1, res.Disconnected)

	assert.Contains(t, e.conns["c2"].types(), events.OutRoomDestroyed)
	assert.True(t, e.conns["c2"].isClosed())

	_, err = e.rooms.GetByCode(ctx, room.Code)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLifecycle_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	short := e.createRoom(t, userID(1), 10)
	long := e.createRoom(t, userID(1), 120)

	e.connect(t, "c2", userID(2), short.Code, "Guest")
	_, err := e.send("c2", short.Code, "soon gone")
	require.NoError(t, err)

	n, err := e.lifecycle.PurgeExpired(ctx, 1000)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.clock.Advance(10 * time.Minute)

	n, err = e.lifecycle.PurgeExpired(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Contains(t, e.conns["c2"].types(), events.OutRoomDestroyed)
	assert.True(t, e.conns["c2"].isClosed())

	_, err = e.rooms.GetByCode(ctx, short.Code)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	count, err := e.messages.CountByRoom(ctx, short.Code)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = e.rooms.GetByCode(ctx, long.Code)
	assert.NoError(t, err)
}

// Комната, которая одновременно заблокирована давно и истекла, достаётся ровно одному сборщику
func TestLifecycle_LockedAndExpiredRoomHasOneOwner(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	room := e.createRoom(t, userID(1), 24*60)

	_, err := e.lifecycle.Lock(ctx, room.Code)
	require.NoError(t, err)

	e.clock.Advance(24*time.Hour + time.Minute)
	now := e.clock.Now()

	locked, err := e.rooms.FindLockedBefore(ctx, store.LockedQuery{
		LockedBefore: now.Add(-24 * time.Hour),
		AliveAt:      now,
		Limit:        100,
	})
	require.NoError(t, err)
	assert.Empty(t, locked)

	expired, err := e.rooms.FindExpired(ctx, now, 100)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	// даже при расхождении часов повторное удаление безвредно
	res, err := e.lifecycle.AutoVanish(ctx, expired[0])
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Rooms)

	n, err := e.lifecycle.PurgeExpired(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
}
