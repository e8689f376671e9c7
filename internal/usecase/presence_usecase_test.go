package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/events"
	"github.com/qrave1/VanishRoom/internal/domain/input"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/kv"
)

func TestPresence_DuplicateNicknameGetsSuffix(t *testing.T) {
	e := newEnv(t, nil)
	room := e.createRoom(t, userID(1), 60)

	a := e.connect(t, "a", userID(2), room.Code, "Nova")
	assert.Equal(t, "Nova", a.Nickname)

	b := e.connect(t, "b", userID(3), room.Code, "Nova")
	assert.Regexp(t, suffixed, b.Nickname)
	assert.Equal(t, 2, b.UserCount)

	assert.Contains(t, e.conns["a"].types(), events.OutUserJoined)
	assert.NotContains(t, e.conns["b"].types(), events.OutUserJoined)
}

func TestPresence_HistoryKeepsNicknameReserved(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	room := e.createRoom(t, userID(1), 60)

	e.connect(t, "a", userID(2), room.Code, "Nova")
	_, err := e.send("a", room.Code, "hi")
	require.NoError(t, err)

	require.NoError(t, e.presence.Leave(ctx, "a", false))
	e.registry.Remove("a")

	// живых соединений и записей KV уже нет, остаётся только история
	members, err := e.coord.SMembers(ctx, kv.RoomUsersKey(room.Code))
	require.NoError(t, err)
	assert.Empty(t, members)

	c := e.connect(t, "c", userID(4), room.Code, "nova")
	assert.Regexp(t, `^nova#\d{3}$`, c.Nickname)
}

func TestPresence_SameUserKeepsOwnNickname(t *testing.T) {
	e := newEnv(t, nil)
	room := e.createRoom(t, userID(1), 60)

	e.connect(t, "tab1", userID(2), room.Code, "Nova")
	second := e.connect(t, "tab2", userID(2), room.Code, "Nova")

	assert.Equal(t, "Nova", second.Nickname)
	assert.Equal(t, 1, second.UserCount)
}

func TestPresence_OwnerLeaveLocksRoom(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	room := e.createRoom(t, userID(1), 60)

	owner := e.connect(t, "owner", userID(1), room.Code, "Host")
	assert.True(t, owner.IsOwner)
	e.connect(t, "guest", userID(2), room.Code, "Guest")

	require.NoError(t, e.presence.Leave(ctx, "owner", true))

	stored, err := e.rooms.GetByCode(ctx, room.Code)
	require.NoError(t, err)
	assert.True(t, stored.IsLocked)
	require.NotNil(t, stored.LockedAt)

	types := e.conns["guest"].types()
	assert.Contains(t, types, events.OutUserLeft)
	assert.Contains(t, types, events.OutRoomLocked)
	assert.Len(t, systemMessages(t, e, room.Code), 1)

	_, err = e.send("guest", room.Code, "anyone?")
	assert.ErrorIs(t, err, apperr.ErrRoomLocked)

	// возвращение владельца снимает блокировку
	back := e.connect(t, "owner2", userID(1), room.Code, "Host")
	assert.False(t, back.IsLocked)
	assert.Contains(t, e.conns["guest"].types(), events.OutRoomUnlocked)

	_, err = e.send("guest", room.Code, "welcome back")
	assert.NoError(t, err)
}

func TestPresence_OwnerDisconnectDoesNotLock(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	room := e.createRoom(t, userID(1), 60)

	e.connect(t, "owner", userID(1), room.Code, "Host")
	require.NoError(t, e.presence.Leave(ctx, "owner", false))

	stored, err := e.rooms.GetByCode(ctx, room.Code)
	require.NoError(t, err)
	assert.False(t, stored.IsLocked)
}

func TestPresence_OwnerLeaveWithSecondTab(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	room := e.createRoom(t, userID(1), 60)

	e.connect(t, "tab1", userID(1), room.Code, "Host")
	e.connect(t, "tab2", userID(1), room.Code, "Host")

	require.NoError(t, e.presence.Leave(ctx, "tab1", true))

	stored, err := e.rooms.GetByCode(ctx, room.Code)
	require.NoError(t, err)
	assert.False(t, stored.IsLocked)
}

func TestPresence_LeaveWithoutJoin(t *testing.T) {
	e := newEnv(t, nil)
	e.registry.Add("x", userID(1), &recordingConn{})

	assert.ErrorIs(t, e.presence.Leave(context.Background(), "x", true), apperr.ErrNotInRoom)
	assert.NoError(t, e.presence.Leave(context.Background(), "x", false))
}

func TestPresence_JoinValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	room := e.createRoom(t, userID(1), 60)
	e.registry.Add("x", userID(2), &recordingConn{})

	tests := []struct {
		name string
		in   input.JoinInput
		err  error
	}{
		{name: "bad code", in: input.JoinInput{RoomCode: "12ab", Nickname: "Nova"}, err: apperr.ErrValidation},
		{name: "empty nickname", in: input.JoinInput{RoomCode: room.Code, Nickname: "  "}, err: apperr.ErrValidation},
		{name: "unknown room", in: input.JoinInput{RoomCode: "999999", Nickname: "Nova"}, err: apperr.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.presence.Join(ctx, "x", &tt.in)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := e.presence.Join(ctx, "unknown-conn", &input.JoinInput{RoomCode: room.Code, Nickname: "Nova"})
	assert.ErrorIs(t, err, apperr.ErrNotInRoom)
}

func TestPresence_UpdateNicknameRenamesHistory(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	room := e.createRoom(t, userID(1), 60)

	e.connect(t, "a", userID(2), room.Code, "Nova")
	e.connect(t, "b", userID(3), room.Code, "Orion")

	msg, err := e.send("a", room.Code, "hi")
	require.NoError(t, err)

	got, err := e.presence.UpdateNickname(ctx, "a", &input.UpdateNicknameInput{Nickname: "orion"})
	require.NoError(t, err)
	assert.Regexp(t, `^orion#\d{3}$`, got)

	stored, err := e.messages.GetByID(ctx, room.Code, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, got, stored.Nickname)

	assert.Contains(t, e.conns["b"].types(), events.OutNicknameChanged)
}

func TestPresence_TypingExcludesSender(t *testing.T) {
	e := newEnv(t, nil)
	room := e.createRoom(t, userID(1), 60)

	e.connect(t, "a", userID(2), room.Code, "Nova")
	e.connect(t, "b", userID(3), room.Code, "Orion")

	require.NoError(t, e.presence.Typing(context.Background(), "a", true))

	assert.Contains(t, e.conns["b"].types(), events.OutTyping)
	assert.NotContains(t, e.conns["a"].types(), events.OutTyping)
}
