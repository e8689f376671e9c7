package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/input"
	"github.com/qrave1/VanishRoom/internal/domain/models"
)

func TestCreateRoom(t *testing.T) {
	e := newEnv(t, nil)

	room, err := e.roomUC.Create(context.Background(), &input.CreateRoomInput{
		OwnerID: userID(1),
		Name:    "  Friday Night Plans! ",
	})
	require.NoError(t, err)

	assert.Regexp(t, `^\d{6}$`, room.Code)
	assert.Len(t, room.Token, 64)
	assert.Equal(t, "Friday Night Plans!", room.Name)
	assert.Equal(t, "friday-night-plans-"+room.Code, room.Slug)
	assert.Equal(t, e.clock.Now().Add(time.Hour), room.ExpiresAt)
	assert.Equal(t, models.RoomActive, room.State(e.clock.Now()))

	bySlug, err := e.roomUC.Get(context.Background(), room.Slug)
	require.NoError(t, err)
	assert.Equal(t, room.Code, bySlug.Code)
}

func TestCreateRoom_TTL(t *testing.T) {
	e := newEnv(t, nil)

	tests := []struct {
		name    string
		minutes int
		want    time.Duration
		wantErr bool
	}{
		{name: "default", minutes: 0, want: time.Hour},
		{name: "custom", minutes: 30, want: 30 * time.Minute},
		{name: "day", minutes: 24 * 60, want: 24 * time.Hour},
		{name: "max", minutes: 7 * 24 * 60, want: 7 * 24 * time.Hour},
		{name: "negative", minutes: -5, wantErr: true},
		{name: "over max", minutes: 7*24*60 + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, err := e.roomUC.Create(context.Background(), &input.CreateRoomInput{OwnerID: userID(1), TTLMinutes: tt.minutes})
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, room.ExpiresAt.Sub(room.CreatedAt))
		})
	}
}

func TestCreateRoom_RejectsBadOwner(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.roomUC.Create(context.Background(), &input.CreateRoomInput{OwnerID: "short"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateRoom_CodeSpaceExhausted(t *testing.T) {
	e := newEnv(t, nil)

	uc := e.roomUC.(*roomUsecase)
	calls := 0
	uc.newCode = func() (string, error) {
		calls++
		return "424242", nil
	}

	_, err := uc.Create(context.Background(), &input.CreateRoomInput{OwnerID: userID(1)})
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	_, err = uc.Create(context.Background(), &input.CreateRoomInput{OwnerID: userID(2)})
	assert.ErrorIs(t, err, apperr.ErrCodeExhausted)
	assert.Equal(t, 1+codeAttempts, calls)
}

func TestCreateRoom_RateLimited(t *testing.T) {
	limiter, _ := newRedisLimiter(t)
	e := newEnv(t, limiter)

	for i := 0; i < 5; i++ {
		_, err := e.roomUC.Create(context.Background(), &input.CreateRoomInput{OwnerID: userID(1), Caller: "10.0.0.1"})
		require.NoError(t, err)
	}

	_, err := e.roomUC.Create(context.Background(), &input.CreateRoomInput{OwnerID: userID(1), Caller: "10.0.0.1"})
	assert.ErrorIs(t, err, apperr.ErrRateLimited)
}

func TestGetRoom_HidesExpired(t *testing.T) {
	e := newEnv(t, nil)
	room := e.createRoom(t, userID(1), 10)

	_, err := e.roomUC.Get(context.Background(), room.Code)
	require.NoError(t, err)

	e.clock.Advance(10 * time.Minute)

	_, err = e.roomUC.Get(context.Background(), room.Code)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPresignUpload(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	room := e.createRoom(t, userID(1), 60)
	e.connect(t, "a", userID(2), room.Code, "Nova")

	_, err := e.roomUC.PresignUpload(ctx, room.Code, userID(3), "cat.png")
	assert.ErrorIs(t, err, apperr.ErrNotInRoom)

	_, err = e.roomUC.PresignUpload(ctx, room.Code, userID(2), "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// хранилище файлов не настроено
	_, err = e.roomUC.PresignUpload(ctx, room.Code, userID(2), "cat.png")
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	_, err = e.lifecycle.Lock(ctx, room.Code)
	require.NoError(t, err)

	_, err = e.roomUC.PresignUpload(ctx, room.Code, userID(2), "cat.png")
	assert.ErrorIs(t, err, apperr.ErrRoomLocked)
}
