// Package storetest содержит общие проверки для реализаций store.RoomRepository и store.MessageRepository
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/models"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
)

// дата в будущем, чтобы TTL индекс монги не удалял тестовые документы
var base = time.Date(2099, 3, 1, 10, 0, 0, 0, time.UTC)

func RunRoomRepository(t *testing.T, newRepo func(t *testing.T) store.RoomRepository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)

		room := models.NewRoom("100001", "tok", "owner-0001", time.Hour, base)
		room.Slug = "team-100001"
		require.NoError(t, repo.Create(ctx, room))

		got, err := repo.GetByCode(ctx, "100001")
		require.NoError(t, err)
		assert.Equal(t, "owner-0001", got.OwnerID)

		got, err = repo.GetBySlug(ctx, "team-100001")
		require.NoError(t, err)
		assert.Equal(t, "100001", got.Code)

		err = repo.Create(ctx, models.NewRoom("100001", "tok2", "owner-0002", time.Hour, base))
		assert.ErrorIs(t, err, apperr.ErrDuplicate)

		_, err = repo.GetByCode(ctx, "999999")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("lock is idempotent", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, models.NewRoom("100002", "tok", "owner-0001", time.Hour, base)))

		changed, err := repo.Lock(ctx, "100002", base)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = repo.Lock(ctx, "100002", base.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, changed)

		got, err := repo.GetByCode(ctx, "100002")
		require.NoError(t, err)
		require.NotNil(t, got.LockedAt)
		assert.True(t, got.LockedAt.Equal(base))

		_, err = repo.Lock(ctx, "404404", base)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		changed, err = repo.Unlock(ctx, "100002")
		require.NoError(t, err)
		assert.True(t, changed)

		got, err = repo.GetByCode(ctx, "100002")
		require.NoError(t, err)
		assert.False(t, got.IsLocked)
		assert.Nil(t, got.LockedAt)
	})

	t.Run("claim for vanish", func(t *testing.T) {
		repo := newRepo(t)
		cutoff := base.Add(time.Hour)

		for _, code := range []string{"100004", "100005", "100006"} {
			require.NoError(t, repo.Create(ctx, models.NewRoom(code, "tok", "owner-0001", 72*time.Hour, base)))
		}

		_, err := repo.Lock(ctx, "100004", base)
		require.NoError(t, err)
		_, err = repo.Lock(ctx, "100005", cutoff.Add(time.Minute))
		require.NoError(t, err)

		claimed, err := repo.ClaimForVanish(ctx, "100004", cutoff, cutoff)
		require.NoError(t, err)
		assert.True(t, claimed)

		// повторный захват из восстановления
		claimed, err = repo.ClaimForVanish(ctx, "100004", cutoff, cutoff.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, claimed)

		got, err := repo.GetByCode(ctx, "100004")
		require.NoError(t, err)
		require.NotNil(t, got.VanishingAt)
		assert.True(t, got.VanishingAt.Equal(cutoff))

		changed, err := repo.Unlock(ctx, "100004")
		require.NoError(t, err)
		assert.False(t, changed, "claimed room must stay locked")

		claimed, err = repo.ClaimForVanish(ctx, "100005", cutoff, cutoff)
		require.NoError(t, err)
		assert.False(t, claimed, "locked after cutoff")

		claimed, err = repo.ClaimForVanish(ctx, "100006", cutoff, cutoff)
		require.NoError(t, err)
		assert.False(t, claimed, "never locked")

		claimed, err = repo.ClaimForVanish(ctx, "404404", cutoff, cutoff)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, models.NewRoom("100003", "tok", "owner-0001", time.Hour, base)))

		n, err := repo.Delete(ctx, "100003")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.Delete(ctx, "100003")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("locked and expired queries are disjoint", func(t *testing.T) {
		repo := newRepo(t)
		now := base.Add(48 * time.Hour)

		alive := models.NewRoom("200001", "tok", "o", 72*time.Hour, base)
		expired := models.NewRoom("200002", "tok", "o", time.Hour, base)
		fresh := models.NewRoom("200003", "tok", "o", 72*time.Hour, base)
		for _, r := range []*models.Room{alive, expired, fresh} {
			require.NoError(t, repo.Create(ctx, r))
		}

		_, err := repo.Lock(ctx, "200001", base)
		require.NoError(t, err)
		_, err = repo.Lock(ctx, "200002", base)
		require.NoError(t, err)
		_, err = repo.Lock(ctx, "200003", now.Add(-time.Hour))
		require.NoError(t, err)

		locked, err := repo.FindLockedBefore(ctx, store.LockedQuery{LockedBefore: now.Add(-24 * time.Hour), AliveAt: now, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"200001"}, codes(locked))

		locked, err = repo.FindLockedBefore(ctx, store.LockedQuery{LockedBefore: now.Add(-24 * time.Hour), Limit: 10})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"200001", "200002"}, codes(locked))

		exp, err := repo.FindExpired(ctx, now, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"200002"}, codes(exp))

		n, err := repo.DeleteByCodes(ctx, []string{"200002", "200404"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func RunMessageRepository(t *testing.T, newRepo func(t *testing.T) store.MessageRepository) {
	ctx := context.Background()

	msg := func(id, user, nick, content string, at time.Time) *models.Message {
		return &models.Message{
			ID:        id,
			RoomCode:  "300001",
			UserID:    user,
			Nickname:  nick,
			Content:   content,
			Type:      models.MessageText,
			Reactions: map[string][]string{},
			CreatedAt: at,
			ExpiresAt: at.Add(time.Hour),
		}
	}

	t.Run("duplicate window", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, msg("m1", "u1", "Nova", "hello", base)))

		got, err := repo.FindRecentDuplicate(ctx, store.DuplicateQuery{
			RoomCode: "300001", UserID: "u1", Content: "hello", Since: base.Add(-5 * time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, "m1", got.ID)

		_, err = repo.FindRecentDuplicate(ctx, store.DuplicateQuery{
			RoomCode: "300001", UserID: "u1", Content: "hello", Since: base.Add(time.Second),
		})
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		file := msg("m2", "u1", "Nova", "", base)
		file.Type = models.MessageFile
		file.FileMeta = &models.FileMeta{Name: "a.png", Size: 10}
		require.NoError(t, repo.Create(ctx, file))

		got, err = repo.FindRecentDuplicate(ctx, store.DuplicateQuery{
			RoomCode: "300001", UserID: "u1", File: true, FileName: "a.png", Since: base.Add(-10 * time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, "m2", got.ID)
	})

	t.Run("distinct nicknames", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, msg("m1", "u1", "Nova", "a", base)))
		require.NoError(t, repo.Create(ctx, msg("m2", "u2", "Orion", "b", base)))
		require.NoError(t, repo.Create(ctx, msg("m3", "u2", "Orion", "c", base)))

		names, err := repo.DistinctNicknames(ctx, "300001", "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"Orion"}, names)
	})

	t.Run("pin is exclusive", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, msg("a", "u1", "Nova", "a", base)))
		require.NoError(t, repo.Create(ctx, msg("b", "u1", "Nova", "b", base.Add(time.Second))))

		unpinned, err := repo.Pin(ctx, "300001", "a")
		require.NoError(t, err)
		assert.Empty(t, unpinned)

		unpinned, err = repo.Pin(ctx, "300001", "b")
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, unpinned)

		list, err := repo.ListByRoom(ctx, "300001", time.Time{}, 10)
		require.NoError(t, err)
		pinned := 0
		for _, m := range list {
			if m.IsPinned {
				pinned++
				assert.Equal(t, "b", m.ID)
			}
		}
		assert.Equal(t, 1, pinned)

		changed, err := repo.Unpin(ctx, "300001", "b")
		require.NoError(t, err)
		assert.True(t, changed)
	})

	t.Run("reactions and edits", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, msg("m1", "u1", "Nova", "hi", base)))

		got, err := repo.AddReaction(ctx, "300001", "m1", "👍", "u2")
		require.NoError(t, err)
		assert.True(t, got.HasReaction("👍", "u2"))

		got, err = repo.RemoveReaction(ctx, "300001", "m1", "👍", "u2")
		require.NoError(t, err)
		assert.False(t, got.HasReaction("👍", "u2"))

		got, err = repo.UpdateContent(ctx, "300001", "m1", "hi there", base.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, "hi there", got.Content)
		require.NotNil(t, got.EditedAt)

		got, err = repo.SoftDelete(ctx, "300001", "m1", models.RemovedByOwnerPlaceholder)
		require.NoError(t, err)
		assert.True(t, got.DeletedByAdmin)
		assert.Equal(t, models.RemovedByOwnerPlaceholder, got.Content)
		assert.Nil(t, got.FileMeta)
	})

	t.Run("rename and delete", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, msg("m1", "u1", "Nova", "a", base)))
		require.NoError(t, repo.Create(ctx, msg("m2", "u1", "Nova", "b", base)))

		n, err := repo.RenameAuthor(ctx, "300001", "u1", "Vega", "")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		got, err := repo.GetByID(ctx, "300001", "m2")
		require.NoError(t, err)
		assert.Equal(t, "Vega", got.Nickname)

		n, err = repo.Delete(ctx, "300001", "m1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.DeleteByRoom(ctx, "300001")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.DeleteByRoom(ctx, "300001")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func codes(rooms []*models.Room) []string {
	out := make([]string, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Code)
	}
	return out
}
