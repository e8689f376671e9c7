package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/application/metric"
	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/events"
	"github.com/qrave1/VanishRoom/internal/domain/input"
	"github.com/qrave1/VanishRoom/internal/domain/models"
	"github.com/qrave1/VanishRoom/internal/domain/runtime"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/kv"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/memory"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
)

const (
	maxNicknameLen = 32
	maxAvatarLen   = 2048
)

type PresenceUsecase interface {
	Join(ctx context.Context, connID string, in *input.JoinInput) (*events.JoinedEvent, error)
	// Leave выводит соединение из комнаты. explicit=false для оборванного соединения:
	// присутствие очищается, но комната владельца не блокируется
	Leave(ctx context.Context, connID string, explicit bool) error
	UpdateNickname(ctx context.Context, connID string, in *input.UpdateNicknameInput) (string, error)
	Typing(ctx context.Context, connID string, isTyping bool) error
}

type presenceUsecase struct {
	rooms     store.RoomRepository
	messages  store.MessageRepository
	coord     kv.Store
	registry  memory.ConnectionRegistry
	nicknames NicknameRegistry
	lifecycle LifecycleUsecase

	presenceTTL time.Duration
	now         func() time.Time
}

func NewPresenceUsecase(
	rooms store.RoomRepository,
	messages store.MessageRepository,
	coord kv.Store,
	registry memory.ConnectionRegistry,
	nicknames NicknameRegistry,
	lifecycle LifecycleUsecase,
	presenceTTL time.Duration,
	now func() time.Time,
) PresenceUsecase {
	if now == nil {
		now = time.Now
	}

	return &presenceUsecase{
		rooms:       rooms,
		messages:    messages,
		coord:       coord,
		registry:    registry,
		nicknames:   nicknames,
		lifecycle:   lifecycle,
		presenceTTL: presenceTTL,
		now:         now,
	}
}

func normalizeNickname(nickname, avatar string) (string, string, error) {
	nickname = strings.TrimSpace(sanitizeText(strings.ReplaceAll(nickname, "\n", " ")))
	if nickname == "" {
		return "", "", apperr.Invalid("nickname", "is required")
	}
	if utf8.RuneCountInString(nickname) > maxNicknameLen {
		return "", "", apperr.Invalid("nickname", fmt.Sprintf("must be at most %d characters", maxNicknameLen))
	}
	if len(avatar) > maxAvatarLen {
		return "", "", apperr.Invalid("avatar", "is too long")
	}

	return nickname, avatar, nil
}

func (uc *presenceUsecase) Join(ctx context.Context, connID string, in *input.JoinInput) (*events.JoinedEvent, error) {
	sess, ok := uc.registry.Get(connID)
	if !ok {
		return nil, apperr.ErrNotInRoom
	}

	if !roomCodePattern.MatchString(in.RoomCode) {
		return nil, apperr.Invalid("roomCode", "must be 6 digits")
	}

	nickname, avatar, err := normalizeNickname(in.Nickname, in.Avatar)
	if err != nil {
		return nil, err
	}

	room, err := uc.rooms.GetByCode(ctx, in.RoomCode)
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	switch room.State(uc.now()) {
	case models.RoomEnded, models.RoomExpired:
		return nil, apperr.ErrNotFound
	}

	// комнату уже удаляет авто-удалятель
	if room.IsVanishing() {
		return nil, apperr.ErrNotFound
	}

	if sess.RoomCode != "" && sess.RoomCode != room.Code {
		if err = uc.Leave(ctx, connID, false); err != nil {
			log.Warn().Err(err).Str(constant.ConnID, connID).Msg("leave previous room")
		}
	}

	now := uc.now()
	resolved := uc.nicknames.ResolveAndClaim(ctx, room.Code, nickname, sess.UserID, func(n string) {
		uc.registry.Join(connID, room.Code, n, avatar, now)
	})

	uc.writePresence(ctx, room.Code, sess.UserID, resolved)

	if err = uc.rooms.AddParticipant(ctx, room.Code, sess.UserID); err != nil {
		log.Error().Err(err).Str(constant.RoomCode, room.Code).Msg("add participant")
	}

	isOwner := room.IsOwner(sess.UserID)
	if isOwner && room.IsLocked {
		unlocked, err := uc.lifecycle.Unlock(ctx, room.Code)
		if err != nil {
			log.Error().Err(err).Str(constant.RoomCode, room.Code).Msg("unlock room on owner return")
		} else if unlocked {
			room.IsLocked = false
		}
	}

	uc.registry.Broadcast(room.Code, events.New(events.OutUserJoined, events.UserPresenceEvent{
		UserID:   sess.UserID,
		Nickname: resolved,
	}), connID)

	count := uc.registry.Count(room.Code)
	uc.registry.Broadcast(room.Code, events.New(events.OutUserCount, events.UserCountEvent{Count: count}), "")

	log.Debug().
		Str(constant.RoomCode, room.Code).
		Str(constant.UserID, sess.UserID).
		Str("nickname", resolved).
		Msg("user joined")

	return &events.JoinedEvent{
		RoomCode:  room.Code,
		Nickname:  resolved,
		IsOwner:   isOwner,
		IsLocked:  room.IsLocked,
		ExpiresAt: room.ExpiresAt,
		UserCount: count,
	}, nil
}

// writePresence обновляет KV; ошибки не мешают входу
func (uc *presenceUsecase) writePresence(ctx context.Context, roomCode, userID, nickname string) {
	usersKey := kv.RoomUsersKey(roomCode)
	userKey := kv.UserKey(userID)

	err := uc.coord.SAdd(ctx, usersKey, userID)
	if err == nil {
		err = uc.coord.HSet(ctx, userKey, map[string]string{"nickname": nickname, "roomCode": roomCode})
	}
	if err == nil {
		err = uc.coord.Expire(ctx, usersKey, uc.presenceTTL)
	}
	if err == nil {
		err = uc.coord.Expire(ctx, userKey, uc.presenceTTL)
	}

	if err != nil {
		metric.IncCoordinationDegraded("presence_write")
		log.Warn().Err(err).Str(constant.RoomCode, roomCode).Str(constant.UserID, userID).Msg("write presence")
	}
}

func (uc *presenceUsecase) Leave(ctx context.Context, connID string, explicit bool) error {
	prev, ok := uc.registry.Leave(connID)
	if !ok {
		if explicit {
			return apperr.ErrNotInRoom
		}
		return nil
	}

	stillHere := uc.userInRoom(prev.RoomCode, prev.UserID)

	if !stillHere {
		uc.clearPresence(ctx, prev)

		uc.registry.Broadcast(prev.RoomCode, events.New(events.OutUserLeft, events.UserPresenceEvent{
			UserID:   prev.UserID,
			Nickname: prev.Nickname,
		}), "")
	}

	uc.registry.Broadcast(prev.RoomCode, events.New(events.OutUserCount, events.UserCountEvent{
		Count: uc.registry.Count(prev.RoomCode),
	}), "")

	if !explicit || stillHere {
		return nil
	}

	room, err := uc.rooms.GetByCode(ctx, prev.RoomCode)
	if err != nil {
		return fmt.Errorf("get room on leave: %w", err)
	}

	if room.IsOwner(prev.UserID) && room.State(uc.now()) == models.RoomActive {
		if _, err = uc.lifecycle.Lock(ctx, room.Code); err != nil {
			return fmt.Errorf("lock room on owner leave: %w", err)
		}
	}

	return nil
}

func (uc *presenceUsecase) userInRoom(roomCode, userID string) bool {
	for _, s := range uc.registry.InRoom(roomCode) {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

func (uc *presenceUsecase) clearPresence(ctx context.Context, sess runtime.Session) {
	err := uc.coord.SRem(ctx, kv.RoomUsersKey(sess.RoomCode), sess.UserID)
	if err == nil {
		err = uc.coord.Del(ctx, kv.UserKey(sess.UserID))
	}

	if err != nil {
		metric.IncCoordinationDegraded("presence_write")
		log.Warn().Err(err).Str(constant.RoomCode, sess.RoomCode).Str(constant.UserID, sess.UserID).Msg("clear presence")
	}
}

func (uc *presenceUsecase) UpdateNickname(ctx context.Context, connID string, in *input.UpdateNicknameInput) (string, error) {
	sess, ok := uc.registry.Get(connID)
	if !ok || sess.RoomCode == "" {
		return "", apperr.ErrNotInRoom
	}

	nickname, avatar, err := normalizeNickname(in.Nickname, in.Avatar)
	if err != nil {
		return "", err
	}

	resolved := uc.nicknames.ResolveAndClaim(ctx, sess.RoomCode, nickname, sess.UserID, func(n string) {
		uc.registry.SetNickname(connID, n, avatar)
	})

	uc.writePresence(ctx, sess.RoomCode, sess.UserID, resolved)

	n, err := uc.messages.RenameAuthor(ctx, sess.RoomCode, sess.UserID, resolved, avatar)
	if err != nil {
		log.Error().Err(err).Str(constant.RoomCode, sess.RoomCode).Str(constant.UserID, sess.UserID).Msg("rename message author")
	}

	uc.registry.Broadcast(sess.RoomCode, events.New(events.OutNicknameChanged, events.NicknameChangedEvent{
		UserID:      sess.UserID,
		OldNickname: sess.Nickname,
		Nickname:    resolved,
		Avatar:      avatar,
	}), "")

	log.Debug().
		Str(constant.RoomCode, sess.RoomCode).
		Str(constant.UserID, sess.UserID).
		Int64(constant.Count, n).
		Msg("nickname changed")

	return resolved, nil
}

func (uc *presenceUsecase) Typing(_ context.Context, connID string, isTyping bool) error {
	sess, ok := uc.registry.Get(connID)
	if !ok || sess.RoomCode == "" {
		return apperr.ErrNotInRoom
	}

	uc.registry.Broadcast(sess.RoomCode, events.New(events.OutTyping, events.TypingEvent{
		UserID:   sess.UserID,
		Nickname: sess.Nickname,
		IsTyping: isTyping,
	}), connID)

	return nil
}
