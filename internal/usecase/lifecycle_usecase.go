package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/application/metric"
	"github.com/qrave1/VanishRoom/internal/application/outbox"
	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/events"
	"github.com/qrave1/VanishRoom/internal/domain/models"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/filestore"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/kv"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/memory"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
)

const (
	ReasonVanish  = "vanish"
	ReasonAuto    = "auto_vanish"
	ReasonEnded   = "ended"
	ReasonExpired = "expired"
)

// DeleteResult - сколько чего удалено. Нули означают, что комната уже была удалена
type DeleteResult struct {
	Files        int   `json:"files"`
	Messages     int64 `json:"messages"`
	Rooms        int64 `json:"rooms"`
	Disconnected int   `json:"disconnected"`
}

type LifecycleUsecase interface {
	Lock(ctx context.Context, roomCode string) (bool, error)
	Unlock(ctx context.Context, roomCode string) (bool, error)

	Vanish(ctx context.Context, roomCode, adminID string) (*DeleteResult, error)
	End(ctx context.Context, roomCode, ownerID string) (*DeleteResult, error)
	// AutoVanish удаляет комнату, только если она всё ещё заблокирована дольше lockGrace.
	// Разблокированная после выборки комната не трогается, результат нулевой
	AutoVanish(ctx context.Context, room *models.Room) (*DeleteResult, error)
	PurgeExpired(ctx context.Context, limit int) (int, error)
}

type lifecycleUsecase struct {
	rooms    store.RoomRepository
	messages store.MessageRepository
	files    filestore.Store
	coord    kv.Store
	registry memory.ConnectionRegistry
	effects  outbox.Publisher
	limiter  RateLimiter

	lockGrace time.Duration
	now       func() time.Time
}

func NewLifecycleUsecase(
	rooms store.RoomRepository,
	messages store.MessageRepository,
	files filestore.Store,
	coord kv.Store,
	registry memory.ConnectionRegistry,
	effects outbox.Publisher,
	limiter RateLimiter,
	lockGrace time.Duration,
	now func() time.Time,
) LifecycleUsecase {
	if now == nil {
		now = time.Now
	}

	return &lifecycleUsecase{
		rooms:     rooms,
		messages:  messages,
		files:     files,
		coord:     coord,
		registry:  registry,
		effects:   effects,
		limiter:   limiter,
		lockGrace: lockGrace,
		now:       now,
	}
}

func lockNotice(grace time.Duration) string {
	window := grace.String()
	if grace%time.Hour == 0 {
		window = fmt.Sprintf("%d hours", int(grace.Hours()))
	}

	return "Admin has left the room. The room is now read-only and will vanish in " + window + "."
}

func (uc *lifecycleUsecase) Lock(ctx context.Context, roomCode string) (bool, error) {
	now := uc.now()

	changed, err := uc.rooms.Lock(ctx, roomCode, now)
	if err != nil {
		return false, fmt.Errorf("lock room: %w", err)
	}

	if !changed {
		return false, nil
	}

	room, err := uc.rooms.GetByCode(ctx, roomCode)
	if err != nil {
		return true, fmt.Errorf("get locked room: %w", err)
	}

	notice := models.NewSystemMessage(uuid.NewString(), room, lockNotice(uc.lockGrace), now)
	if err = uc.messages.Create(ctx, notice); err != nil {
		// комната уже заблокирована, уведомление лишь информирует
		log.Error().Err(err).Str(constant.RoomCode, roomCode).Msg("store lock notice")
	} else {
		uc.registry.Broadcast(roomCode, events.New(events.OutNewMessage, notice), "")
	}

	uc.registry.Broadcast(roomCode, events.New(events.OutRoomLocked, events.RoomLockedEvent{LockedAt: now}), "")
	uc.effects.NotifyInsight(models.InsightRoomLocked, roomCode, nil)

	log.Info().Str(constant.RoomCode, roomCode).Msg("room locked")

	return true, nil
}

func (uc *lifecycleUsecase) Unlock(ctx context.Context, roomCode string) (bool, error) {
	changed, err := uc.rooms.Unlock(ctx, roomCode)
	if err != nil {
		return false, fmt.Errorf("unlock room: %w", err)
	}

	if changed {
		uc.registry.Broadcast(roomCode, events.New(events.OutRoomUnlocked, nil), "")
		uc.effects.NotifyInsight(models.InsightRoomUnlocked, roomCode, nil)

		log.Info().Str(constant.RoomCode, roomCode).Msg("room unlocked")
	}

	return changed, nil
}

func (uc *lifecycleUsecase) Vanish(ctx context.Context, roomCode, adminID string) (*DeleteResult, error) {
	if !uc.limiter.Allow(ctx, ActionAdmin, adminID) {
		return nil, apperr.ErrRateLimited
	}

	room, err := uc.rooms.GetByCode(ctx, roomCode)
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	prior := room.State(uc.now())

	res, err := uc.vanish(ctx, room, "admin", "This room has been vanished by an administrator.")

	uc.effects.RecordAudit(models.AuditRecord{
		AdminID: adminID,
		Action:  models.AuditActionVanish,
		Target:  roomCode,
		Success: err == nil,
		Metadata: map[string]any{
			"priorState":   string(prior),
			"messages":     res.Messages,
			"files":        res.Files,
			"disconnected": res.Disconnected,
		},
	})

	if err != nil {
		return nil, err
	}

	metric.IncRoomsDeleted(ReasonVanish, int(res.Rooms))
	uc.effects.NotifyInsight(models.InsightRoomVanished, roomCode, map[string]any{"messages": res.Messages})

	log.Info().
		Str(constant.RoomCode, roomCode).
		Str(constant.AdminID, adminID).
		Int64(constant.Count, res.Messages).
		Msg("room vanished by admin")

	return res, nil
}

func (uc *lifecycleUsecase) AutoVanish(ctx context.Context, room *models.Room) (*DeleteResult, error) {
	now := uc.now()

	claimed, err := uc.rooms.ClaimForVanish(ctx, room.Code, now.Add(-uc.lockGrace), now)
	if err != nil {
		return nil, fmt.Errorf("claim room for vanish: %w", err)
	}

	if !claimed {
		log.Info().Str(constant.RoomCode, room.Code).Msg("auto-vanish skipped: room no longer locked past grace")
		return &DeleteResult{}, nil
	}

	res, err := uc.vanish(ctx, room, "system", "This room has vanished.")
	if err != nil {
		return nil, err
	}

	if res.Rooms > 0 {
		metric.IncRoomsDeleted(ReasonAuto, int(res.Rooms))
		uc.effects.NotifyInsight(models.InsightAutoVanished, room.Code, map[string]any{"messages": res.Messages})
	}

	return res, nil
}

// vanish оповещает комнату, отключает участников и удаляет всё её содержимое
func (uc *lifecycleUsecase) vanish(ctx context.Context, room *models.Room, by, notice string) (*DeleteResult, error) {
	sys := models.NewSystemMessage(uuid.NewString(), room, notice, uc.now())

	uc.registry.Broadcast(room.Code, events.New(events.OutNewMessage, sys), "")
	uc.registry.Broadcast(room.Code, events.New(events.OutRoomVanished, events.RoomVanishedEvent{
		Reason:     notice,
		VanishedBy: by,
	}), "")

	disconnected := uc.registry.DisconnectRoom(room.Code)

	res, err := uc.deleteRoom(ctx, room.Code)
	res.Disconnected = disconnected

	return res, err
}

func (uc *lifecycleUsecase) End(ctx context.Context, roomCode, ownerID string) (*DeleteResult, error) {
	room, err := uc.rooms.GetByCode(ctx, roomCode)
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	if !room.IsOwner(ownerID) {
		log.Warn().
			Str(constant.RoomCode, roomCode).
			Str(constant.ClaimedID, ownerID).
			Str(constant.OwnerID, room.OwnerID).
			Msg("end room rejected: owner mismatch")

		return nil, apperr.ErrForbidden
	}

	now := uc.now()
	if err = uc.rooms.MarkEnded(ctx, roomCode, ownerID, now); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("mark room ended: %w", err)
	}

	uc.registry.Broadcast(roomCode, events.New(events.OutRoomDestroyed, events.RoomDestroyedEvent{
		Reason: "The room was ended by its creator.",
	}), "")

	disconnected := uc.registry.DisconnectRoom(roomCode)

	res, err := uc.deleteRoom(ctx, roomCode)
	res.Disconnected = disconnected
	if err != nil {
		return nil, err
	}

	metric.IncRoomsDeleted(ReasonEnded, int(res.Rooms))
	uc.effects.NotifyInsight(models.InsightRoomEnded, roomCode, map[string]any{"messages": res.Messages})

	log.Info().Str(constant.RoomCode, roomCode).Msg("room ended by owner")

	return res, nil
}

// deleteRoom - общий идемпотентный путь удаления: файлы, сообщения, комната, ключи KV.
// Запись комнаты удаляется после содержимого, чтобы прерванное удаление можно было повторить
func (uc *lifecycleUsecase) deleteRoom(ctx context.Context, roomCode string) (*DeleteResult, error) {
	res := &DeleteResult{}

	files, err := uc.files.DeleteRoom(ctx, roomCode)
	if err != nil {
		log.Warn().Err(err).Str(constant.RoomCode, roomCode).Msg("purge room files")
	}
	res.Files = files

	if res.Messages, err = uc.messages.DeleteByRoom(ctx, roomCode); err != nil {
		return res, fmt.Errorf("delete room messages: %w", err)
	}

	if res.Rooms, err = uc.rooms.Delete(ctx, roomCode); err != nil {
		return res, fmt.Errorf("delete room: %w", err)
	}

	uc.purgeCoordination(ctx, roomCode)

	return res, nil
}

func (uc *lifecycleUsecase) purgeCoordination(ctx context.Context, roomCode string) {
	userIDs, err := uc.coord.SMembers(ctx, kv.RoomUsersKey(roomCode))
	if err != nil {
		metric.IncCoordinationDegraded("room_cleanup")
		log.Warn().Err(err).Str(constant.RoomCode, roomCode).Msg("cleanup room presence")
		return
	}

	keys := make([]string, 0, len(userIDs)+1)
	for _, id := range userIDs {
		values, err := uc.coord.HGetAll(ctx, kv.UserKey(id))
		if err == nil && values["roomCode"] == roomCode {
			keys = append(keys, kv.UserKey(id))
		}
	}

	roomKeys, err := uc.coord.Scan(ctx, kv.RoomPattern(roomCode))
	if err != nil {
		log.Warn().Err(err).Str(constant.RoomCode, roomCode).Msg("scan room keys")
	}
	keys = append(keys, roomKeys...)

	if err = uc.coord.Del(ctx, keys...); err != nil {
		metric.IncCoordinationDegraded("room_cleanup")
		log.Warn().Err(err).Str(constant.RoomCode, roomCode).Msg("delete room keys")
	}
}

func (uc *lifecycleUsecase) PurgeExpired(ctx context.Context, limit int) (int, error) {
	rooms, err := uc.rooms.FindExpired(ctx, uc.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("find expired rooms: %w", err)
	}

	if len(rooms) == 0 {
		return 0, nil
	}

	codes := make([]string, 0, len(rooms))
	for _, room := range rooms {
		codes = append(codes, room.Code)

		uc.registry.Broadcast(room.Code, events.New(events.OutRoomDestroyed, events.RoomDestroyedEvent{
			Reason: "The room has expired.",
		}), "")
		uc.registry.DisconnectRoom(room.Code)

		if _, err = uc.files.DeleteRoom(ctx, room.Code); err != nil {
			log.Warn().Err(err).Str(constant.RoomCode, room.Code).Msg("purge expired room files")
		}
	}

	msgs, err := uc.messages.DeleteByRooms(ctx, codes)
	if err != nil {
		return 0, fmt.Errorf("delete expired messages: %w", err)
	}

	deleted, err := uc.rooms.DeleteByCodes(ctx, codes)
	if err != nil {
		return 0, fmt.Errorf("delete expired rooms: %w", err)
	}

	for _, code := range codes {
		uc.purgeCoordination(ctx, code)
	}

	metric.IncRoomsDeleted(ReasonExpired, int(deleted))
	uc.effects.NotifyInsight(models.InsightRoomsExpired, "", map[string]any{
		"rooms":    deleted,
		"messages": msgs,
	})

	return int(deleted), nil
}
