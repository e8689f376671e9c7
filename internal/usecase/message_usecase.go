package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/config"
	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/application/metric"
	"github.com/qrave1/VanishRoom/internal/application/outbox"
	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/events"
	"github.com/qrave1/VanishRoom/internal/domain/input"
	"github.com/qrave1/VanishRoom/internal/domain/models"
	"github.com/qrave1/VanishRoom/internal/domain/runtime"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/memory"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
)

const (
	maxHistoryLimit     = 200
	defaultHistoryLimit = 50
	maxEmojiLen         = 16
	maxFileNameLen      = 255
)

type MessageUsecase interface {
	Send(ctx context.Context, connID string, in *input.SendMessageInput) (*models.Message, error)
	Edit(ctx context.Context, connID string, in *input.EditMessageInput) (*models.Message, error)
	Delete(ctx context.Context, connID string, in *input.MessageRefInput) error
	Pin(ctx context.Context, connID string, in *input.MessageRefInput) error
	Unpin(ctx context.Context, connID string, in *input.MessageRefInput) error
	React(ctx context.Context, connID string, in *input.ReactInput) (*models.Message, error)
	History(ctx context.Context, roomCode string, before time.Time, limit int) ([]*models.Message, error)
}

type messageUsecase struct {
	rooms    store.RoomRepository
	messages store.MessageRepository
	registry memory.ConnectionRegistry
	limiter  RateLimiter
	effects  outbox.Publisher
	pins     *roomLocks
	senders  *roomLocks

	limits config.LimitsConfig
	now    func() time.Time
}

func NewMessageUsecase(
	rooms store.RoomRepository,
	messages store.MessageRepository,
	registry memory.ConnectionRegistry,
	limiter RateLimiter,
	effects outbox.Publisher,
	limits config.LimitsConfig,
	now func() time.Time,
) MessageUsecase {
	if now == nil {
		now = time.Now
	}

	return &messageUsecase{
		rooms:    rooms,
		messages: messages,
		registry: registry,
		limiter:  limiter,
		effects:  effects,
		pins:     newRoomLocks(),
		senders:  newRoomLocks(),
		limits:   limits,
		now:      now,
	}
}

// member проверяет, что соединение действительно зарегистрировано в комнате
func (uc *messageUsecase) member(ctx context.Context, connID, roomCode string) (runtime.Session, *models.Room, error) {
	sess, ok := uc.registry.Get(connID)
	if !ok || !sess.InRoom(roomCode) {
		return runtime.Session{}, nil, apperr.ErrNotInRoom
	}

	room, err := uc.rooms.GetByCode(ctx, roomCode)
	if err != nil {
		return runtime.Session{}, nil, fmt.Errorf("get room: %w", err)
	}

	switch room.State(uc.now()) {
	case models.RoomEnded, models.RoomExpired:
		return runtime.Session{}, nil, apperr.ErrNotFound
	}

	return sess, room, nil
}

func (uc *messageUsecase) Send(ctx context.Context, connID string, in *input.SendMessageInput) (*models.Message, error) {
	sess, room, err := uc.member(ctx, connID, in.RoomCode)
	if err != nil {
		return nil, err
	}

	if room.IsLocked {
		return nil, apperr.ErrRoomLocked
	}

	if in.Type == "" {
		in.Type = models.MessageText
	}
	if !in.Type.Valid() {
		return nil, apperr.Invalid("type", "must be text, file or image")
	}

	dataURL := isDataURL(in.Content)
	content := in.Content
	if !dataURL {
		content = sanitizeText(content)
	}

	if err = validatePayload(in.Type, content, in.FileMeta); err != nil {
		return nil, err
	}

	action := ActionMessage
	if in.Type.IsFile() {
		action = ActionFile
	}
	if !uc.limiter.Allow(ctx, action, sess.UserID) {
		log.Debug().Str(constant.UserID, sess.UserID).Str(constant.Action, string(action)).Msg("send rate limited")
		return nil, apperr.ErrRateLimited
	}

	if dataURL {
		if len(content) > uc.limits.MaxDataURLBytes {
			return nil, apperr.ErrTooLarge
		}
	} else if utf8.RuneCountInString(content) > uc.limits.MaxTextLength {
		return nil, apperr.ErrTooLarge
	}

	// две вкладки одного пользователя не должны обе пройти проверку дублей
	unlock := uc.senders.Lock(room.Code + "/" + sess.UserID)
	defer unlock()

	now := uc.now()

	if dup, err := uc.findDuplicate(ctx, room.Code, sess.UserID, in.Type, content, in.FileMeta, now); err != nil {
		return nil, err
	} else if dup != nil {
		metric.IncDedupHits()
		return dup, nil
	}

	msg := &models.Message{
		ID:        messageID(in.ClientID),
		RoomCode:  room.Code,
		UserID:    sess.UserID,
		Nickname:  sess.Nickname,
		Avatar:    sess.Avatar,
		Content:   content,
		Type:      in.Type,
		FileMeta:  in.FileMeta,
		Reactions: map[string][]string{},
		ReplyTo:   in.ReplyTo,
		CreatedAt: now,
		ExpiresAt: room.ExpiresAt,
	}

	if err = uc.messages.Create(ctx, msg); err != nil {
		// повтор с тем же клиентским id возвращает уже сохранённое сообщение
		if errors.Is(err, apperr.ErrDuplicate) {
			if existing, getErr := uc.messages.GetByID(ctx, room.Code, msg.ID); getErr == nil && existing.UserID == sess.UserID {
				metric.IncDedupHits()
				return existing, nil
			}
			return nil, apperr.Invalid("id", "already used")
		}
		return nil, fmt.Errorf("store message: %w", err)
	}

	metric.IncMessages(string(msg.Type))
	uc.registry.Broadcast(room.Code, events.New(events.OutNewMessage, msg), "")
	uc.effects.NotifyInsight(models.InsightMessageStored, room.Code, map[string]any{"type": string(msg.Type)})

	return msg, nil
}

func messageID(clientID string) string {
	if clientID != "" && runtime.ValidUserID(clientID) {
		return clientID
	}
	return uuid.NewString()
}

func validatePayload(t models.MessageType, content string, meta *models.FileMeta) error {
	if t.IsFile() {
		if meta == nil {
			return apperr.Invalid("fileMeta", "is required for files")
		}
		if strings.TrimSpace(meta.Name) == "" {
			return apperr.Invalid("fileMeta.name", "is required")
		}
		if utf8.RuneCountInString(meta.Name) > maxFileNameLen {
			return apperr.Invalid("fileMeta.name", "is too long")
		}
		if meta.Size < 0 {
			return apperr.Invalid("fileMeta.size", "must not be negative")
		}
		if meta.URL == "" && content == "" {
			return apperr.Invalid("fileMeta.url", "is required")
		}
		return nil
	}

	if strings.TrimSpace(content) == "" {
		return apperr.Invalid("content", "is required")
	}

	return nil
}

// findDuplicate - эвристическое окно идемпотентности для повторных отправок без подтверждения
func (uc *messageUsecase) findDuplicate(
	ctx context.Context,
	roomCode, userID string,
	t models.MessageType,
	content string,
	meta *models.FileMeta,
	now time.Time,
) (*models.Message, error) {
	q := store.DuplicateQuery{
		RoomCode: roomCode,
		UserID:   userID,
		Content:  content,
		Since:    now.Add(-uc.limits.TextDedupWindow),
	}

	if t.IsFile() {
		q.File = true
		q.FileName = meta.Name
		q.Content = ""
		q.Since = now.Add(-uc.limits.FileDedupWindow)
	}

	dup, err := uc.messages.FindRecentDuplicate(ctx, q)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find duplicate: %w", err)
	}

	return dup, nil
}

func (uc *messageUsecase) Edit(ctx context.Context, connID string, in *input.EditMessageInput) (*models.Message, error) {
	sess, room, err := uc.member(ctx, connID, in.RoomCode)
	if err != nil {
		return nil, err
	}

	msg, err := uc.messages.GetByID(ctx, room.Code, in.MessageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	if msg.UserID != sess.UserID {
		log.Warn().
			Str(constant.RoomCode, room.Code).
			Str(constant.MessageID, msg.ID).
			Str(constant.ClaimedID, sess.UserID).
			Str(constant.OwnerID, msg.UserID).
			Msg("edit rejected: not the author")

		return nil, apperr.ErrForbidden
	}

	if msg.Type != models.MessageText || msg.DeletedByAdmin {
		return nil, apperr.Invalid("messageId", "message cannot be edited")
	}

	content := sanitizeText(in.Content)
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Invalid("content", "is required")
	}
	if utf8.RuneCountInString(content) > uc.limits.MaxTextLength {
		return nil, apperr.ErrTooLarge
	}

	updated, err := uc.messages.UpdateContent(ctx, room.Code, msg.ID, content, uc.now())
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}

	uc.registry.Broadcast(room.Code, events.New(events.OutMessageEdited, updated), "")

	return updated, nil
}

func (uc *messageUsecase) Delete(ctx context.Context, connID string, in *input.MessageRefInput) error {
	sess, room, err := uc.member(ctx, connID, in.RoomCode)
	if err != nil {
		return err
	}

	msg, err := uc.messages.GetByID(ctx, room.Code, in.MessageID)
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}

	deletedByAdmin := false

	switch {
	case msg.UserID == sess.UserID:
		if _, err = uc.messages.Delete(ctx, room.Code, msg.ID); err != nil {
			return fmt.Errorf("delete message: %w", err)
		}

	case room.IsOwner(sess.UserID):
		if _, err = uc.messages.SoftDelete(ctx, room.Code, msg.ID, models.RemovedByOwnerPlaceholder); err != nil {
			return fmt.Errorf("soft delete message: %w", err)
		}
		deletedByAdmin = true

	default:
		log.Warn().
			Str(constant.RoomCode, room.Code).
			Str(constant.MessageID, msg.ID).
			Str(constant.ClaimedID, sess.UserID).
			Str(constant.OwnerID, room.OwnerID).
			Msg("delete rejected: neither author nor room owner")

		return apperr.ErrForbidden
	}

	uc.registry.Broadcast(room.Code, events.New(events.OutMessageDeleted, events.MessageDeletedEvent{
		MessageID:      msg.ID,
		DeletedByAdmin: deletedByAdmin,
	}), "")

	return nil
}

func (uc *messageUsecase) ownerOnly(ctx context.Context, connID, roomCode, op string) (*models.Room, error) {
	sess, room, err := uc.member(ctx, connID, roomCode)
	if err != nil {
		return nil, err
	}

	if !room.IsOwner(sess.UserID) {
		log.Warn().
			Str(constant.RoomCode, room.Code).
			Str(constant.ClaimedID, sess.UserID).
			Str(constant.OwnerID, room.OwnerID).
			Msg(op + " rejected: not the room owner")

		return nil, apperr.ErrForbidden
	}

	return room, nil
}

func (uc *messageUsecase) Pin(ctx context.Context, connID string, in *input.MessageRefInput) error {
	room, err := uc.ownerOnly(ctx, connID, in.RoomCode, "pin")
	if err != nil {
		return err
	}

	unlock := uc.pins.Lock(room.Code)
	defer unlock()

	unpinned, err := uc.messages.Pin(ctx, room.Code, in.MessageID)
	if err != nil {
		return fmt.Errorf("pin message: %w", err)
	}

	for _, id := range unpinned {
		uc.registry.Broadcast(room.Code, events.New(events.OutMessageUnpinned, events.MessagePinEvent{MessageID: id}), "")
	}
	uc.registry.Broadcast(room.Code, events.New(events.OutMessagePinned, events.MessagePinEvent{MessageID: in.MessageID}), "")

	return nil
}

func (uc *messageUsecase) Unpin(ctx context.Context, connID string, in *input.MessageRefInput) error {
	room, err := uc.ownerOnly(ctx, connID, in.RoomCode, "unpin")
	if err != nil {
		return err
	}

	unlock := uc.pins.Lock(room.Code)
	defer unlock()

	changed, err := uc.messages.Unpin(ctx, room.Code, in.MessageID)
	if err != nil {
		return fmt.Errorf("unpin message: %w", err)
	}

	if changed {
		uc.registry.Broadcast(room.Code, events.New(events.OutMessageUnpinned, events.MessagePinEvent{MessageID: in.MessageID}), "")
	}

	return nil
}

func (uc *messageUsecase) React(ctx context.Context, connID string, in *input.ReactInput) (*models.Message, error) {
	sess, room, err := uc.member(ctx, connID, in.RoomCode)
	if err != nil {
		return nil, err
	}

	if in.Emoji == "" || len(in.Emoji) > maxEmojiLen || strings.ContainsAny(in.Emoji, ".$ \n") {
		return nil, apperr.Invalid("emoji", "unsupported value")
	}

	msg, err := uc.messages.GetByID(ctx, room.Code, in.MessageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	eventType := events.OutReactionAdded
	if msg.HasReaction(in.Emoji, sess.UserID) {
		eventType = events.OutReactionRemoved
		msg, err = uc.messages.RemoveReaction(ctx, room.Code, msg.ID, in.Emoji, sess.UserID)
	} else {
		msg, err = uc.messages.AddReaction(ctx, room.Code, msg.ID, in.Emoji, sess.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("toggle reaction: %w", err)
	}

	uc.registry.Broadcast(room.Code, events.New(eventType, events.ReactionEvent{
		MessageID: msg.ID,
		Emoji:     in.Emoji,
		UserID:    sess.UserID,
	}), "")

	return msg, nil
}

func (uc *messageUsecase) History(ctx context.Context, roomCode string, before time.Time, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	room, err := uc.rooms.GetByCode(ctx, roomCode)
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	switch room.State(uc.now()) {
	case models.RoomEnded, models.RoomExpired:
		return nil, apperr.ErrNotFound
	}

	msgs, err := uc.messages.ListByRoom(ctx, room.Code, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return msgs, nil
}
