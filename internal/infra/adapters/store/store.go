package store

import (
	"context"
	"time"

	"github.com/qrave1/VanishRoom/internal/domain/models"
)

// RoomRepository - долговременное хранилище комнат.
// Отсутствующие записи возвращают apperr.ErrNotFound, повторный код - apperr.ErrDuplicate
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByCode(ctx context.Context, code string) (*models.Room, error)
	GetBySlug(ctx context.Context, slug string) (*models.Room, error)

	// Lock блокирует комнату, только если она ещё активна. changed=false для уже заблокированной
	Lock(ctx context.Context, code string, at time.Time) (changed bool, err error)
	// Unlock не трогает комнату, уже забранную ClaimForVanish
	Unlock(ctx context.Context, code string) (changed bool, err error)
	// ClaimForVanish помечает комнату к удалению, только если она всё ещё заблокирована
	// не позже lockedBefore и не завершена. claimed=false для разблокированной или удалённой комнаты.
	// Повторный захват уже помеченной комнаты тоже успешен, чтобы восстановление могло продолжить удаление
	ClaimForVanish(ctx context.Context, code string, lockedBefore, at time.Time) (claimed bool, err error)
	MarkEnded(ctx context.Context, code, endedBy string, at time.Time) error
	AddParticipant(ctx context.Context, code, userID string) error

	// Delete возвращает число удалённых записей; 0 для уже удалённой комнаты
	Delete(ctx context.Context, code string) (int64, error)
	DeleteByCodes(ctx context.Context, codes []string) (int64, error)

	FindLockedBefore(ctx context.Context, q LockedQuery) ([]*models.Room, error)
	FindExpired(ctx context.Context, before time.Time, limit int) ([]*models.Room, error)
}

// LockedQuery - выборка заблокированных комнат, чей срок ожидания истёк
type LockedQuery struct {
	LockedBefore time.Time
	// AliveAt, если задан, исключает комнаты с expiresAt <= AliveAt
	AliveAt time.Time
	Limit   int
}

type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, roomCode, id string) (*models.Message, error)
	ListByRoom(ctx context.Context, roomCode string, before time.Time, limit int) ([]*models.Message, error)
	CountByRoom(ctx context.Context, roomCode string) (int64, error)

	// FindRecentDuplicate ищет недавнее совпадающее сообщение отправителя; apperr.ErrNotFound если нет
	FindRecentDuplicate(ctx context.Context, q DuplicateQuery) (*models.Message, error)
	DistinctNicknames(ctx context.Context, roomCode, excludeUserID string) ([]string, error)

	UpdateContent(ctx context.Context, roomCode, id, content string, editedAt time.Time) (*models.Message, error)
	SoftDelete(ctx context.Context, roomCode, id, placeholder string) (*models.Message, error)
	Delete(ctx context.Context, roomCode, id string) (int64, error)

	// Pin закрепляет сообщение и снимает закрепление с остальных; возвращает id снятых
	Pin(ctx context.Context, roomCode, id string) (unpinned []string, err error)
	Unpin(ctx context.Context, roomCode, id string) (changed bool, err error)

	AddReaction(ctx context.Context, roomCode, id, emoji, userID string) (*models.Message, error)
	RemoveReaction(ctx context.Context, roomCode, id, emoji, userID string) (*models.Message, error)

	// RenameAuthor переписывает ник и аватар во всех сообщениях пользователя в комнате
	RenameAuthor(ctx context.Context, roomCode, userID, nickname, avatar string) (int64, error)

	DeleteByRoom(ctx context.Context, roomCode string) (int64, error)
	DeleteByRooms(ctx context.Context, codes []string) (int64, error)
}

// DuplicateQuery описывает окно идемпотентности: для файлов сравнивается имя, для текста - содержимое
type DuplicateQuery struct {
	RoomCode string
	UserID   string
	File     bool
	FileName string
	Content  string
	Since    time.Time
}
