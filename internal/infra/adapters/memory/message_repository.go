package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/models"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
)

type messageRepository struct {
	// messages хранит map[room_code][]*Message в порядке вставки
	messages map[string][]*models.Message
	mu       sync.RWMutex
}

func NewMessageRepository() store.MessageRepository {
	return &messageRepository{
		messages: make(map[string][]*models.Message),
	}
}

func cloneMessage(m *models.Message) *models.Message {
	c := *m
	if m.FileMeta != nil {
		fm := *m.FileMeta
		c.FileMeta = &fm
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		c.EditedAt = &t
	}
	c.Reactions = make(map[string][]string, len(m.Reactions))
	for emoji, users := range m.Reactions {
		c.Reactions[emoji] = slices.Clone(users)
	}
	return &c
}

// find возвращает указатель на хранимое сообщение. Вызывать под mu
func (r *messageRepository) find(roomCode, id string) *models.Message {
	for _, m := range r.messages[roomCode] {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (r *messageRepository) Create(_ context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, list := range r.messages {
		for _, m := range list {
			if m.ID == msg.ID {
				return apperr.ErrDuplicate
			}
		}
	}

	r.messages[msg.RoomCode] = append(r.messages[msg.RoomCode], cloneMessage(msg))

	return nil
}

func (r *messageRepository) GetByID(_ context.Context, roomCode, id string) (*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.find(roomCode, id)
	if m == nil {
		return nil, apperr.ErrNotFound
	}

	return cloneMessage(m), nil
}

func (r *messageRepository) ListByRoom(_ context.Context, roomCode string, before time.Time, limit int) ([]*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Message, 0)
	for _, m := range r.messages[roomCode] {
		if before.IsZero() || m.CreatedAt.Before(before) {
			out = append(out, cloneMessage(m))
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}

	return out, nil
}

func (r *messageRepository) CountByRoom(_ context.Context, roomCode string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.messages[roomCode])), nil
}

func (r *messageRepository) FindRecentDuplicate(_ context.Context, q store.DuplicateQuery) (*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *models.Message
	for _, m := range r.messages[q.RoomCode] {
		if m.UserID != q.UserID || m.CreatedAt.Before(q.Since) {
			continue
		}

		if q.File {
			if m.FileMeta == nil || m.FileMeta.Name != q.FileName {
				continue
			}
		} else if m.Type != models.MessageText || m.Content != q.Content {
			continue
		}

		if found == nil || m.CreatedAt.After(found.CreatedAt) {
			found = m
		}
	}

	if found == nil {
		return nil, apperr.ErrNotFound
	}

	return cloneMessage(found), nil
}

func (r *messageRepository) DistinctNicknames(_ context.Context, roomCode, excludeUserID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, m := range r.messages[roomCode] {
		if m.IsSystem || m.Nickname == "" || (excludeUserID != "" && m.UserID == excludeUserID) {
			continue
		}
		if _, ok := seen[m.Nickname]; ok {
			continue
		}
		seen[m.Nickname] = struct{}{}
		out = append(out, m.Nickname)
	}

	return out, nil
}

// mutate применяет fn к хранимому сообщению и возвращает копию результата
func (r *messageRepository) mutate(roomCode, id string, fn func(m *models.Message)) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.find(roomCode, id)
	if m == nil {
		return nil, apperr.ErrNotFound
	}

	fn(m)

	return cloneMessage(m), nil
}

func (r *messageRepository) UpdateContent(_ context.Context, roomCode, id, content string, editedAt time.Time) (*models.Message, error) {
	return r.mutate(roomCode, id, func(m *models.Message) {
		m.Content = content
		m.EditedAt = &editedAt
	})
}

func (r *messageRepository) SoftDelete(_ context.Context, roomCode, id, placeholder string) (*models.Message, error) {
	return r.mutate(roomCode, id, func(m *models.Message) {
		m.Content = placeholder
		m.DeletedByAdmin = true
		m.Type = models.MessageText
		m.FileMeta = nil
	})
}

func (r *messageRepository) Delete(_ context.Context, roomCode, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.messages[roomCode]
	for i, m := range list {
		if m.ID == id {
			r.messages[roomCode] = slices.Delete(list, i, i+1)
			return 1, nil
		}
	}

	return 0, nil
}

func (r *messageRepository) Pin(_ context.Context, roomCode, id string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target := r.find(roomCode, id)
	if target == nil {
		return nil, apperr.ErrNotFound
	}

	unpinned := make([]string, 0)
	for _, m := range r.messages[roomCode] {
		if m.IsPinned && m.ID != id {
			m.IsPinned = false
			unpinned = append(unpinned, m.ID)
		}
	}
	target.IsPinned = true

	sort.Strings(unpinned)

	return unpinned, nil
}

func (r *messageRepository) Unpin(_ context.Context, roomCode, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.find(roomCode, id)
	if m == nil || !m.IsPinned {
		return false, nil
	}

	m.IsPinned = false

	return true, nil
}

func (r *messageRepository) AddReaction(_ context.Context, roomCode, id, emoji, userID string) (*models.Message, error) {
	return r.mutate(roomCode, id, func(m *models.Message) {
		if m.Reactions == nil {
			m.Reactions = make(map[string][]string)
		}
		if !slices.Contains(m.Reactions[emoji], userID) {
			m.Reactions[emoji] = append(m.Reactions[emoji], userID)
		}
	})
}

func (r *messageRepository) RemoveReaction(_ context.Context, roomCode, id, emoji, userID string) (*models.Message, error) {
	return r.mutate(roomCode, id, func(m *models.Message) {
		users := slices.DeleteFunc(m.Reactions[emoji], func(u string) bool { return u == userID })
		if len(users) == 0 {
			delete(m.Reactions, emoji)
			return
		}
		m.Reactions[emoji] = users
	})
}

func (r *messageRepository) RenameAuthor(_ context.Context, roomCode, userID, nickname, avatar string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, m := range r.messages[roomCode] {
		if m.UserID == userID {
			m.Nickname = nickname
			m.Avatar = avatar
			n++
		}
	}

	return n, nil
}

func (r *messageRepository) DeleteByRoom(_ context.Context, roomCode string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.messages[roomCode]))
	delete(r.messages, roomCode)

	return n, nil
}

func (r *messageRepository) DeleteByRooms(ctx context.Context, codes []string) (int64, error) {
	var total int64
	for _, code := range codes {
		n, _ := r.DeleteByRoom(ctx, code)
		total += n
	}

	return total, nil
}
