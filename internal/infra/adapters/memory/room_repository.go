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

type roomRepository struct {
	rooms map[string]*models.Room
	mu    sync.RWMutex
}

// NewRoomRepository - хранилище комнат в памяти процесса (STORE_BACKEND=memory и тесты)
func NewRoomRepository() store.RoomRepository {
	return &roomRepository{
		rooms: make(map[string]*models.Room),
	}
}

func cloneRoom(r *models.Room) *models.Room {
	c := *r
	c.Participants = slices.Clone(r.Participants)
	if r.LockedAt != nil {
		t := *r.LockedAt
		c.LockedAt = &t
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		c.EndedAt = &t
	}
	if r.VanishingAt != nil {
		t := *r.VanishingAt
		c.VanishingAt = &t
	}
	return &c
}

func (r *roomRepository) Create(_ context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.Code]; ok {
		return apperr.ErrDuplicate
	}

	if room.Slug != "" {
		for _, existing := range r.rooms {
			if existing.Slug == room.Slug {
				return apperr.ErrDuplicate
			}
		}
	}

	r.rooms[room.Code] = cloneRoom(room)

	return nil
}

func (r *roomRepository) GetByCode(_ context.Context, code string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[code]
	if !ok {
		return nil, apperr.ErrNotFound
	}

	return cloneRoom(room), nil
}

func (r *roomRepository) GetBySlug(_ context.Context, slug string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, room := range r.rooms {
		if slug != "" && room.Slug == slug {
			return cloneRoom(room), nil
		}
	}

	return nil, apperr.ErrNotFound
}

func (r *roomRepository) Lock(_ context.Context, code string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return false, apperr.ErrNotFound
	}

	if room.IsLocked {
		return false, nil
	}

	room.IsLocked = true
	room.LockedAt = &at

	return true, nil
}

func (r *roomRepository) Unlock(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok || !room.IsLocked || room.IsVanishing() {
		return false, nil
	}

	room.IsLocked = false
	room.LockedAt = nil

	return true, nil
}

func (r *roomRepository) ClaimForVanish(_ context.Context, code string, lockedBefore, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok || !room.IsLocked || room.IsEnded || room.LockedAt == nil || room.LockedAt.After(lockedBefore) {
		return false, nil
	}

	if room.VanishingAt == nil {
		room.VanishingAt = &at
	}

	return true, nil
}

func (r *roomRepository) MarkEnded(_ context.Context, code, endedBy string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return apperr.ErrNotFound
	}

	room.IsEnded = true
	room.EndedAt = &at
	room.EndedBy = endedBy

	return nil
}

func (r *roomRepository) AddParticipant(_ context.Context, code, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return nil
	}

	if !slices.Contains(room.Participants, userID) {
		room.Participants = append(room.Participants, userID)
	}

	return nil
}

func (r *roomRepository) Delete(_ context.Context, code string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[code]; !ok {
		return 0, nil
	}

	delete(r.rooms, code)

	return 1, nil
}

func (r *roomRepository) DeleteByCodes(_ context.Context, codes []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, code := range codes {
		if _, ok := r.rooms[code]; ok {
			delete(r.rooms, code)
			n++
		}
	}

	return n, nil
}

func (r *roomRepository) FindLockedBefore(_ context.Context, q store.LockedQuery) ([]*models.Room, error) {
	return r.filter(q.Limit, func(room *models.Room) bool {
		if !room.IsLocked || room.IsEnded || room.LockedAt == nil || room.LockedAt.After(q.LockedBefore) {
			return false
		}
		return q.AliveAt.IsZero() || room.ExpiresAt.After(q.AliveAt)
	}, func(a, b *models.Room) bool { return a.LockedAt.Before(*b.LockedAt) }), nil
}

func (r *roomRepository) FindExpired(_ context.Context, before time.Time, limit int) ([]*models.Room, error) {
	return r.filter(limit, func(room *models.Room) bool {
		return !room.ExpiresAt.After(before)
	}, func(a, b *models.Room) bool { return a.ExpiresAt.Before(b.ExpiresAt) }), nil
}

func (r *roomRepository) filter(limit int, match func(*models.Room) bool, less func(a, b *models.Room) bool) []*models.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Room, 0)
	for _, room := range r.rooms {
		if match(room) {
			out = append(out, cloneRoom(room))
		}
	}

	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out
}
