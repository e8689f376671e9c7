package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/VanishRoom/internal/application/config"
	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/input"
	"github.com/qrave1/VanishRoom/internal/domain/models"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/filestore"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/kv"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/memory"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
	"github.com/qrave1/VanishRoom/internal/usecase"
)

type discardEffects struct{}

func (discardEffects) RecordAudit(models.AuditRecord) {}
func (discardEffects) NotifyInsight(models.InsightKind, string, map[string]any) {}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type pipeline struct {
	clock     *testClock
	rooms     store.RoomRepository
	roomUC    usecase.RoomUsecase
	lifecycle usecase.LifecycleUsecase
	vanisher  *AutoVanisher
	sweeper   *ExpirySweeper
}

// newPipeline собирает настоящие сценарии с настройками по умолчанию
func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	t.Setenv("JWT_SECRET", "secret")
	cfg, err := config.New()
	require.NoError(t, err)

	clock := &testClock{now: base}
	rooms := memory.NewRoomRepository()
	messages := memory.NewMessageRepository()
	coord := kv.NewMemoryStore()
	limiter := usecase.NewRateLimiter(coord, cfg.Limits)
	files := filestore.NewNoopStore()

	lifecycle := usecase.NewLifecycleUsecase(
		rooms, messages, files, coord, memory.NewConnectionRegistry(), discardEffects{}, limiter, cfg.Lifecycle.LockGrace, clock.Now,
	)

	return &pipeline{
		clock:     clock,
		rooms:     rooms,
		roomUC:    usecase.NewRoomUsecase(rooms, files, limiter, discardEffects{}, cfg.Lifecycle, clock.Now),
		lifecycle: lifecycle,
		vanisher:  NewAutoVanisher(rooms, lifecycle, cfg.Lifecycle, clock.Now),
		sweeper:   NewExpirySweeper(lifecycle, cfg.Lifecycle.ExpirySchedule, cfg.Lifecycle.ExpiryBatch),
	}
}

func (p *pipeline) createLocked(t *testing.T, ttlMinutes int) *models.Room {
	t.Helper()

	ctx := context.Background()
	room, err := p.roomUC.Create(ctx, &input.CreateRoomInput{OwnerID: "owner-0001", TTLMinutes: ttlMinutes})
	require.NoError(t, err)

	_, err = p.lifecycle.Lock(ctx, room.Code)
	require.NoError(t, err)

	return room
}

func TestPipeline_DefaultsLetSweepFindCreatedRooms(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	longest := p.createLocked(t, 7*24*60)

	p.clock.Advance(23 * time.Hour)

	n, err := p.vanisher.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "grace period not over yet")

	p.clock.Advance(time.Hour + time.Minute)

	n, err = p.vanisher.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = p.rooms.GetByCode(ctx, longest.Code)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPipeline_ShortRoomIsLeftToExpirySweep(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t)

	day := p.createLocked(t, 24*60)

	p.clock.Advance(24*time.Hour + time.Minute)

	n, err := p.vanisher.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = p.sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = p.rooms.GetByCode(ctx, day.Code)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
