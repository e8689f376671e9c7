package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/qrave1/VanishRoom/internal/application/config"
	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/application/metric"
	"github.com/qrave1/VanishRoom/internal/domain/models"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
	"github.com/qrave1/VanishRoom/internal/usecase"
)

const (
	sweepAutoVanish = "auto_vanish"
	sweepRecovery   = "recovery"
)

// AutoVanisher удаляет комнаты, заблокированные дольше LockGrace.
// При старте сначала дочищает комнаты, пропущенные до перезапуска
type AutoVanisher struct {
	rooms     store.RoomRepository
	lifecycle usecase.LifecycleUsecase
	cfg       config.LifecycleConfig
	now       func() time.Time
}

func NewAutoVanisher(
	rooms store.RoomRepository,
	lifecycle usecase.LifecycleUsecase,
	cfg config.LifecycleConfig,
	now func() time.Time,
) *AutoVanisher {
	if now == nil {
		now = time.Now
	}

	return &AutoVanisher{
		rooms:     rooms,
		lifecycle: lifecycle,
		cfg:       cfg,
		now:       now,
	}
}

// Run блокируется до отмены ctx
func (w *AutoVanisher) Run(ctx context.Context) {
	if _, err := w.RecoverOnce(ctx); err != nil {
		log.Error().Err(err).Msg("auto-vanish recovery failed")
	}

	ticker := time.NewTicker(w.cfg.VanishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("auto-vanish worker stopped")
			return
		case <-ticker.C:
			if _, err := w.SweepOnce(ctx); err != nil {
				log.Error().Err(err).Msg("auto-vanish sweep failed")
			}
		}
	}
}

// SweepOnce обрабатывает комнаты по одной. Истёкшие комнаты остаются сборщику по сроку жизни
func (w *AutoVanisher) SweepOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metric.ObserveSweep(sweepAutoVanish, time.Since(start)) }()

	now := w.now()

	rooms, err := w.rooms.FindLockedBefore(ctx, store.LockedQuery{
		LockedBefore: now.Add(-w.cfg.LockGrace),
		AliveAt:      now,
		Limit:        w.cfg.VanishBatch,
	})
	if err != nil {
		return 0, fmt.Errorf("find rooms to vanish: %w", err)
	}

	deleted := 0
	for _, room := range rooms {
		if ctx.Err() != nil {
			break
		}

		if w.vanish(ctx, room, sweepAutoVanish) {
			deleted++
		}
	}

	if len(rooms) > 0 {
		log.Info().
			Int(constant.Count, deleted).
			Int("found", len(rooms)).
			Msg("auto-vanish sweep finished")
	}

	return deleted, nil
}

// RecoverOnce повторяет удаление для всех просроченных заблокированных комнат,
// включая уже истёкшие, небольшими параллельными пачками
func (w *AutoVanisher) RecoverOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metric.ObserveSweep(sweepRecovery, time.Since(start)) }()

	rooms, err := w.rooms.FindLockedBefore(ctx, store.LockedQuery{
		LockedBefore: w.now().Add(-w.cfg.LockGrace),
		Limit:        w.cfg.RecoveryBatch,
	})
	if err != nil {
		return 0, fmt.Errorf("find rooms to recover: %w", err)
	}

	if len(rooms) == 0 {
		log.Debug().Msg("auto-vanish recovery: nothing to do")
		return 0, nil
	}

	chunk := max(w.cfg.RecoveryChunk, 1)

	var deleted atomic.Int64
	for i := 0; i < len(rooms); i += chunk {
		batch := rooms[i:min(i+chunk, len(rooms))]

		var g errgroup.Group
		for _, room := range batch {
			g.Go(func() error {
				if w.vanish(ctx, room, sweepRecovery) {
					deleted.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		if i+chunk >= len(rooms) {
			break
		}

		select {
		case <-ctx.Done():
			return int(deleted.Load()), ctx.Err()
		case <-time.After(w.cfg.RecoveryPause):
		}
	}

	log.Info().
		Int64(constant.Count, deleted.Load()).
		Int("found", len(rooms)).
		Msg("auto-vanish recovery finished")

	return int(deleted.Load()), nil
}

// vanish изолирует ошибку одной комнаты от остальных
func (w *AutoVanisher) vanish(ctx context.Context, room *models.Room, sweep string) bool {
	res, err := w.lifecycle.AutoVanish(ctx, room)
	if err != nil {
		log.Error().
			Err(err).
			Str(constant.RoomCode, room.Code).
			Str("sweep", sweep).
			Msg("auto-vanish room failed")

		return false
	}

	return res.Rooms > 0
}
