package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/application/metric"
	"github.com/qrave1/VanishRoom/internal/usecase"
)

const (
	sweepExpiry   = "expiry"
	expiryTimeout = 3 * time.Minute
)

// ExpirySweeper по расписанию удаляет комнаты с истёкшим сроком жизни
type ExpirySweeper struct {
	lifecycle usecase.LifecycleUsecase
	schedule  string
	batch     int

	cron *cron.Cron
}

func NewExpirySweeper(lifecycle usecase.LifecycleUsecase, schedule string, batch int) *ExpirySweeper {
	return &ExpirySweeper{
		lifecycle: lifecycle,
		schedule:  schedule,
		batch:     batch,
		// следующий запуск пропускается, пока предыдущий не закончился
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

func (s *ExpirySweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, expiryTimeout)
		defer cancel()

		if _, err := s.RunOnce(runCtx); err != nil {
			log.Error().Err(err).Msg("expiry sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule expiry sweep %q: %w", s.schedule, err)
	}

	s.cron.Start()

	log.Info().Str("schedule", s.schedule).Msg("expiry sweeper started")

	return nil
}

// Stop ждёт завершения текущего прохода не дольше, чем позволяет ctx
func (s *ExpirySweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		log.Warn().Msg("expiry sweep still running at shutdown")
	}
}

func (s *ExpirySweeper) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metric.ObserveSweep(sweepExpiry, time.Since(start)) }()

	n, err := s.lifecycle.PurgeExpired(ctx, s.batch)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		log.Info().Int(constant.Count, n).Msg("expired rooms purged")
	}

	return n, nil
}
