package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/config"
	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/application/metric"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/kv"
)

type Action string

const (
	ActionMessage Action = "message"
	ActionFile    Action = "file"
	ActionRoom    Action = "room"
	ActionAdmin   Action = "admin"
)

// RateLimiter - счётчик с фиксированным окном. При недоступном KV пропускает действие
type RateLimiter interface {
	Allow(ctx context.Context, action Action, subject string) bool
}

type rateLimiter struct {
	store  kv.Store
	window time.Duration
	limits map[Action]int64
}

func NewRateLimiter(store kv.Store, cfg config.LimitsConfig) RateLimiter {
	return &rateLimiter{
		store:  store,
		window: cfg.Window,
		limits: map[Action]int64{
			ActionMessage: cfg.MessagesPerWindow,
			ActionFile:    cfg.FilesPerWindow,
			ActionRoom:    cfg.RoomsPerWindow,
			ActionAdmin:   cfg.AdminPerWindow,
		},
	}
}

func (l *rateLimiter) Allow(ctx context.Context, action Action, subject string) bool {
	limit, ok := l.limits[action]
	if !ok || limit <= 0 {
		return true
	}

	n, err := l.store.IncrWithExpiry(ctx, kv.RateKey(string(action), subject), l.window)
	if err != nil {
		metric.IncCoordinationDegraded("rate_limit")
		log.Warn().
			Err(err).
			Str(constant.Action, string(action)).
			Msg("rate limiter degraded, allowing")

		return true
	}

	if n > limit {
		metric.IncRateLimited(string(action))
		return false
	}

	return true
}
