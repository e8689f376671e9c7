package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/config"
	"github.com/qrave1/VanishRoom/internal/application/logger"
	"github.com/qrave1/VanishRoom/internal/application/metric"
	"github.com/qrave1/VanishRoom/internal/infra/ports/http/handlers"
	"github.com/qrave1/VanishRoom/internal/infra/ports/http/middleware"
	"github.com/qrave1/VanishRoom/internal/infra/ports/http/server"
	"github.com/qrave1/VanishRoom/internal/worker"
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		logger.Init(false)
		log.Fatal().Err(err).Msg("parse config")
	}

	logger.Init(cfg.Debug)

	d, err := newDeps(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init dependencies")
	}

	d.sideEffects.Start()

	vanisher := worker.NewAutoVanisher(d.rooms, d.lifecycle, cfg.Lifecycle, nil)
	sweeper := worker.NewExpirySweeper(d.lifecycle, cfg.Lifecycle.ExpirySchedule, cfg.Lifecycle.ExpiryBatch)

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		vanisher.Run(ctx)
	}()

	if err = sweeper.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start expiry sweeper")
	}

	ipLimiter := middleware.NewIPRateLimiter(cfg.Limits.HTTPRequestsPerSec, cfg.Limits.HTTPBurst)
	go ipLimiter.Run(ctx.Done())

	roomHandler := handlers.NewRoomHandler(d.room, d.message, d.lifecycle, d.registry)
	pairingHandler := handlers.NewPairingHandler(d.pairing)
	adminHandler := handlers.NewAdminHandler(d.admin, d.lifecycle, d.sideEffects)
	wsHandler := handlers.NewWebSocketHandler(cfg, d.registry, d.presence, d.message, d.lifecycle)

	echoSrv := server.New(d.admin, ipLimiter, roomHandler, pairingHandler, adminHandler, wsHandler)

	metricsSrv := metric.NewServer()

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	go func() {
		echoSrvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricPort)
	}()

	log.Info().Str("port", cfg.Port).Str("store", cfg.StoreBackend).Str("coord", cfg.CoordBackend).Msg("vanishroom started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down servers due to context cancel")
	case err := <-echoSrvCh:
		log.Fatal().Err(err).Msg("HTTP server failed")
	case err := <-metricsSrvCh:
		log.Fatal().Err(err).Msg("metrics server failed")
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		log.Error().Err(err).Msg("failed to gracefully shutdown HTTP server")
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		log.Error().Err(err).Msg("failed to gracefully shutdown metric server")
	}

	sweeper.Stop(timeoutCtx)

	select {
	case <-workersDone:
	case <-timeoutCtx.Done():
		log.Warn().Msg("auto-vanish worker did not stop in time")
	}

	d.close(timeoutCtx)
}
