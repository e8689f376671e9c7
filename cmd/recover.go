package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/qrave1/VanishRoom/internal/application/config"
	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/application/logger"
	"github.com/qrave1/VanishRoom/internal/worker"
)

// recoverCmd прогоняет восстановительный проход по заблокированным комнатам без запуска сервера
var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Vanish every room locked longer than the grace period, then exit",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cfg, err := config.New()
		if err != nil {
			log.Fatal().Err(err).Msg("could not load config")
		}

		logger.Init(cfg.Debug)

		d, err := newDeps(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("init dependencies")
		}
		defer d.close(context.Background())

		d.sideEffects.Start()

		n, err := worker.NewAutoVanisher(d.rooms, d.lifecycle, cfg.Lifecycle, nil).RecoverOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("recovery pass failed")
			return
		}

		log.Info().Int(constant.Count, n).Msg("recovery pass finished")
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
