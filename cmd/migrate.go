package cmd

import (
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/qrave1/VanishRoom/internal/application/config"
	"github.com/qrave1/VanishRoom/internal/application/logger"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/postgres/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [command] [args...]",
	Short: "Run audit log database migrations",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.New()
		if err != nil {
			log.Fatal().Err(err).Msg("could not load config")
		}

		logger.Init(cfg.Debug)

		if !cfg.Postgres.Enabled() {
			log.Fatal().Msg("postgres is not configured: set POSTGRES_URL or POSTGRES_HOST")
		}

		goose.SetBaseFS(migrations.MigrationsFS)

		db, err := goose.OpenDBWithDriver("pgx", cfg.Postgres.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("goose: failed to open DB")
		}

		defer func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("goose: failed to close DB")
			}
		}()

		if err = goose.RunContext(cmd.Context(), args[0], db, ".", args[1:]...); err != nil {
			log.Fatal().Err(err).Str("command", args[0]).Msg("goose: migration failed")
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
