package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/config"
	"github.com/qrave1/VanishRoom/internal/application/outbox"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/filestore"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/kv"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/memory"
	mongostore "github.com/qrave1/VanishRoom/internal/infra/adapters/mongo"
	natsadapter "github.com/qrave1/VanishRoom/internal/infra/adapters/nats"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/postgres"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
	"github.com/qrave1/VanishRoom/internal/usecase"
)

// deps - собранные адаптеры и сценарии, общие для сервера и служебных команд
type deps struct {
	rooms       store.RoomRepository
	messages    store.MessageRepository
	coord       kv.Store
	files       filestore.Store
	registry    memory.ConnectionRegistry
	sideEffects *outbox.Dispatcher

	lifecycle usecase.LifecycleUsecase
	room      usecase.RoomUsecase
	presence  usecase.PresenceUsecase
	message   usecase.MessageUsecase
	pairing   usecase.PairingUsecase
	admin     usecase.AdminUsecase

	closers []func()
}

func newDeps(ctx context.Context, cfg *config.Config) (_ *deps, err error) {
	d := &deps{registry: memory.NewConnectionRegistry()}
	defer func() {
		if err != nil {
			d.close(context.Background())
		}
	}()

	if err = d.initStore(ctx, cfg); err != nil {
		return nil, err
	}

	d.initCoordination(ctx, cfg)

	if err = d.initFiles(ctx, cfg); err != nil {
		return nil, err
	}

	audit, err := d.auditSink(ctx, cfg)
	if err != nil {
		return nil, err
	}

	insights, err := d.insightSink(cfg)
	if err != nil {
		return nil, err
	}

	d.sideEffects = outbox.NewDispatcher(audit, insights, outbox.Options{Buffer: cfg.Lifecycle.SideEffectBuffer})

	limiter := usecase.NewRateLimiter(d.coord, cfg.Limits)

	live := usecase.NewLiveSource(d.registry)
	nicknames := usecase.NewNicknameRegistry(
		usecase.NewPresenceOracle(live, usecase.NewCoordinationSource(d.coord), usecase.NewHistorySource(d.messages)),
		live,
	)

	d.lifecycle = usecase.NewLifecycleUsecase(
		d.rooms, d.messages, d.files, d.coord, d.registry, d.sideEffects, limiter, cfg.Lifecycle.LockGrace, nil,
	)
	d.room = usecase.NewRoomUsecase(d.rooms, d.files, limiter, d.sideEffects, cfg.Lifecycle, nil)
	d.presence = usecase.NewPresenceUsecase(
		d.rooms, d.messages, d.coord, d.registry, nicknames, d.lifecycle, cfg.Lifecycle.PresenceTTL, nil,
	)
	d.message = usecase.NewMessageUsecase(d.rooms, d.messages, d.registry, limiter, d.sideEffects, cfg.Limits, nil)
	d.pairing = usecase.NewPairingUsecase(d.coord, d.room, cfg.Lifecycle.PairingCodeTTL, nil)
	d.admin = usecase.NewAdminUsecase(cfg.JWTSecret, cfg.Admin, limiter, nil)

	return d, nil
}

func (d *deps) initStore(ctx context.Context, cfg *config.Config) error {
	if cfg.StoreBackend == "memory" {
		log.Warn().Msg("using in-memory store, rooms will not survive a restart")
		d.rooms = memory.NewRoomRepository()
		d.messages = memory.NewMessageRepository()
		return nil
	}

	db, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return err
	}
	d.closers = append(d.closers, func() {
		if err := db.Client().Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("disconnect mongo")
		}
	})

	if err = mongostore.EnsureIndexes(ctx, db); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	d.rooms = mongostore.NewRoomRepo(db)
	d.messages = mongostore.NewMessageRepo(db)

	return nil
}

func (d *deps) initCoordination(ctx context.Context, cfg *config.Config) {
	switch cfg.CoordBackend {
	case "memory":
		d.coord = kv.NewMemoryStore()
	case "none":
		log.Warn().Msg("coordination store disabled, rate limits and pairing are off")
		d.coord = kv.NewDisabledStore()
	default:
		client, err := kv.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// сервис стартует и без редиса, операции деградируют до его появления
			log.Warn().Err(err).Msg("redis unavailable at startup")
		}
		d.closers = append(d.closers, func() { _ = client.Close() })
		d.coord = kv.NewRedisStore(client)
	}
}

func (d *deps) initFiles(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.Endpoint == "" {
		d.files = filestore.NewNoopStore()
		return nil
	}

	client, err := filestore.NewMinioClient(
		cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.UseSSL,
	)
	if err != nil {
		return err
	}

	d.files, err = filestore.NewMinioStore(ctx, client, cfg.Storage.Bucket, cfg.Storage.URLExpiry)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	return nil
}

func (d *deps) auditSink(ctx context.Context, cfg *config.Config) (outbox.AuditSink, error) {
	if !cfg.Postgres.Enabled() {
		return outbox.NewLogAuditSink(), nil
	}

	db, err := postgres.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, func() { _ = db.Close() })

	return repository.NewAuditRepo(db), nil
}

func (d *deps) insightSink(cfg *config.Config) (outbox.InsightSink, error) {
	if cfg.NATS.URL == "" {
		return natsadapter.NewLogPublisher(), nil
	}

	nc, err := natsadapter.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, err
	}

	publisher := natsadapter.NewInsightPublisher(nc, cfg.NATS.SubjectPrefix)
	d.closers = append(d.closers, publisher.Close)

	return publisher, nil
}

// close сначала дожидается очереди побочных эффектов, потом закрывает подключения
func (d *deps) close(ctx context.Context) {
	if d.sideEffects != nil {
		if err := d.sideEffects.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("stop side effects")
		}
	}

	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}
