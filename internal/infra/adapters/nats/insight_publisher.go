package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/domain/models"
)

// InsightPublisher отправляет уведомления для дашборда аналитики
type InsightPublisher interface {
	Publish(ctx context.Context, event models.InsightEvent) error
	Close()
}

func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("vanishroom"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info().Msg("connected to nats")

	return nc, nil
}

// publisher - минимальная часть *nats.Conn, нужная для публикации
type publisher interface {
	Publish(subject string, data []byte) error
	Close()
}

type natsPublisher struct {
	nc     publisher
	prefix string
}

func NewInsightPublisher(nc *nats.Conn, prefix string) InsightPublisher {
	return &natsPublisher{nc: nc, prefix: prefix}
}

func Subject(prefix string, kind models.InsightKind) string {
	return prefix + "." + string(kind)
}

func (p *natsPublisher) Publish(_ context.Context, event models.InsightEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal insight: %w", err)
	}

	if err = p.nc.Publish(Subject(p.prefix, event.Kind), data); err != nil {
		return fmt.Errorf("publish insight: %w", err)
	}

	return nil
}

func (p *natsPublisher) Close() {
	p.nc.Close()
}

type logPublisher struct{}

// NewLogPublisher пишет уведомления в лог, когда NATS не настроен
func NewLogPublisher() InsightPublisher {
	return logPublisher{}
}

func (logPublisher) Publish(_ context.Context, event models.InsightEvent) error {
	log.Debug().
		Str(constant.EventType, string(event.Kind)).
		Str(constant.RoomCode, event.RoomCode).
		Interface("data", event.Data).
		Msg("insight")

	return nil
}

func (logPublisher) Close() {}
