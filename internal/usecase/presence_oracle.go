package usecase

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/application/metric"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/kv"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/memory"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
)

// PresenceSource - один источник сведений о том, какие ники заняты в комнате
type PresenceSource interface {
	Name() string
	Nicknames(ctx context.Context, roomCode, excludeUserID string) ([]string, error)
}

// PresenceOracle объединяет источники присутствия за одним методом
type PresenceOracle interface {
	// TakenNicknames возвращает занятые ники в нижнем регистре
	TakenNicknames(ctx context.Context, roomCode, excludeUserID string) map[string]struct{}
}

type presenceOracle struct {
	sources []PresenceSource
}

func NewPresenceOracle(sources ...PresenceSource) PresenceOracle {
	return &presenceOracle{sources: sources}
}

func (o *presenceOracle) TakenNicknames(ctx context.Context, roomCode, excludeUserID string) map[string]struct{} {
	taken := make(map[string]struct{})

	for _, src := range o.sources {
		names, err := src.Nicknames(ctx, roomCode, excludeUserID)
		if err != nil {
			// недоступный источник сужает объединение, но не ломает вход
			log.Warn().
				Err(err).
				Str("source", src.Name()).
				Str(constant.RoomCode, roomCode).
				Msg("presence source failed")
			continue
		}

		for _, n := range names {
			taken[strings.ToLower(n)] = struct{}{}
		}
	}

	return taken
}

type liveSource struct {
	registry memory.ConnectionRegistry
}

// NewLiveSource - ники живых соединений комнаты
func NewLiveSource(registry memory.ConnectionRegistry) PresenceSource {
	return &liveSource{registry: registry}
}

func (s *liveSource) Name() string { return "live" }

func (s *liveSource) Nicknames(_ context.Context, roomCode, excludeUserID string) ([]string, error) {
	sessions := s.registry.InRoom(roomCode)

	names := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		if sess.UserID == excludeUserID || sess.Nickname == "" {
			continue
		}
		names = append(names, sess.Nickname)
	}

	return names, nil
}

type coordinationSource struct {
	store kv.Store
}

// NewCoordinationSource - присутствие из KV, включая недавно отключившихся
func NewCoordinationSource(store kv.Store) PresenceSource {
	return &coordinationSource{store: store}
}

func (s *coordinationSource) Name() string { return "coordination" }

func (s *coordinationSource) Nicknames(ctx context.Context, roomCode, excludeUserID string) ([]string, error) {
	userIDs, err := s.store.SMembers(ctx, kv.RoomUsersKey(roomCode))
	if err != nil {
		metric.IncCoordinationDegraded("presence_read")
		return nil, err
	}

	names := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id == excludeUserID {
			continue
		}

		values, err := s.store.HGetAll(ctx, kv.UserKey(id))
		if err != nil {
			metric.IncCoordinationDegraded("presence_read")
			return names, err
		}

		if values["roomCode"] == roomCode && values["nickname"] != "" {
			names = append(names, values["nickname"])
		}
	}

	return names, nil
}

type historySource struct {
	messages store.MessageRepository
}

// NewHistorySource - авторы сообщений комнаты, чьи сессии уже закончились
func NewHistorySource(messages store.MessageRepository) PresenceSource {
	return &historySource{messages: messages}
}

func (s *historySource) Name() string { return "history" }

func (s *historySource) Nicknames(ctx context.Context, roomCode, excludeUserID string) ([]string, error) {
	return s.messages.DistinctNicknames(ctx, roomCode, excludeUserID)
}
