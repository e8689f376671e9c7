package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qrave1/VanishRoom/internal/application/config"
	"github.com/qrave1/VanishRoom/internal/domain/events"
	"github.com/qrave1/VanishRoom/internal/domain/input"
	"github.com/qrave1/VanishRoom/internal/domain/models"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/filestore"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/kv"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/memory"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingConn struct {
	mu     sync.Mutex
	events []events.Outbound
	closed bool
}

func (c *recordingConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if out, ok := v.(events.Outbound); ok {
		c.events = append(c.events, out)
	}
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

func (c *recordingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type recordingEffects struct {
	mu       sync.Mutex
	audits   []models.AuditRecord
	insights []models.InsightKind
}

func (e *recordingEffects) RecordAudit(r models.AuditRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.audits = append(e.audits, r)
}

func (e *recordingEffects) NotifyInsight(kind models.InsightKind, _ string, _ map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.insights = append(e.insights, kind)
}

func (e *recordingEffects) auditRecords() []models.AuditRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.AuditRecord(nil), e.audits...)
}

type allowAll struct{}

func (allowAll) Allow(context.Context, Action, string) bool { return true }

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		Window:            time.Minute,
		MessagesPerWindow: 30,
		FilesPerWindow:    10,
		RoomsPerWindow:    5,
		AdminPerWindow:    10,
		MaxTextLength:     5000,
		MaxDataURLBytes:   15 * 1024 * 1024,
		TextDedupWindow:   5 * time.Second,
		FileDedupWindow:   10 * time.Second,
	}
}

type env struct {
	clock    *fakeClock
	rooms    store.RoomRepository
	messages store.MessageRepository
	coord    kv.Store
	registry memory.ConnectionRegistry
	effects  *recordingEffects

	lifecycle LifecycleUsecase
	presence  PresenceUsecase
	msgs      MessageUsecase
	roomUC    RoomUsecase

	conns map[string]*recordingConn
}

func newEnv(t *testing.T, limiter RateLimiter) *env {
	t.Helper()

	if limiter == nil {
		limiter = allowAll{}
	}

	e := &env{
		clock:    newClock(),
		rooms:    memory.NewRoomRepository(),
		messages: memory.NewMessageRepository(),
		coord:    kv.NewMemoryStore(),
		registry: memory.NewConnectionRegistry(),
		effects:  &recordingEffects{},
		conns:    make(map[string]*recordingConn),
	}

	live := NewLiveSource(e.registry)
	oracle := NewPresenceOracle(live, NewCoordinationSource(e.coord), NewHistorySource(e.messages))
	nicknames := NewNicknameRegistry(oracle, live)

	files := filestore.NewNoopStore()
	e.lifecycle = NewLifecycleUsecase(e.rooms, e.messages, files, e.coord, e.registry, e.effects, limiter, 24*time.Hour, e.clock.Now)
	e.presence = NewPresenceUsecase(e.rooms, e.messages, e.coord, e.registry, nicknames, e.lifecycle, 24*time.Hour, e.clock.Now)
	e.msgs = NewMessageUsecase(e.rooms, e.messages, e.registry, limiter, e.effects, testLimits(), e.clock.Now)
	e.roomUC = NewRoomUsecase(e.rooms, files, limiter, e.effects, config.LifecycleConfig{
		DefaultRoomTTL: time.Hour,
		MaxRoomTTL:     7 * 24 * time.Hour,
	}, e.clock.Now)

	return e
}

func (e *env) createRoom(t *testing.T, ownerID string, ttlMinutes int) *models.Room {
	t.Helper()

	room, err := e.roomUC.Create(context.Background(), &input.CreateRoomInput{OwnerID: ownerID, TTLMinutes: ttlMinutes})
	require.NoError(t, err)

	return room
}

// connect регистрирует соединение и входит в комнату
func (e *env) connect(t *testing.T, connID, userID, roomCode, nickname string) *events.JoinedEvent {
	t.Helper()

	conn := &recordingConn{}
	e.conns[connID] = conn
	e.registry.Add(connID, userID, conn)

	joined, err := e.presence.Join(context.Background(), connID, &input.JoinInput{RoomCode: roomCode, Nickname: nickname})
	require.NoError(t, err)

	return joined
}

func (e *env) send(connID, roomCode, content string) (*models.Message, error) {
	return e.msgs.Send(context.Background(), connID, &input.SendMessageInput{RoomCode: roomCode, Content: content})
}

func userID(n int) string {
	return fmt.Sprintf("user-%04d", n)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
