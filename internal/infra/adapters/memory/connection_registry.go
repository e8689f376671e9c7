package memory

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/application/metric"
	"github.com/qrave1/VanishRoom/internal/domain/runtime"
)

// Conn - минимальный интерфейс живого соединения
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// ConnectionRegistry хранит активные соединения и их сессии, сгруппированные по комнатам
type ConnectionRegistry interface {
	Add(connID, userID string, conn Conn)
	Remove(connID string) (runtime.Session, bool)

	// Join переносит соединение в комнату; возвращает предыдущее состояние сессии
	Join(connID, roomCode, nickname, avatar string, at time.Time) (prev runtime.Session, ok bool)
	// Leave выводит соединение из комнаты, само соединение остаётся зарегистрированным
	Leave(connID string) (runtime.Session, bool)
	SetNickname(connID, nickname, avatar string) bool

	Get(connID string) (runtime.Session, bool)
	InRoom(roomCode string) []runtime.Session
	Count(roomCode string) int

	Write(connID string, payload any)
	Broadcast(roomCode string, payload any, excludeConnID string)
	// DisconnectRoom выводит всех из комнаты и закрывает их соединения
	DisconnectRoom(roomCode string) int
}

type safeConn struct {
	conn    Conn
	mu      sync.Mutex
	session runtime.Session
}

type connectionRegistry struct {
	// conns хранит map[conn_id]*safeConn
	conns map[string]*safeConn
	// rooms хранит map[room_code]set[conn_id]
	rooms map[string]map[string]struct{}

	mu sync.RWMutex
}

func NewConnectionRegistry() ConnectionRegistry {
	return &connectionRegistry{
		conns: make(map[string]*safeConn, 10),
		rooms: make(map[string]map[string]struct{}),
	}
}

func (r *connectionRegistry) Add(connID, userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[connID] = &safeConn{
		conn:    conn,
		session: runtime.Session{ConnID: connID, UserID: userID},
	}

	metric.IncrementWSActiveConnections()
}

func (r *connectionRegistry) Remove(connID string) (runtime.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok := r.conns[connID]
	if !ok {
		return runtime.Session{}, false
	}

	r.detach(sc)
	delete(r.conns, connID)

	metric.DecrementWSActiveConnections()

	return sc.session, true
}

// detach убирает соединение из группы комнаты. Вызывать под mu
func (r *connectionRegistry) detach(sc *safeConn) {
	code := sc.session.RoomCode
	if code == "" {
		return
	}

	if members, ok := r.rooms[code]; ok {
		delete(members, sc.session.ConnID)
		if len(members) == 0 {
			delete(r.rooms, code)
		}
	}
}

func (r *connectionRegistry) Join(connID, roomCode, nickname, avatar string, at time.Time) (runtime.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok := r.conns[connID]
	if !ok {
		return runtime.Session{}, false
	}

	prev := sc.session
	r.detach(sc)

	sc.session.RoomCode = roomCode
	sc.session.Nickname = nickname
	sc.session.Avatar = avatar
	sc.session.JoinedAt = at

	if _, ok = r.rooms[roomCode]; !ok {
		r.rooms[roomCode] = make(map[string]struct{})
	}
	r.rooms[roomCode][connID] = struct{}{}

	return prev, true
}

func (r *connectionRegistry) Leave(connID string) (runtime.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok := r.conns[connID]
	if !ok || sc.session.RoomCode == "" {
		return runtime.Session{}, false
	}

	prev := sc.session
	r.detach(sc)

	sc.session.RoomCode = ""
	sc.session.Nickname = ""
	sc.session.Avatar = ""
	sc.session.JoinedAt = time.Time{}

	return prev, true
}

func (r *connectionRegistry) SetNickname(connID, nickname, avatar string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok := r.conns[connID]
	if !ok {
		return false
	}

	sc.session.Nickname = nickname
	sc.session.Avatar = avatar

	return true
}

func (r *connectionRegistry) Get(connID string) (runtime.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sc, ok := r.conns[connID]
	if !ok {
		return runtime.Session{}, false
	}

	return sc.session, true
}

func (r *connectionRegistry) InRoom(roomCode string) []runtime.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]runtime.Session, 0, len(r.rooms[roomCode]))
	for connID := range r.rooms[roomCode] {
		sessions = append(sessions, r.conns[connID].session)
	}

	return sessions
}

// Count возвращает число уникальных пользователей в комнате
func (r *connectionRegistry) Count(roomCode string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make(map[string]struct{}, len(r.rooms[roomCode]))
	for connID := range r.rooms[roomCode] {
		users[r.conns[connID].session.UserID] = struct{}{}
	}

	return len(users)
}

func (r *connectionRegistry) Write(connID string, payload any) {
	r.mu.RLock()
	sc, ok := r.conns[connID]
	r.mu.RUnlock()

	if !ok {
		log.Debug().Str(constant.ConnID, connID).Msg("write to unknown connection")
		return
	}

	sc.write(payload)
}

func (r *connectionRegistry) Broadcast(roomCode string, payload any, excludeConnID string) {
	for _, sc := range r.roomConns(roomCode) {
		if sc.session.ConnID == excludeConnID {
			continue
		}
		sc.write(payload)
	}
}

func (r *connectionRegistry) DisconnectRoom(roomCode string) int {
	r.mu.Lock()
	members := r.rooms[roomCode]
	delete(r.rooms, roomCode)

	targets := make([]*safeConn, 0, len(members))
	for connID := range members {
		sc := r.conns[connID]
		sc.session.RoomCode = ""
		targets = append(targets, sc)
	}
	r.mu.Unlock()

	for _, sc := range targets {
		sc.mu.Lock()
		if err := sc.conn.Close(); err != nil {
			log.Debug().Err(err).Str(constant.ConnID, sc.session.ConnID).Msg("close connection")
		}
		sc.mu.Unlock()
	}

	return len(targets)
}

func (r *connectionRegistry) roomConns(roomCode string) []*safeConn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*safeConn, 0, len(r.rooms[roomCode]))
	for connID := range r.rooms[roomCode] {
		out = append(out, r.conns[connID])
	}

	return out
}

func (sc *safeConn) write(payload any) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if err := sc.conn.WriteJSON(payload); err != nil {
		log.Error().Err(err).Str(constant.ConnID, sc.session.ConnID).Msg("write to websocket")
	}
}
