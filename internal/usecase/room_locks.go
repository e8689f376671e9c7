package usecase

import "sync"

// roomLocks - мьютекс на комнату. Записи удаляются, когда мьютекс никому не нужен
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[string]*roomLock)}
}

func (l *roomLocks) Lock(roomCode string) (unlock func()) {
	l.mu.Lock()
	rl, ok := l.locks[roomCode]
	if !ok {
		rl = &roomLock{}
		l.locks[roomCode] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()

	return func() {
		rl.mu.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, roomCode)
		}
		l.mu.Unlock()
	}
}
