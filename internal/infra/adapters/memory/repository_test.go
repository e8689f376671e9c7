package memory

import (
	"testing"

	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store/storetest"
)

func TestRoomRepository(t *testing.T) {
	storetest.RunRoomRepository(t, func(*testing.T) store.RoomRepository {
		return NewRoomRepository()
	})
}

func TestMessageRepository(t *testing.T) {
	storetest.RunMessageRepository(t, func(*testing.T) store.MessageRepository {
		return NewMessageRepository()
	})
}
