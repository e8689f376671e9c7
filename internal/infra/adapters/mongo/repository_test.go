package mongo

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store/storetest"
)

// testDB поднимает отдельную базу на каждый подтест; без MONGO_TEST_URI тесты пропускаются
func testDB(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI is not set")
	}

	ctx := context.Background()
	name := "vanishroom_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	db, err := Connect(ctx, uri, name)
	require.NoError(t, err)
	require.NoError(t, EnsureIndexes(ctx, db))

	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = db.Client().Disconnect(context.Background())
	})

	return db
}

func TestRoomRepo(t *testing.T) {
	storetest.RunRoomRepository(t, func(t *testing.T) store.RoomRepository {
		return NewRoomRepo(testDB(t))
	})
}

func TestMessageRepo(t *testing.T) {
	storetest.RunMessageRepository(t, func(t *testing.T) store.MessageRepository {
		return NewMessageRepo(testDB(t))
	})
}
