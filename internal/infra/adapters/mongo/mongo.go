package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	roomsCollection    = "rooms"
	messagesCollection = "messages"
)

func Connect(ctx context.Context, uri, database string) (*mongo.Database, error) {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(dbCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err = client.Ping(dbCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	log.Info().Str("database", database).Msg("connected to mongo")

	return client.Database(database), nil
}

// EnsureIndexes создаёт уникальные индексы и TTL индекс по expiresAt,
// который удаляет записи независимо от фоновых проходов приложения
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ttl := options.Index().SetExpireAfterSeconds(0)

	roomIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "isLocked", Value: 1}, {Key: "lockedAt", Value: 1}}},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: ttl},
	}

	if _, err := db.Collection(roomsCollection).Indexes().CreateMany(ctx, roomIndexes); err != nil {
		return fmt.Errorf("create room indexes: %w", err)
	}

	messageIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "roomCode", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "roomCode", Value: 1}, {Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: ttl},
	}

	if _, err := db.Collection(messagesCollection).Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}

	return nil
}
