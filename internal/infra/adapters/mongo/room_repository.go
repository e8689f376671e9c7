package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/models"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
)

type roomRepo struct {
	coll *mongo.Collection
}

func NewRoomRepo(db *mongo.Database) store.RoomRepository {
	return &roomRepo{coll: db.Collection(roomsCollection)}
}

func (r *roomRepo) Create(ctx context.Context, room *models.Room) error {
	_, err := r.coll.InsertOne(ctx, room)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert room: %w", apperr.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}

	return nil
}

func (r *roomRepo) findOne(ctx context.Context, filter bson.M) (*models.Room, error) {
	var room models.Room

	err := r.coll.FindOne(ctx, filter).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find room: %w", err)
	}

	return &room, nil
}

func (r *roomRepo) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	return r.findOne(ctx, bson.M{"code": code})
}

func (r *roomRepo) GetBySlug(ctx context.Context, slug string) (*models.Room, error) {
	return r.findOne(ctx, bson.M{"slug": slug})
}

func (r *roomRepo) Lock(ctx context.Context, code string, at time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(
		ctx,
		bson.M{"code": code, "isLocked": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"isLocked": true, "lockedAt": at}},
	)
	if err != nil {
		return false, fmt.Errorf("lock room: %w", err)
	}

	if res.ModifiedCount == 1 {
		return true, nil
	}

	// комната либо уже заблокирована, либо отсутствует
	if _, err = r.GetByCode(ctx, code); err != nil {
		return false, err
	}

	return false, nil
}

func (r *roomRepo) Unlock(ctx context.Context, code string) (bool, error) {
	res, err := r.coll.UpdateOne(
		ctx,
		bson.M{"code": code, "isLocked": true, "vanishingAt": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"isLocked": false}, "$unset": bson.M{"lockedAt": ""}},
	)
	if err != nil {
		return false, fmt.Errorf("unlock room: %w", err)
	}

	return res.ModifiedCount == 1, nil
}

func (r *roomRepo) ClaimForVanish(ctx context.Context, code string, lockedBefore, at time.Time) (bool, error) {
	// $min сохраняет время первого захвата при повторе из восстановления
	res, err := r.coll.UpdateOne(
		ctx,
		bson.M{
			"code":     code,
			"isLocked": true,
			"lockedAt": bson.M{"$lte": lockedBefore},
			"isEnded":  bson.M{"$ne": true},
		},
		bson.M{"$min": bson.M{"vanishingAt": at}},
	)
	if err != nil {
		return false, fmt.Errorf("claim room for vanish: %w", err)
	}

	return res.MatchedCount == 1, nil
}

func (r *roomRepo) MarkEnded(ctx context.Context, code, endedBy string, at time.Time) error {
	res, err := r.coll.UpdateOne(
		ctx,
		bson.M{"code": code},
		bson.M{"$set": bson.M{"isEnded": true, "endedAt": at, "endedBy": endedBy}},
	)
	if err != nil {
		return fmt.Errorf("end room: %w", err)
	}

	if res.MatchedCount == 0 {
		return apperr.ErrNotFound
	}

	return nil
}

func (r *roomRepo) AddParticipant(ctx context.Context, code, userID string) error {
	_, err := r.coll.UpdateOne(
		ctx,
		bson.M{"code": code},
		bson.M{"$addToSet": bson.M{"participants": userID}},
	)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}

	return nil
}

func (r *roomRepo) Delete(ctx context.Context, code string) (int64, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"code": code})
	if err != nil {
		return 0, fmt.Errorf("delete room: %w", err)
	}

	return res.DeletedCount, nil
}

func (r *roomRepo) DeleteByCodes(ctx context.Context, codes []string) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	res, err := r.coll.DeleteMany(ctx, bson.M{"code": bson.M{"$in": codes}})
	if err != nil {
		return 0, fmt.Errorf("delete rooms: %w", err)
	}

	return res.DeletedCount, nil
}

func (r *roomRepo) FindLockedBefore(ctx context.Context, q store.LockedQuery) ([]*models.Room, error) {
	filter := bson.M{
		"isLocked": true,
		"lockedAt": bson.M{"$lte": q.LockedBefore},
		"isEnded":  bson.M{"$ne": true},
	}
	if !q.AliveAt.IsZero() {
		filter["expiresAt"] = bson.M{"$gt": q.AliveAt}
	}

	opts := options.Find().SetSort(bson.D{{Key: "lockedAt", Value: 1}}).SetLimit(int64(q.Limit))

	return r.find(ctx, filter, opts)
}

func (r *roomRepo) FindExpired(ctx context.Context, before time.Time, limit int) ([]*models.Room, error) {
	opts := options.Find().SetSort(bson.D{{Key: "expiresAt", Value: 1}}).SetLimit(int64(limit))

	return r.find(ctx, bson.M{"expiresAt": bson.M{"$lte": before}}, opts)
}

func (r *roomRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Room, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find rooms: %w", err)
	}

	rooms := make([]*models.Room, 0)
	if err = cur.All(ctx, &rooms); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}

	return rooms, nil
}
