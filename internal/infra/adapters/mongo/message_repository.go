package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/models"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
)

type messageRepo struct {
	coll *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) store.MessageRepository {
	return &messageRepo{coll: db.Collection(messagesCollection)}
}

func byID(roomCode, id string) bson.M {
	return bson.M{"roomCode": roomCode, "id": id}
}

func (r *messageRepo) Create(ctx context.Context, msg *models.Message) error {
	_, err := r.coll.InsertOne(ctx, msg)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert message: %w", apperr.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

func (r *messageRepo) decodeOne(res *mongo.SingleResult) (*models.Message, error) {
	var msg models.Message

	err := res.Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	return &msg, nil
}

func (r *messageRepo) GetByID(ctx context.Context, roomCode, id string) (*models.Message, error) {
	return r.decodeOne(r.coll.FindOne(ctx, byID(roomCode, id)))
}

func (r *messageRepo) ListByRoom(ctx context.Context, roomCode string, before time.Time, limit int) ([]*models.Message, error) {
	filter := bson.M{"roomCode": roomCode}
	if !before.IsZero() {
		filter["createdAt"] = bson.M{"$lt": before}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}

	msgs := make([]*models.Message, 0)
	if err = cur.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	// от старых к новым
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, nil
}

func (r *messageRepo) CountByRoom(ctx context.Context, roomCode string) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"roomCode": roomCode})
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}

	return n, nil
}

func (r *messageRepo) FindRecentDuplicate(ctx context.Context, q store.DuplicateQuery) (*models.Message, error) {
	filter := bson.M{
		"roomCode":  q.RoomCode,
		"userId":    q.UserID,
		"createdAt": bson.M{"$gte": q.Since},
	}

	if q.File {
		filter["fileMeta.name"] = q.FileName
	} else {
		filter["type"] = models.MessageText
		filter["content"] = q.Content
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	return r.decodeOne(r.coll.FindOne(ctx, filter, opts))
}

func (r *messageRepo) DistinctNicknames(ctx context.Context, roomCode, excludeUserID string) ([]string, error) {
	filter := bson.M{
		"roomCode": roomCode,
		"isSystem": bson.M{"$ne": true},
	}
	if excludeUserID != "" {
		filter["userId"] = bson.M{"$ne": excludeUserID}
	}

	values, err := r.coll.Distinct(ctx, "nickname", filter)
	if err != nil {
		return nil, fmt.Errorf("distinct nicknames: %w", err)
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}

	return out, nil
}

func (r *messageRepo) findOneAndSet(ctx context.Context, filter, update bson.M) (*models.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	return r.decodeOne(r.coll.FindOneAndUpdate(ctx, filter, update, opts))
}

func (r *messageRepo) UpdateContent(ctx context.Context, roomCode, id, content string, editedAt time.Time) (*models.Message, error) {
	return r.findOneAndSet(ctx, byID(roomCode, id), bson.M{
		"$set": bson.M{"content": content, "editedAt": editedAt},
	})
}

func (r *messageRepo) SoftDelete(ctx context.Context, roomCode, id, placeholder string) (*models.Message, error) {
	return r.findOneAndSet(ctx, byID(roomCode, id), bson.M{
		"$set":   bson.M{"content": placeholder, "deletedByAdmin": true, "type": models.MessageText},
		"$unset": bson.M{"fileMeta": ""},
	})
}

func (r *messageRepo) Delete(ctx context.Context, roomCode, id string) (int64, error) {
	res, err := r.coll.DeleteOne(ctx, byID(roomCode, id))
	if err != nil {
		return 0, fmt.Errorf("delete message: %w", err)
	}

	return res.DeletedCount, nil
}

func (r *messageRepo) Pin(ctx context.Context, roomCode, id string) ([]string, error) {
	if _, err := r.GetByID(ctx, roomCode, id); err != nil {
		return nil, err
	}

	pinnedFilter := bson.M{"roomCode": roomCode, "isPinned": true, "id": bson.M{"$ne": id}}

	values, err := r.coll.Distinct(ctx, "id", pinnedFilter)
	if err != nil {
		return nil, fmt.Errorf("find pinned: %w", err)
	}

	if _, err = r.coll.UpdateMany(ctx, pinnedFilter, bson.M{"$set": bson.M{"isPinned": false}}); err != nil {
		return nil, fmt.Errorf("unpin previous: %w", err)
	}

	if _, err = r.coll.UpdateOne(ctx, byID(roomCode, id), bson.M{"$set": bson.M{"isPinned": true}}); err != nil {
		return nil, fmt.Errorf("pin message: %w", err)
	}

	unpinned := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			unpinned = append(unpinned, s)
		}
	}
	sort.Strings(unpinned)

	return unpinned, nil
}

func (r *messageRepo) Unpin(ctx context.Context, roomCode, id string) (bool, error) {
	filter := byID(roomCode, id)
	filter["isPinned"] = true

	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"isPinned": false}})
	if err != nil {
		return false, fmt.Errorf("unpin message: %w", err)
	}

	return res.ModifiedCount == 1, nil
}

func reactionField(emoji string) (string, error) {
	if emoji == "" || strings.ContainsAny(emoji, ".$") {
		return "", apperr.Invalid("emoji", "unsupported value")
	}

	return "reactions." + emoji, nil
}

func (r *messageRepo) AddReaction(ctx context.Context, roomCode, id, emoji, userID string) (*models.Message, error) {
	field, err := reactionField(emoji)
	if err != nil {
		return nil, err
	}

	return r.findOneAndSet(ctx, byID(roomCode, id), bson.M{"$addToSet": bson.M{field: userID}})
}

func (r *messageRepo) RemoveReaction(ctx context.Context, roomCode, id, emoji, userID string) (*models.Message, error) {
	field, err := reactionField(emoji)
	if err != nil {
		return nil, err
	}

	msg, err := r.findOneAndSet(ctx, byID(roomCode, id), bson.M{"$pull": bson.M{field: userID}})
	if err != nil {
		return nil, err
	}

	if len(msg.Reactions[emoji]) == 0 {
		emptyFilter := byID(roomCode, id)
		emptyFilter[field] = bson.M{"$size": 0}
		if _, err = r.coll.UpdateOne(ctx, emptyFilter, bson.M{"$unset": bson.M{field: ""}}); err != nil {
			return nil, fmt.Errorf("drop empty reaction: %w", err)
		}
		delete(msg.Reactions, emoji)
	}

	return msg, nil
}

func (r *messageRepo) RenameAuthor(ctx context.Context, roomCode, userID, nickname, avatar string) (int64, error) {
	res, err := r.coll.UpdateMany(
		ctx,
		bson.M{"roomCode": roomCode, "userId": userID},
		bson.M{"$set": bson.M{"nickname": nickname, "avatar": avatar}},
	)
	if err != nil {
		return 0, fmt.Errorf("rename author: %w", err)
	}

	return res.ModifiedCount, nil
}

func (r *messageRepo) DeleteByRoom(ctx context.Context, roomCode string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"roomCode": roomCode})
	if err != nil {
		return 0, fmt.Errorf("delete room messages: %w", err)
	}

	return res.DeletedCount, nil
}

func (r *messageRepo) DeleteByRooms(ctx context.Context, codes []string) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	res, err := r.coll.DeleteMany(ctx, bson.M{"roomCode": bson.M{"$in": codes}})
	if err != nil {
		return 0, fmt.Errorf("delete rooms messages: %w", err)
	}

	return res.DeletedCount, nil
}
