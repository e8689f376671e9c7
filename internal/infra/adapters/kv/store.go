package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable - хранилище недоступно, вызывающий обязан деградировать
	ErrUnavailable = errors.New("coordination store unavailable")
	ErrNotFound    = errors.New("key not found")
)

// Store - эфемерное координационное хранилище. Любой вызов может завершиться ошибкой
type Store interface {
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SCard(ctx context.Context, key string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	HSet(ctx context.Context, key string, values map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// IncrWithExpiry атомарно увеличивает счётчик и взводит TTL при первом увеличении
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)

	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// GetDel читает и удаляет ключ за одну операцию
	GetDel(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

func RoomUsersKey(roomCode string) string {
	return "room:" + roomCode + ":users"
}

func RoomPattern(roomCode string) string {
	return "room:" + roomCode + ":*"
}

func UserKey(userID string) string {
	return "user:" + userID
}

func RateKey(action, subject string) string {
	return "rl:" + action + ":" + subject
}

func PairingKey(code string) string {
	return "pair:" + code
}
