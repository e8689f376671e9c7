package kv

import (
	"context"
	"time"
)

// disabledStore используется при COORD_BACKEND=none: каждый вызов сообщает о недоступности
type disabledStore struct{}

func NewDisabledStore() Store {
	return disabledStore{}
}

func (disabledStore) SAdd(context.Context, string, ...string) error { return ErrUnavailable }
func (disabledStore) SRem(context.Context, string, ...string) error { return ErrUnavailable }
func (disabledStore) SCard(context.Context, string) (int64, error) { return 0, ErrUnavailable }
func (disabledStore) SMembers(context.Context, string) ([]string, error) {
	return nil, ErrUnavailable
}
func (disabledStore) HSet(context.Context, string, map[string]string) error { return ErrUnavailable }
func (disabledStore) HGetAll(context.Context, string) (map[string]string, error) {
	return nil, ErrUnavailable
}
func (disabledStore) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, ErrUnavailable
}
func (disabledStore) SetEx(context.Context, string, string, time.Duration) error {
	return ErrUnavailable
}
func (disabledStore) Expire(context.Context, string, time.Duration) error { return ErrUnavailable }
func (disabledStore) GetDel(context.Context, string) (string, error)     { return "", ErrUnavailable }
func (disabledStore) Del(context.Context, ...string) error               { return ErrUnavailable }
func (disabledStore) Scan(context.Context, string) ([]string, error)     { return nil, ErrUnavailable }
