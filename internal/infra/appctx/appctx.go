package appctx

import (
	"context"
)

type ctxKey string

const (
	adminIDKey  ctxKey = "adminID"
	clientIPKey ctxKey = "clientIP"
)

// WithAdminID добавляет идентификатор администратора в контекст
func WithAdminID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, adminIDKey, id)
}

// AdminID извлекает идентификатор администратора из контекста
func AdminID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(adminIDKey).(string)
	return id, ok && id != ""
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
