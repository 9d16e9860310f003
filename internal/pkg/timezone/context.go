// Package timezone переносит часовой пояс запроса через context.Context
package timezone

import (
	"context"
	"time"
)

type locationKey struct{}

// WithLocation возвращает контекст с часовым поясом
func WithLocation(ctx context.Context, loc *time.Location) context.Context {
	if loc == nil {
		return ctx
	}
	return context.WithValue(ctx, locationKey{}, loc)
}

// FromContext возвращает пояс из контекста или UTC
func FromContext(ctx context.Context) *time.Location {
	if loc, ok := ctx.Value(locationKey{}).(*time.Location); ok {
		return loc
	}
	return time.UTC
}

// Format переводит t в пояс запроса
func Format(ctx context.Context, t time.Time) string {
	return t.In(FromContext(ctx)).Format("2006-01-02 15:04:05")
}
