package repository

import (
	"context"
	"time"
)

// LockRepository выдаёт короткоживущие неблокирующие аренды ключей
type LockRepository interface {
	// AcquireLease пытается занять key на ttl. ok == false, если аренда занята другим владельцем.
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// ReleaseLease снимает аренду, только если она всё ещё принадлежит token.
	ReleaseLease(ctx context.Context, key, token string) error
}
