package repository

import (
	"context"
	"time"
)

// FreezeOutcome - результат атомарной заморозки баллов в кеше
type FreezeOutcome int

const (
	// FreezeOK - баллы перенесены из доступных в замороженные
	FreezeOK FreezeOutcome = iota
	// FreezeMissing - зеркало счёта отсутствует в кеше
	FreezeMissing
	// FreezeInsufficient - доступных баллов меньше стоимости
	FreezeInsufficient
)

// CacheRepository определяет методы для работы с кешем.
// Реализации: живой Redis и заглушка, у которой Enabled() == false
// и все операции возвращают errors.ErrCacheUnavailable.
type CacheRepository interface {
	Enabled() bool

	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)

	// IncrementWindow атомарно увеличивает счётчик окна и ставит TTL window,
	// если у ключа его нет. Возвращает новое значение и остаток окна.
	IncrementWindow(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)

	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key string, values map[string]interface{}) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	RPush(ctx context.Context, key string, values ...interface{}) error
	LPop(ctx context.Context, key string) (string, error)
	LLen(ctx context.Context, key string) (int64, error)

	// CompareAndSetField атомарно записывает value в поле хеша, если оно отличается
	// от текущего, и продлевает TTL ключа. changed == false, если значение совпало.
	CompareAndSetField(ctx context.Context, key, field, value string, ttl time.Duration) (changed bool, current string, err error)

	// FreezePoints атомарно переносит cost из поля point в поле frozenPoint хеша key.
	FreezePoints(ctx context.Context, key string, cost int64) (FreezeOutcome, error)
}
