package redis

import (
	"context"
	"time"

	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
)

// DisabledCache - заглушка кеша для запуска без Redis.
// Каждая операция возвращает ErrCacheUnavailable, и сервисы уходят в БД.
type DisabledCache struct{}

// NewDisabledCache создает заглушку кеша
func NewDisabledCache() *DisabledCache {
	return &DisabledCache{}
}

func (DisabledCache) Enabled() bool { return false }

func (DisabledCache) Delete(context.Context, ...string) error {
	return apperrors.ErrCacheUnavailable
}

func (DisabledCache) Exists(context.Context, string) (bool, error) {
	return false, apperrors.ErrCacheUnavailable
}

func (DisabledCache) Expire(context.Context, string, time.Duration) error {
	return apperrors.ErrCacheUnavailable
}

func (DisabledCache) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	return false, apperrors.ErrCacheUnavailable
}

func (DisabledCache) IncrementWindow(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, apperrors.ErrCacheUnavailable
}

func (DisabledCache) HGet(context.Context, string, string) (string, error) {
	return "", apperrors.ErrCacheUnavailable
}

func (DisabledCache) HSet(context.Context, string, map[string]interface{}) error {
	return apperrors.ErrCacheUnavailable
}

func (DisabledCache) HGetAll(context.Context, string) (map[string]string, error) {
	return nil, apperrors.ErrCacheUnavailable
}

func (DisabledCache) RPush(context.Context, string, ...interface{}) error {
	return apperrors.ErrCacheUnavailable
}

func (DisabledCache) LPop(context.Context, string) (string, error) {
	return "", apperrors.ErrCacheUnavailable
}

func (DisabledCache) LLen(context.Context, string) (int64, error) {
	return 0, apperrors.ErrCacheUnavailable
}

func (DisabledCache) CompareAndSetField(context.Context, string, string, string, time.Duration) (bool, string, error) {
	return false, "", apperrors.ErrCacheUnavailable
}

func (DisabledCache) FreezePoints(context.Context, string, int64) (repository.FreezeOutcome, error) {
	return repository.FreezeMissing, apperrors.ErrCacheUnavailable
}

// DisabledLock - аренды без Redis: всегда ошибка, вызывающий продолжает без аренды
type DisabledLock struct{}

// NewDisabledLock создает заглушку аренд
func NewDisabledLock() *DisabledLock {
	return &DisabledLock{}
}

func (DisabledLock) AcquireLease(context.Context, string, time.Duration) (string, bool, error) {
	return "", false, apperrors.ErrCacheUnavailable
}

func (DisabledLock) ReleaseLease(context.Context, string, string) error {
	return nil
}

var (
	_ repository.CacheRepository = (*CacheRepo)(nil)
	_ repository.CacheRepository = DisabledCache{}
	_ repository.LockRepository  = (*LockRepo)(nil)
	_ repository.LockRepository  = DisabledLock{}
)
