package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
)

// CacheRepo реализует repository.CacheRepository поверх Redis
type CacheRepo struct {
	client redis.UniversalClient
}

// NewCacheRepo создает новый репозиторий кеша и возвращает ошибку при проблемах
func NewCacheRepo(client redis.UniversalClient) (*CacheRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis client cannot be nil for CacheRepo")
	}
	return &CacheRepo{client: client}, nil
}

// Enabled всегда true для живого кеша
func (r *CacheRepo) Enabled() bool {
	return true
}

// Delete удаляет ключи из кеша
func (r *CacheRepo) Delete(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// Exists проверяет существование ключа
func (r *CacheRepo) Exists(ctx context.Context, key string) (bool, error) {
	result, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// Expire устанавливает время жизни ключа
func (r *CacheRepo) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return r.client.Expire(ctx, key, expiration).Err()
}

// SetNX устанавливает значение ключа, только если ключ не существует.
// Возвращает true, если ключ был установлен, false - если ключ уже существовал.
func (r *CacheRepo) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, expiration).Result()
}

// IncrementWindow увеличивает счётчик окна одним скриптом: INCR и PEXPIRE не разделены,
// поэтому ключ не может остаться без TTL
func (r *CacheRepo) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := incrementWindowScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, err
	}
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected increment window reply: %v", res)
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected counter value: %v", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected ttl value: %v", values[1])
	}
	return count, time.Duration(ttlMs) * time.Millisecond, nil
}

// HGet читает поле хеша
func (r *CacheRepo) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := r.client.HGet(ctx, key, field).Result()
	return val, mapNil(err)
}

// HSet записывает поля хеша
func (r *CacheRepo) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	return r.client.HSet(ctx, key, values).Err()
}

// HGetAll читает весь хеш. Для отсутствующего ключа возвращает пустую карту.
func (r *CacheRepo) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

// RPush добавляет значения в конец списка
func (r *CacheRepo) RPush(ctx context.Context, key string, values ...interface{}) error {
	return r.client.RPush(ctx, key, values...).Err()
}

// LPop забирает первый элемент списка
func (r *CacheRepo) LPop(ctx context.Context, key string) (string, error) {
	val, err := r.client.LPop(ctx, key).Result()
	return val, mapNil(err)
}

// LLen возвращает длину списка
func (r *CacheRepo) LLen(ctx context.Context, key string) (int64, error) {
	return r.client.LLen(ctx, key).Result()
}

// CompareAndSetField выполняет Lua-скрипт сравнения и записи поля хеша
func (r *CacheRepo) CompareAndSetField(ctx context.Context, key, field, value string, ttl time.Duration) (bool, string, error) {
	res, err := compareAndSetScript.Run(ctx, r.client, []string{key}, field, value, int64(ttl/time.Second)).Result()
	if err != nil {
		return false, "", fmt.Errorf("compare-and-set %s/%s: %w", key, field, err)
	}
	reply, ok := res.([]interface{})
	if !ok || len(reply) != 2 {
		return false, "", fmt.Errorf("compare-and-set %s/%s: unexpected reply %v", key, field, res)
	}
	changed, _ := reply[0].(int64)
	current, _ := reply[1].(string)
	return changed == 1, current, nil
}

// FreezePoints выполняет Lua-скрипт заморозки баллов
func (r *CacheRepo) FreezePoints(ctx context.Context, key string, cost int64) (repository.FreezeOutcome, error) {
	code, err := freezePointsScript.Run(ctx, r.client, []string{key}, strconv.FormatInt(cost, 10)).Int64()
	if err != nil {
		return repository.FreezeMissing, fmt.Errorf("freeze points %s: %w", key, err)
	}
	switch code {
	case 1:
		return repository.FreezeOK, nil
	case -1:
		return repository.FreezeMissing, nil
	case -2:
		return repository.FreezeInsufficient, nil
	default:
		return repository.FreezeMissing, fmt.Errorf("freeze points %s: unexpected code %d", key, code)
	}
}

func mapNil(err error) error {
	if errors.Is(err, redis.Nil) {
		return apperrors.ErrNotFound
	}
	return err
}
