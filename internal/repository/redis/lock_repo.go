package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// LockRepo реализует repository.LockRepository через SET NX с токеном владельца
type LockRepo struct {
	client redis.UniversalClient
}

// NewLockRepo создает репозиторий аренд
func NewLockRepo(client redis.UniversalClient) (*LockRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis client cannot be nil for LockRepo")
	}
	return &LockRepo{client: client}, nil
}

// AcquireLease пытается занять ключ. Не блокирует.
func (r *LockRepo) AcquireLease(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLease снимает аренду, если она ещё принадлежит token
func (r *LockRepo) ReleaseLease(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseLeaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lease %s: %w", key, err)
	}
	return nil
}
