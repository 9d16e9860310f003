package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
	redisRepo "github.com/cleartonglll-ui/study-pro/internal/repository/redis"
)

// memPointRepo - PointRepository в памяти. Транзакции выполняются по одной
// и откатываются к снимку при ошибке, что соответствует блокировке строки.
type memPointRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex

	accounts map[int64]entity.UserPoint
	boxes    []entity.TreasureBox
	nextID   uint

	failBoxes    bool
	conflictOnce bool
	parallel     *entity.UserPoint
}

func newMemPointRepo() *memPointRepo {
	return &memPointRepo{accounts: map[int64]entity.UserPoint{}, nextID: 1}
}

func (r *memPointRepo) seed(userID, point int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[userID] = entity.UserPoint{ID: r.nextID, UserID: userID, Point: point}
	r.nextID++
}

func (r *memPointRepo) GetByUserID(_ context.Context, userID int64) (*entity.UserPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &acc, nil
}

func (r *memPointRepo) GetByUserIDForUpdate(ctx context.Context, userID int64) (*entity.UserPoint, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *memPointRepo) Create(_ context.Context, account *entity.UserPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictOnce {
		// параллельный запрос успел создать счёт
		r.conflictOnce = false
		r.parallel = &entity.UserPoint{ID: r.nextID, UserID: account.UserID, Point: 300}
		r.nextID++
		return fmt.Errorf("%w: point account for user %d", apperrors.ErrConflict, account.UserID)
	}
	if _, ok := r.accounts[account.UserID]; ok {
		return fmt.Errorf("%w: point account for user %d", apperrors.ErrConflict, account.UserID)
	}
	account.ID = r.nextID
	r.nextID++
	r.accounts[account.UserID] = *account
	return nil
}

func (r *memPointRepo) UpdateBalances(_ context.Context, account *entity.UserPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[account.UserID]
	if !ok || acc.ID != account.ID {
		return apperrors.ErrNotFound
	}
	acc.Point = account.Point
	acc.FrozenPoint = account.FrozenPoint
	r.accounts[account.UserID] = acc
	return nil
}

func (r *memPointRepo) CreateTreasureBox(_ context.Context, box *entity.TreasureBox) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failBoxes {
		return errors.New("insert treasure box: connection reset")
	}
	box.ID = uint(len(r.boxes) + 1)
	r.boxes = append(r.boxes, *box)
	return nil
}

func (r *memPointRepo) WithinTx(_ context.Context, fn func(repo repository.PointRepository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	accounts := make(map[int64]entity.UserPoint, len(r.accounts))
	for k, v := range r.accounts {
		accounts[k] = v
	}
	boxes := len(r.boxes)
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.accounts = accounts
		r.boxes = r.boxes[:boxes]
		if r.parallel != nil {
			// параллельная транзакция зафиксирована независимо от нашего отката
			r.accounts[r.parallel.UserID] = *r.parallel
			r.parallel = nil
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memPointRepo) account(t *testing.T, userID int64) entity.UserPoint {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[userID]
	require.True(t, ok, "счёт пользователя %d не найден", userID)
	return acc
}

func (r *memPointRepo) boxCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boxes)
}

func (r *memPointRepo) boxCostSum() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, b := range r.boxes {
		sum += b.PointCost
	}
	return sum
}

type testEnv struct {
	mr    *miniredis.Miniredis
	repo  *memPointRepo
	cache *redisRepo.CacheRepo
	locks *redisRepo.LockRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache, err := redisRepo.NewCacheRepo(client)
	require.NoError(t, err)
	locks, err := redisRepo.NewLockRepo(client)
	require.NoError(t, err)
	return &testEnv{mr: mr, repo: newMemPointRepo(), cache: cache, locks: locks}
}

func (e *testEnv) coordinator() *Coordinator {
	return NewCoordinator(DefaultConfig(), Dependencies{Points: e.repo, Cache: e.cache, Locks: e.locks})
}
