package exchange

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
	"github.com/cleartonglll-ui/study-pro/pkg/monitoring"
)

// Coordinator проводит обмен баллов на сундук по схеме Try/Confirm/Cancel.
// БД - источник истины; хеш в кеше служит быстрым фильтром и зеркалом баланса.
type Coordinator struct {
	cfg    *Config
	points repository.PointRepository
	cache  repository.CacheRepository
	locks  repository.LockRepository
	log    *zap.Logger
}

// NewCoordinator создает координатор обменов
func NewCoordinator(cfg *Config, deps Dependencies) *Coordinator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Coordinator{
		cfg:    cfg,
		points: deps.Points,
		cache:  deps.Cache,
		locks:  deps.Locks,
		log:    deps.logger(),
	}
}

// Exchange обменивает баллы пользователя на сундук boxType.
// Отказы (занято, не хватает баллов, сбой) описываются в Result, а не ошибкой.
func (c *Coordinator) Exchange(ctx context.Context, userID int64, boxType int) *Result {
	res := &Result{UserID: userID, BoxType: boxType, Cost: c.cfg.Cost(boxType), State: StateInit}
	defer func() {
		monitoring.ExchangeOutcomes.WithLabelValues(string(res.Status)).Inc()
	}()

	leaseKey := LeaseKey(userID, boxType)
	token, ok, err := c.locks.AcquireLease(ctx, leaseKey, c.cfg.LeaseTTL)
	switch {
	case err != nil:
		c.log.Warn("[Exchange] Аренда недоступна, продолжаем без неё",
			zap.Int64("user_id", userID), zap.Int("box_type", boxType), zap.Error(err))
	case !ok:
		res.Status = StatusBusy
		res.Message = "exchange in progress, retry later"
		return res
	default:
		defer func() {
			if err := c.locks.ReleaseLease(context.WithoutCancel(ctx), leaseKey, token); err != nil {
				c.log.Warn("[Exchange] Не удалось снять аренду", zap.String("key", leaseKey), zap.Error(err))
			}
		}()
	}

	if err := c.try(ctx, userID, res.Cost); err != nil {
		res.Err = err
		if errors.Is(err, apperrors.ErrInsufficientPoints) {
			res.Status = StatusInsufficient
			res.Message = "insufficient points"
			return res
		}
		c.log.Error("[Exchange] Резервирование не выполнено",
			zap.Int64("user_id", userID), zap.Int("box_type", boxType), zap.Error(err))
		res.Status = StatusFailed
		res.Message = "exchange failed"
		return res
	}
	res.State = StateTried

	if err := c.confirm(ctx, userID, boxType, res.Cost); err != nil {
		res.Err = err
		res.Status = StatusFailed
		res.Message = "exchange failed"
		c.log.Error("[Exchange] Подтверждение не выполнено, отменяем",
			zap.Int64("user_id", userID), zap.Int("box_type", boxType), zap.Error(err))
		if cancelErr := c.cancel(ctx, userID, res.Cost); cancelErr != nil {
			c.log.Error("[Exchange] Отмена не выполнена, баллы остаются замороженными",
				zap.Int64("user_id", userID), zap.Int64("cost", res.Cost), zap.Error(cancelErr))
			return res
		}
		res.State = StateCancelled
		return res
	}

	res.State = StateConfirmed
	res.Status = StatusSuccess
	res.Message = "exchange succeeded"
	c.log.Info("[Exchange] Обмен выполнен",
		zap.Int64("user_id", userID), zap.Int("box_type", boxType), zap.Int64("cost", res.Cost))
	return res
}

// try замораживает cost баллов: сначала в кеше, затем в БД под блокировкой строки
func (c *Coordinator) try(ctx context.Context, userID, cost int64) error {
	frozenInCache, err := c.freezeInCache(ctx, userID, cost)
	if err != nil {
		return err
	}

	var account *entity.UserPoint
	err = c.points.WithinTx(ctx, func(tx repository.PointRepository) error {
		acc, err := lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if acc.Point < cost {
			return fmt.Errorf("%w: user %d has %d, needs %d", apperrors.ErrInsufficientPoints, userID, acc.Point, cost)
		}
		acc.Point -= cost
		acc.FrozenPoint += cost
		account = acc
		return tx.UpdateBalances(ctx, acc)
	})
	if err != nil {
		if frozenInCache {
			c.resyncMirror(ctx, userID)
		}
		return err
	}
	c.mirror(ctx, account)
	return nil
}

// freezeInCache возвращает true, если заморозка прошла в кеше.
// Недоступный кеш не ошибка: решение принимает БД.
func (c *Coordinator) freezeInCache(ctx context.Context, userID, cost int64) (bool, error) {
	if !c.cache.Enabled() {
		return false, nil
	}
	key := PointCacheKey(userID)

	outcome, err := c.cache.FreezePoints(ctx, key, cost)
	if err == nil && outcome == repository.FreezeMissing {
		acc, getErr := c.points.GetByUserID(ctx, userID)
		if getErr != nil {
			if errors.Is(getErr, apperrors.ErrNotFound) {
				return false, fmt.Errorf("%w: user %d", apperrors.ErrAccountNotFound, userID)
			}
			return false, fmt.Errorf("load point account for user %d: %w", userID, getErr)
		}
		c.mirror(ctx, acc)
		outcome, err = c.cache.FreezePoints(ctx, key, cost)
	}
	if err != nil {
		c.log.Warn("[Exchange] Кеш недоступен, резервируем только в БД", zap.Int64("user_id", userID), zap.Error(err))
		return false, nil
	}

	switch outcome {
	case repository.FreezeOK:
		return true, nil
	case repository.FreezeInsufficient:
		// зеркало могло отстать от БД: отказываем, только если БД подтверждает нехватку
		acc, getErr := c.points.GetByUserID(ctx, userID)
		if getErr == nil && acc.Point >= cost {
			c.log.Info("[Exchange] Зеркало баланса устарело, резервируем только в БД",
				zap.Int64("user_id", userID), zap.Int64("mirror_cost", cost))
			return false, nil
		}
		return false, fmt.Errorf("%w: user %d, cost %d", apperrors.ErrInsufficientPoints, userID, cost)
	default:
		return false, nil
	}
}

// confirm списывает замороженные баллы и выдаёт сундук
func (c *Coordinator) confirm(ctx context.Context, userID int64, boxType int, cost int64) error {
	var account *entity.UserPoint
	err := c.points.WithinTx(ctx, func(tx repository.PointRepository) error {
		acc, err := lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if acc.FrozenPoint < cost {
			return fmt.Errorf("%w: user %d frozen %d below cost %d", apperrors.ErrConflict, userID, acc.FrozenPoint, cost)
		}
		acc.FrozenPoint -= cost
		if err := tx.UpdateBalances(ctx, acc); err != nil {
			return err
		}
		account = acc
		return tx.CreateTreasureBox(ctx, &entity.TreasureBox{
			UserID:    userID,
			BoxType:   boxType,
			Status:    entity.TreasureBoxStatusRedeemed,
			PointCost: cost,
		})
	})
	if err != nil {
		return err
	}
	c.mirror(ctx, account)
	return nil
}

// cancel возвращает замороженные баллы в доступные
func (c *Coordinator) cancel(ctx context.Context, userID, cost int64) error {
	var account *entity.UserPoint
	err := c.points.WithinTx(ctx, func(tx repository.PointRepository) error {
		acc, err := lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if acc.FrozenPoint < cost {
			return fmt.Errorf("%w: user %d frozen %d below cost %d", apperrors.ErrConflict, userID, acc.FrozenPoint, cost)
		}
		acc.FrozenPoint -= cost
		acc.Point += cost
		account = acc
		return tx.UpdateBalances(ctx, acc)
	})
	if err != nil {
		return err
	}
	c.mirror(ctx, account)
	return nil
}

func lockAccount(ctx context.Context, tx repository.PointRepository, userID int64) (*entity.UserPoint, error) {
	acc, err := tx.GetByUserIDForUpdate(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", apperrors.ErrAccountNotFound, userID)
		}
		return nil, fmt.Errorf("lock point account for user %d: %w", userID, err)
	}
	return acc, nil
}

// mirror копирует баланс из БД в кеш на MirrorTTL. Ошибки только логируются.
func (c *Coordinator) mirror(ctx context.Context, acc *entity.UserPoint) {
	if acc == nil || !c.cache.Enabled() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	key := PointCacheKey(acc.UserID)
	err := c.cache.HSet(ctx, key, map[string]interface{}{
		"point":       acc.Point,
		"frozenPoint": acc.FrozenPoint,
	})
	if err == nil && c.cfg.MirrorTTL > 0 {
		err = c.cache.Expire(ctx, key, c.cfg.MirrorTTL)
	}
	if err != nil {
		c.log.Debug("[Exchange] Зеркало баланса не обновлено", zap.Int64("user_id", acc.UserID), zap.Error(err))
	}
}

// resyncMirror перечитывает счёт из БД после отката заморозки в кеше
func (c *Coordinator) resyncMirror(ctx context.Context, userID int64) {
	acc, err := c.points.GetByUserID(context.WithoutCancel(ctx), userID)
	if err != nil {
		c.invalidate(ctx, userID)
		return
	}
	c.mirror(ctx, acc)
}

func (c *Coordinator) invalidate(ctx context.Context, userID int64) {
	if !c.cache.Enabled() {
		return
	}
	if err := c.cache.Delete(context.WithoutCancel(ctx), PointCacheKey(userID)); err != nil {
		c.log.Debug("[Exchange] Не удалось сбросить зеркало", zap.Int64("user_id", userID), zap.Error(err))
	}
}
