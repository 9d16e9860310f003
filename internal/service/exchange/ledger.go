package exchange

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
)

// AddPoints начисляет баллы, создавая счёт при первом начислении
func (c *Coordinator) AddPoints(ctx context.Context, userID, points int64) (*entity.UserPoint, error) {
	if userID <= 0 || points <= 0 {
		return nil, fmt.Errorf("%w: user id and points must be positive", apperrors.ErrValidation)
	}

	var account *entity.UserPoint
	grant := func(tx repository.PointRepository) error {
		acc, err := tx.GetByUserIDForUpdate(ctx, userID)
		if errors.Is(err, apperrors.ErrNotFound) {
			acc = &entity.UserPoint{UserID: userID, Point: points}
			if err := tx.Create(ctx, acc); err != nil {
				return err
			}
			account = acc
			return nil
		}
		if err != nil {
			return err
		}
		acc.Point += points
		account = acc
		return tx.UpdateBalances(ctx, acc)
	}

	err := c.points.WithinTx(ctx, grant)
	if errors.Is(err, apperrors.ErrConflict) {
		// счёт создан параллельным запросом: повторяем как обновление
		c.log.Debug("[Exchange] Счёт создан параллельно, повторяем начисление", zap.Int64("user_id", userID))
		err = c.points.WithinTx(ctx, grant)
	}
	if err != nil {
		return nil, fmt.Errorf("add %d points to user %d: %w", points, userID, err)
	}

	c.invalidate(ctx, userID)
	c.log.Info("[Exchange] Баллы начислены", zap.Int64("user_id", userID), zap.Int64("points", points))
	return account, nil
}

// GetPoints возвращает баланс из БД. Неизвестный пользователь - нулевой баланс.
func (c *Coordinator) GetPoints(ctx context.Context, userID int64) (*entity.UserPoint, error) {
	acc, err := c.points.GetByUserID(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return &entity.UserPoint{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get points for user %d: %w", userID, err)
	}
	return acc, nil
}
