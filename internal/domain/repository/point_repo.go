package repository

import (
	"context"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
)

// PointRepository определяет методы для работы со счетами баллов и сундуками
type PointRepository interface {
	// GetByUserID возвращает счёт или errors.ErrNotFound
	GetByUserID(ctx context.Context, userID int64) (*entity.UserPoint, error)
	// GetByUserIDForUpdate то же, но с блокировкой строки до конца транзакции
	GetByUserIDForUpdate(ctx context.Context, userID int64) (*entity.UserPoint, error)
	Create(ctx context.Context, account *entity.UserPoint) error
	// UpdateBalances записывает оба поля баланса
	UpdateBalances(ctx context.Context, account *entity.UserPoint) error
	CreateTreasureBox(ctx context.Context, box *entity.TreasureBox) error
	// WithinTx выполняет fn в транзакции; ошибка fn откатывает все изменения.
	WithinTx(ctx context.Context, fn func(repo PointRepository) error) error
}

// RandomBoxRepository сохраняет полученные случайные сундуки
type RandomBoxRepository interface {
	Create(ctx context.Context, box *entity.RandomTreasureBox) error
	ListByActivity(ctx context.Context, activityID string) ([]entity.RandomTreasureBox, error)
}
