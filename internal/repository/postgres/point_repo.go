package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
)

// PointRepo реализует repository.PointRepository
type PointRepo struct {
	db *gorm.DB
}

// NewPointRepo создает новый репозиторий баллов
func NewPointRepo(db *gorm.DB) *PointRepo {
	return &PointRepo{db: db}
}

// GetByUserID возвращает счёт пользователя
func (r *PointRepo) GetByUserID(ctx context.Context, userID int64) (*entity.UserPoint, error) {
	var account entity.UserPoint
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &account, nil
}

// GetByUserIDForUpdate возвращает счёт с блокировкой строки (SELECT ... FOR UPDATE)
func (r *PointRepo) GetByUserIDForUpdate(ctx context.Context, userID int64) (*entity.UserPoint, error) {
	var account entity.UserPoint
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &account, nil
}

// Create создает счёт. Повторная вставка для того же пользователя даёт ErrConflict.
func (r *PointRepo) Create(ctx context.Context, account *entity.UserPoint) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: point account for user %d", apperrors.ErrConflict, account.UserID)
		}
		return fmt.Errorf("create point account for user %d: %w", account.UserID, err)
	}
	return nil
}

// UpdateBalances записывает доступные и замороженные баллы
func (r *PointRepo) UpdateBalances(ctx context.Context, account *entity.UserPoint) error {
	result := r.db.WithContext(ctx).Model(&entity.UserPoint{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"point":        account.Point,
			"frozen_point": account.FrozenPoint,
		})
	if result.Error != nil {
		return fmt.Errorf("update balances for user %d: %w", account.UserID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: point account #%d", apperrors.ErrNotFound, account.ID)
	}
	return nil
}

// CreateTreasureBox сохраняет полученный сундук
func (r *PointRepo) CreateTreasureBox(ctx context.Context, box *entity.TreasureBox) error {
	if err := r.db.WithContext(ctx).Create(box).Error; err != nil {
		return fmt.Errorf("create treasure box for user %d: %w", box.UserID, err)
	}
	return nil
}

// WithinTx выполняет fn в транзакции
func (r *PointRepo) WithinTx(ctx context.Context, fn func(repo repository.PointRepository) error) (err error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(&PointRepo{db: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RandomBoxRepo реализует repository.RandomBoxRepository
type RandomBoxRepo struct {
	db *gorm.DB
}

// NewRandomBoxRepo создает новый репозиторий случайных сундуков
func NewRandomBoxRepo(db *gorm.DB) *RandomBoxRepo {
	return &RandomBoxRepo{db: db}
}

// Create сохраняет запись о полученном сундуке
func (r *RandomBoxRepo) Create(ctx context.Context, box *entity.RandomTreasureBox) error {
	return r.db.WithContext(ctx).Create(box).Error
}

// ListByActivity возвращает сундуки активности
func (r *RandomBoxRepo) ListByActivity(ctx context.Context, activityID string) ([]entity.RandomTreasureBox, error) {
	var boxes []entity.RandomTreasureBox
	err := r.db.WithContext(ctx).Where("activity_id = ?", activityID).Order("id").Find(&boxes).Error
	return boxes, err
}

var (
	_ repository.AnswerRepository    = (*AnswerRepo)(nil)
	_ repository.PointRepository     = (*PointRepo)(nil)
	_ repository.RandomBoxRepository = (*RandomBoxRepo)(nil)
)
