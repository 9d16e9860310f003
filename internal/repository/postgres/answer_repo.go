package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
)

// AnswerRepo реализует repository.AnswerRepository
type AnswerRepo struct {
	db *gorm.DB
}

// NewAnswerRepo создает новый репозиторий ответов
func NewAnswerRepo(db *gorm.DB) *AnswerRepo {
	return &AnswerRepo{db: db}
}

// FindOne возвращает последнюю запись студента по вопросу в рамках занятия
func (r *AnswerRepo) FindOne(ctx context.Context, key entity.AnswerKey) (*entity.Answer, error) {
	var answer entity.Answer
	err := r.db.WithContext(ctx).
		Where("plan_id = ? AND question_id = ? AND student_id = ?", key.PlanID, key.QuestionID, key.StudentID).
		Order("id DESC").
		First(&answer).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &answer, nil
}

// FindByQuestion возвращает все записи вопроса в рамках занятия
func (r *AnswerRepo) FindByQuestion(ctx context.Context, questionID, planID int64) ([]entity.Answer, error) {
	var answers []entity.Answer
	err := r.db.WithContext(ctx).
		Where("question_id = ? AND plan_id = ?", questionID, planID).
		Order("id").
		Find(&answers).Error
	return answers, err
}

// Create сохраняет новую запись
func (r *AnswerRepo) Create(ctx context.Context, answer *entity.Answer) error {
	if err := r.db.WithContext(ctx).Create(answer).Error; err != nil {
		return fmt.Errorf("create answer plan=%d question=%d student=%d: %w",
			answer.PlanID, answer.QuestionID, answer.StudentID, err)
	}
	return nil
}

// UpdateIfNotNewer обновляет ответ, только если сохранённая запись не новее входящей
func (r *AnswerRepo) UpdateIfNotNewer(ctx context.Context, answer *entity.Answer) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.Answer{}).
		Where("id = ? AND update_time <= ?", answer.ID, answer.UpdatedAt).
		Updates(map[string]interface{}{
			"answer":      answer.Answer,
			"update_time": answer.UpdatedAt,
		})
	if result.Error != nil {
		return false, fmt.Errorf("update answer #%d: %w", answer.ID, result.Error)
	}
	return result.RowsAffected > 0, nil
}
