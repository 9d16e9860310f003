package repository

import (
	"context"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
)

// AnswerRepository определяет методы для работы с ответами студентов
type AnswerRepository interface {
	// FindOne возвращает запись по ключу или errors.ErrNotFound
	FindOne(ctx context.Context, key entity.AnswerKey) (*entity.Answer, error)
	// FindByQuestion возвращает все записи вопроса в рамках занятия
	FindByQuestion(ctx context.Context, questionID, planID int64) ([]entity.Answer, error)
	Create(ctx context.Context, answer *entity.Answer) error
	// UpdateIfNotNewer обновляет ответ и время изменения, если сохранённая запись не новее.
	// Возвращает false, если запись новее и обновление пропущено.
	UpdateIfNotNewer(ctx context.Context, answer *entity.Answer) (bool, error)
}
