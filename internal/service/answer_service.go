package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
)

// AnswerService записывает ответы сразу в БД, минуя кеш и отложенную сверку
type AnswerService struct {
	answerRepo repository.AnswerRepository
	log        *zap.Logger
	now        func() time.Time
}

// NewAnswerService создает сервис прямой записи ответов
func NewAnswerService(answerRepo repository.AnswerRepository, log *zap.Logger) *AnswerService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AnswerService{answerRepo: answerRepo, log: log, now: time.Now}
}

// SubmitSingle хранит одну строку на студента: первый ответ и последний.
// Первая отправка пишет {"first_ans"}, следующие переписывают строку в {"first_ans","last_ans"}.
func (s *AnswerService) SubmitSingle(ctx context.Context, planID, questionID, studentID int64, raw string) (*entity.Answer, error) {
	answer, err := validateAnswer(planID, questionID, studentID, raw)
	if err != nil {
		return nil, err
	}
	key := entity.AnswerKey{PlanID: planID, QuestionID: questionID, StudentID: studentID}
	now := s.now()

	existing, err := s.answerRepo.FindOne(ctx, key)
	if errors.Is(err, apperrors.ErrNotFound) {
		row := &entity.Answer{
			PlanID:     planID,
			QuestionID: questionID,
			StudentID:  studentID,
			Answer:     entity.FirstOnlyPayload(answer).Encode(),
			IsFirst:    true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.answerRepo.Create(ctx, row); err != nil {
			return nil, fmt.Errorf("create answer: %w", err)
		}
		return row, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find answer: %w", err)
	}

	existing.Answer = entity.DecodeAnswerPayload(existing.Answer).WithNext(answer).Encode()
	existing.UpdatedAt = now
	updated, err := s.answerRepo.UpdateIfNotNewer(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("update answer #%d: %w", existing.ID, err)
	}
	if !updated {
		s.log.Warn("[AnswerService] Строка изменена более поздней записью, ответ не применён",
			zap.Int64("plan_id", planID), zap.Int64("question_id", questionID), zap.Int64("student_id", studentID))
	}
	return existing, nil
}

// SubmitHistory добавляет новую строку на каждую отправку.
// Статистика по БД берёт последнюю строку студента.
func (s *AnswerService) SubmitHistory(ctx context.Context, planID, questionID, studentID int64, raw string) (*entity.Answer, error) {
	answer, err := validateAnswer(planID, questionID, studentID, raw)
	if err != nil {
		return nil, err
	}
	now := s.now()
	row := &entity.Answer{
		PlanID:     planID,
		QuestionID: questionID,
		StudentID:  studentID,
		Answer:     answer,
		IsFirst:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.answerRepo.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	return row, nil
}

func validateAnswer(planID, questionID, studentID int64, raw string) (string, error) {
	if planID <= 0 || questionID <= 0 || studentID <= 0 {
		return "", fmt.Errorf("%w: plan, question and student ids must be positive", apperrors.ErrValidation)
	}
	answer := entity.NormalizeAnswer(raw)
	if answer == "" {
		return "", fmt.Errorf("%w: answer is empty", apperrors.ErrValidation)
	}
	return answer, nil
}
