package answersync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
)

// Источники статистики
const (
	SourceCache = "cache"
	SourceDB    = "db"
)

// Statistics считает распределение ответов: сначала по кешу, при ошибке - по БД
type Statistics struct {
	cfg   *Config
	cache repository.CacheRepository
	repo  repository.AnswerRepository
	log   *zap.Logger
}

// NewStatistics создает агрегатор статистики
func NewStatistics(cfg *Config, deps Dependencies) *Statistics {
	return &Statistics{
		cfg:   cfg,
		cache: deps.Cache,
		repo:  deps.AnswerRepo,
		log:   deps.logger(),
	}
}

// Get возвращает статистику по вопросу. Недоступный кеш - не ошибка: ответ строится по БД.
func (s *Statistics) Get(ctx context.Context, questionID, planID int64) (*entity.AnswerStatistic, error) {
	if s.cache.Enabled() {
		answers, err := s.cache.HGetAll(ctx, AnswerCacheKey(planID, questionID))
		if err == nil {
			values := make([]string, 0, len(answers))
			for _, v := range answers {
				values = append(values, v)
			}
			return entity.NewAnswerStatistic(questionID, planID, s.cfg.RosterSize, values, SourceCache), nil
		}
		s.log.Warn("[Statistics] Кеш недоступен, считаем по БД",
			zap.Int64("question_id", questionID), zap.Int64("plan_id", planID), zap.Error(err))
	}
	return s.GetFromDB(ctx, questionID, planID)
}

// GetFromDB считает статистику по последней записи каждого студента
func (s *Statistics) GetFromDB(ctx context.Context, questionID, planID int64) (*entity.AnswerStatistic, error) {
	rows, err := s.repo.FindByQuestion(ctx, questionID, planID)
	if err != nil {
		return nil, fmt.Errorf("load answers for question %d plan %d: %w", questionID, planID, err)
	}

	latest := make(map[int64]*entity.Answer, len(rows))
	for idx := range rows {
		row := &rows[idx]
		prev, ok := latest[row.StudentID]
		if !ok || row.CreatedAt.After(prev.CreatedAt) {
			latest[row.StudentID] = row
		}
	}

	values := make([]string, 0, len(latest))
	for _, row := range latest {
		values = append(values, entity.NormalizeAnswer(entity.DecodeAnswerPayload(row.Answer).Effective()))
	}
	return entity.NewAnswerStatistic(questionID, planID, s.cfg.RosterSize, values, SourceDB), nil
}
