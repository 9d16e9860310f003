package answersync

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
	"github.com/cleartonglll-ui/study-pro/pkg/monitoring"
)

// SubmitOutcome - чем закончился приём ответа
type SubmitOutcome string

const (
	// OutcomeUnchanged - значение совпало с принятым ранее, ничего не делаем
	OutcomeUnchanged SubmitOutcome = "unchanged"
	// OutcomeScheduled - значение принято в кеш, сверка поставлена или уже ожидает
	OutcomeScheduled SubmitOutcome = "scheduled"
	// OutcomeFallback - кеш недоступен, запись передана на сохранение в БД
	OutcomeFallback SubmitOutcome = "fallback"
	// OutcomeDropped - очередь переполнена, запись отброшена (OverflowDrop)
	OutcomeDropped SubmitOutcome = "dropped"
)

// Scheduler ставит снимки на отложенную сверку (Reconciler)
type Scheduler interface {
	Schedule(key entity.AnswerKey, value string) (bool, error)
	Forget(key entity.AnswerKey)
}

// Ingestor принимает ответы: атомарно пишет в кеш и ставит отложенную сверку.
// При любых проблемах с кешем ответ уходит на прямое сохранение в БД.
type Ingestor struct {
	cfg       *Config
	cache     repository.CacheRepository
	scheduler Scheduler
	sink      Sink
	log       *zap.Logger
	now       func() time.Time
}

// NewIngestor создает приёмник ответов
func NewIngestor(cfg *Config, deps Dependencies, scheduler Scheduler, sink Sink) *Ingestor {
	return &Ingestor{
		cfg:       cfg,
		cache:     deps.Cache,
		scheduler: scheduler,
		sink:      sink,
		log:       deps.logger(),
		now:       time.Now,
	}
}

// Submit принимает ответ студента. Ошибки не возвращаются: исход описывает SubmitOutcome.
func (i *Ingestor) Submit(ctx context.Context, planID, questionID, studentID int64, rawAnswer string) SubmitOutcome {
	outcome := i.submit(ctx, entity.AnswerKey{PlanID: planID, QuestionID: questionID, StudentID: studentID},
		entity.NormalizeAnswer(rawAnswer))
	monitoring.AnswerSubmissions.WithLabelValues(string(outcome)).Inc()
	return outcome
}

func (i *Ingestor) submit(ctx context.Context, key entity.AnswerKey, answer string) SubmitOutcome {
	if !i.cache.Enabled() {
		return i.fallback(ctx, key, answer)
	}

	cacheKey := AnswerCacheKey(key.PlanID, key.QuestionID)
	field := strconv.FormatInt(key.StudentID, 10)

	changed, _, err := i.cache.CompareAndSetField(ctx, cacheKey, field, answer, i.cfg.AnswerTTL)
	if err != nil {
		i.log.Warn("[Ingestor] Скрипт не выполнен, сохраняем в БД", append(keyFields(key), zap.Error(err))...)
		if delErr := i.cache.Delete(ctx, cacheKey); delErr != nil {
			i.log.Debug("[Ingestor] Не удалось удалить ключ", zap.String("key", cacheKey), zap.Error(delErr))
		}
		return i.fallback(ctx, key, answer)
	}
	if !changed {
		return OutcomeUnchanged
	}

	// значение могло исчезнуть сразу после записи (вытеснение, сбой)
	if _, err := i.cache.HGet(ctx, cacheKey, field); err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			i.log.Warn("[Ingestor] Ошибка повторного чтения", append(keyFields(key), zap.Error(err))...)
		}
		return i.fallback(ctx, key, answer)
	}

	_, err = i.scheduler.Schedule(key, answer)
	switch {
	case err == nil:
		return OutcomeScheduled
	case errors.Is(err, apperrors.ErrQueueFull):
		if i.cfg.OverflowPolicy == OverflowDirect {
			i.log.Warn("[Ingestor] Очередь сверки заполнена, сохраняем без ожидания", keyFields(key)...)
			return i.fallback(ctx, key, answer)
		}
		monitoring.QueueDropped.WithLabelValues("reconcile").Inc()
		i.log.Warn("[Ingestor] Очередь сверки заполнена, сверка не поставлена", keyFields(key)...)
		return OutcomeDropped
	default:
		return i.fallback(ctx, key, answer)
	}
}

// fallback сохраняет ответ в обход кеша. Ответ становится последним для ключа,
// поэтому ожидающая сверка по ключу снимается.
func (i *Ingestor) fallback(ctx context.Context, key entity.AnswerKey, answer string) SubmitOutcome {
	i.scheduler.Forget(key)
	if err := i.sink.Enqueue(ctx, newRecord(key, answer, i.now())); err != nil {
		if errors.Is(err, apperrors.ErrQueueFull) {
			return OutcomeDropped
		}
		i.log.Error("[Ingestor] Ошибка прямого сохранения", append(keyFields(key), zap.Error(err))...)
	}
	return OutcomeFallback
}
