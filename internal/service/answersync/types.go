package answersync

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/config"
	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
)

// OverflowPolicy определяет поведение при заполненной очереди
type OverflowPolicy string

const (
	// OverflowDrop - запись отбрасывается, растёт счётчик потерь
	OverflowDrop OverflowPolicy = "drop"
	// OverflowDirect - запись уходит в БД напрямую через пул воркеров
	OverflowDirect OverflowPolicy = "direct"
)

// MissingKeyPolicy определяет поведение сверки, если ответа в кеше уже нет
type MissingKeyPolicy string

const (
	// MissingKeyDrop - снимок ничего не делает
	MissingKeyDrop MissingKeyPolicy = "drop"
	// MissingKeyCommit - в БД записывается значение из снимка
	MissingKeyCommit MissingKeyPolicy = "commit"
)

// Config содержит настройки конвейера синхронизации ответов
type Config struct {
	AnswerTTL time.Duration // TTL хеша ответов в кеше

	MinDelay    time.Duration // минимальная задержка сверки
	DelayJitter time.Duration // случайная добавка к задержке, [0, DelayJitter)

	ReconcileCapacity int // максимум ожидающих снимков
	BatchCapacity     int // ёмкость очереди пакетной записи
	BatchThreshold    int // размер пачки для немедленной записи
	BatchInterval     time.Duration
	PollInterval      time.Duration
	LeaseTTL          time.Duration
	EnqueueTimeout    time.Duration // 0 - постановка в очередь без ожидания

	RosterSize int // число студентов для долей в статистике

	OverflowPolicy   OverflowPolicy
	MissingKeyPolicy MissingKeyPolicy
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		AnswerTTL:         7 * 24 * time.Hour,
		MinDelay:          10 * time.Second,
		DelayJitter:       9 * time.Second,
		ReconcileCapacity: 100000,
		BatchCapacity:     20000,
		BatchThreshold:    20,
		BatchInterval:     5 * time.Second,
		PollInterval:      100 * time.Millisecond,
		LeaseTTL:          10 * time.Second,
		RosterSize:        50,
		OverflowPolicy:    OverflowDirect,
		MissingKeyPolicy:  MissingKeyCommit,
	}
}

// ConfigFromSettings строит Config из секции answer_sync
func ConfigFromSettings(s config.AnswerSyncConfig) *Config {
	cfg := DefaultConfig()
	ms := func(v int, def time.Duration) time.Duration {
		if v <= 0 {
			return def
		}
		return time.Duration(v) * time.Millisecond
	}
	positive := func(v, def int) int {
		if v <= 0 {
			return def
		}
		return v
	}

	cfg.MinDelay = ms(s.MinDelayMs, cfg.MinDelay)
	if s.DelayJitterMs >= 0 {
		cfg.DelayJitter = time.Duration(s.DelayJitterMs) * time.Millisecond
	}
	cfg.ReconcileCapacity = positive(s.ReconcileCapacity, cfg.ReconcileCapacity)
	cfg.BatchCapacity = positive(s.BatchCapacity, cfg.BatchCapacity)
	cfg.BatchThreshold = positive(s.BatchThreshold, cfg.BatchThreshold)
	cfg.BatchInterval = ms(s.BatchIntervalMs, cfg.BatchInterval)
	cfg.PollInterval = ms(s.PollIntervalMs, cfg.PollInterval)
	cfg.LeaseTTL = ms(s.LeaseTTLMs, cfg.LeaseTTL)
	cfg.EnqueueTimeout = ms(s.EnqueueTimeoutMs, 0)
	cfg.RosterSize = positive(s.RosterSize, cfg.RosterSize)
	if s.OverflowPolicy != "" {
		cfg.OverflowPolicy = OverflowPolicy(s.OverflowPolicy)
	}
	if s.MissingKeyPolicy != "" {
		cfg.MissingKeyPolicy = MissingKeyPolicy(s.MissingKeyPolicy)
	}
	return cfg
}

// nextDelay возвращает задержку сверки в [MinDelay, MinDelay+DelayJitter)
func (c *Config) nextDelay() time.Duration {
	if c.DelayJitter <= 0 {
		return c.MinDelay
	}
	return c.MinDelay + time.Duration(rand.Int63n(int64(c.DelayJitter)))
}

// TaskRunner выполняет фоновые задачи (workerpool.Pool)
type TaskRunner interface {
	Submit(task func())
}

// Dependencies содержит зависимости конвейера
type Dependencies struct {
	AnswerRepo repository.AnswerRepository
	Cache      repository.CacheRepository
	Locks      repository.LockRepository
	Pool       TaskRunner
	Logger     *zap.Logger
}

func (d Dependencies) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Sink принимает согласованные записи для сохранения в БД
type Sink interface {
	Enqueue(ctx context.Context, record *entity.Answer) error
}

// AnswerCacheKey - ключ хеша ответов: поле хеша - ID студента
func AnswerCacheKey(planID, questionID int64) string {
	return fmt.Sprintf("student_answer:%d:%d", planID, questionID)
}

// answerLeaseKey - ключ аренды записи ответа
func answerLeaseKey(key entity.AnswerKey) string {
	return fmt.Sprintf("lock:answer:%d:%d:%d", key.PlanID, key.QuestionID, key.StudentID)
}

func keyFields(key entity.AnswerKey) []zap.Field {
	return []zap.Field{
		zap.Int64("plan_id", key.PlanID),
		zap.Int64("question_id", key.QuestionID),
		zap.Int64("student_id", key.StudentID),
	}
}

func newRecord(key entity.AnswerKey, value string, at time.Time) *entity.Answer {
	return &entity.Answer{
		PlanID:     key.PlanID,
		QuestionID: key.QuestionID,
		StudentID:  key.StudentID,
		Answer:     value,
		IsFirst:    true,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}
