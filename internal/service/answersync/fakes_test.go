package answersync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
	redisRepo "github.com/cleartonglll-ui/study-pro/internal/repository/redis"
)

// memAnswerRepo - потокобезопасная реализация AnswerRepository в памяти
type memAnswerRepo struct {
	mu      sync.Mutex
	rows    []entity.Answer
	nextID  uint
	creates int
	updates int
}

func newMemAnswerRepo() *memAnswerRepo {
	return &memAnswerRepo{nextID: 1}
}

func (m *memAnswerRepo) FindOne(_ context.Context, key entity.AnswerKey) (*entity.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].Key() == key {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memAnswerRepo) FindByQuestion(_ context.Context, questionID, planID int64) ([]entity.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Answer
	for _, row := range m.rows {
		if row.QuestionID == questionID && row.PlanID == planID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memAnswerRepo) Create(_ context.Context, answer *entity.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	answer.ID = m.nextID
	m.nextID++
	m.rows = append(m.rows, *answer)
	m.creates++
	return nil
}

func (m *memAnswerRepo) UpdateIfNotNewer(_ context.Context, answer *entity.Answer) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID != answer.ID {
			continue
		}
		if m.rows[i].UpdatedAt.After(answer.UpdatedAt) {
			return false, nil
		}
		m.rows[i].Answer = answer.Answer
		m.rows[i].UpdatedAt = answer.UpdatedAt
		m.updates++
		return true, nil
	}
	return false, apperrors.ErrNotFound
}

func (m *memAnswerRepo) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates + m.updates
}

func (m *memAnswerRepo) all() []entity.Answer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.Answer(nil), m.rows...)
}

// recordingSink запоминает записи, переданные на сохранение
type recordingSink struct {
	mu      sync.Mutex
	records []*entity.Answer
}

func (s *recordingSink) Enqueue(_ context.Context, record *entity.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *recordingSink) snapshot() []*entity.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.Answer(nil), s.records...)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// testEnv - miniredis с настоящими CacheRepo/LockRepo
type testEnv struct {
	mr    *miniredis.Miniredis
	cache *redisRepo.CacheRepo
	locks *redisRepo.LockRepo
	repo  *memAnswerRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache, err := redisRepo.NewCacheRepo(client)
	require.NoError(t, err)
	locks, err := redisRepo.NewLockRepo(client)
	require.NoError(t, err)

	return &testEnv{mr: mr, cache: cache, locks: locks, repo: newMemAnswerRepo()}
}

func (e *testEnv) deps() Dependencies {
	return Dependencies{
		AnswerRepo: e.repo,
		Cache:      e.cache,
		Locks:      e.locks,
	}
}

// fastConfig - короткие задержки для тестов
func fastConfig() *Config {
	cfg := DefaultConfig()
	cfg.MinDelay = 40 * time.Millisecond
	cfg.DelayJitter = 0
	cfg.BatchInterval = 20 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	return cfg
}

var testKey = entity.AnswerKey{PlanID: 7, QuestionID: 101, StudentID: 42}
