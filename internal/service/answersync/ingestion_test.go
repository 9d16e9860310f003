package answersync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
	redisRepo "github.com/cleartonglll-ui/study-pro/internal/repository/redis"
)

// MockSchedulerForIngestor - мок планировщика сверки
type MockSchedulerForIngestor struct {
	mock.Mock
}

func (m *MockSchedulerForIngestor) Schedule(key entity.AnswerKey, value string) (bool, error) {
	args := m.Called(key, value)
	return args.Bool(0), args.Error(1)
}

func (m *MockSchedulerForIngestor) Forget(key entity.AnswerKey) {
	m.Called(key)
}

// MockSinkForIngestor - мок приёмника записей
type MockSinkForIngestor struct {
	mock.Mock
}

func (m *MockSinkForIngestor) Enqueue(ctx context.Context, record *entity.Answer) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func answerMatcher(value string) interface{} {
	return mock.MatchedBy(func(r *entity.Answer) bool {
		return r.Key() == testKey && r.Answer == value
	})
}

// ==========================================================================
// Ingestor: ветвление по исходу скрипта
// ==========================================================================

func TestIngestor_NormalizesAndSchedules(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	scheduler := new(MockSchedulerForIngestor)
	sink := new(MockSinkForIngestor)
	scheduler.On("Schedule", testKey, "B").Return(true, nil).Once()
	ing := NewIngestor(fastConfig(), env.deps(), scheduler, sink)

	// Act
	outcome := ing.Submit(context.Background(), testKey.PlanID, testKey.QuestionID, testKey.StudentID, "  b ")

	// Assert
	assert.Equal(t, OutcomeScheduled, outcome)
	assert.Equal(t, "B", env.mr.HGet(AnswerCacheKey(testKey.PlanID, testKey.QuestionID), "42"),
		"в кеш пишется нормализованный ответ")
	scheduler.AssertExpectations(t)
	sink.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestIngestor_IdempotentResubmission(t *testing.T) {
	env := newTestEnv(t)
	scheduler := new(MockSchedulerForIngestor)
	sink := new(MockSinkForIngestor)
	scheduler.On("Schedule", testKey, "A").Return(true, nil).Once()
	ing := NewIngestor(fastConfig(), env.deps(), scheduler, sink)

	first := ing.Submit(context.Background(), 7, 101, 42, "A")
	second := ing.Submit(context.Background(), 7, 101, 42, "a")

	assert.Equal(t, OutcomeScheduled, first)
	assert.Equal(t, OutcomeUnchanged, second, "повтор того же ответа не порождает работы")
	scheduler.AssertNumberOfCalls(t, "Schedule", 1)
	sink.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestIngestor_DisabledCacheGoesToDatabase(t *testing.T) {
	scheduler := new(MockSchedulerForIngestor)
	scheduler.On("Forget", testKey).Once()
	sink := new(MockSinkForIngestor)
	sink.On("Enqueue", mock.Anything, answerMatcher("C")).Return(nil).Once()
	deps := Dependencies{Cache: redisRepo.NewDisabledCache()}
	ing := NewIngestor(fastConfig(), deps, scheduler, sink)

	outcome := ing.Submit(context.Background(), 7, 101, 42, "c")

	assert.Equal(t, OutcomeFallback, outcome)
	sink.AssertExpectations(t)
	scheduler.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything)
}

func TestIngestor_ScriptFailureGoesToDatabase(t *testing.T) {
	env := newTestEnv(t)
	scheduler := new(MockSchedulerForIngestor)
	scheduler.On("Forget", testKey).Once()
	sink := new(MockSinkForIngestor)
	sink.On("Enqueue", mock.Anything, answerMatcher("D")).Return(nil).Once()
	ing := NewIngestor(fastConfig(), env.deps(), scheduler, sink)
	env.mr.Close()

	outcome := ing.Submit(context.Background(), 7, 101, 42, "D")

	assert.Equal(t, OutcomeFallback, outcome)
	sink.AssertExpectations(t)
	scheduler.AssertCalled(t, "Forget", testKey)
}

func TestIngestor_ReconcileQueueFull(t *testing.T) {
	tests := []struct {
		name     string
		policy   OverflowPolicy
		want     SubmitOutcome
		sinkCall bool
	}{
		{"direct сохраняет сразу", OverflowDirect, OutcomeFallback, true},
		{"drop отбрасывает", OverflowDrop, OutcomeDropped, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			env := newTestEnv(t)
			cfg := fastConfig()
			cfg.OverflowPolicy = tt.policy
			scheduler := new(MockSchedulerForIngestor)
			scheduler.On("Schedule", testKey, "A").Return(false, apperrors.ErrQueueFull)
			scheduler.On("Forget", testKey).Maybe()
			sink := new(MockSinkForIngestor)
			if tt.sinkCall {
				sink.On("Enqueue", mock.Anything, answerMatcher("A")).Return(nil).Once()
			}
			ing := NewIngestor(cfg, env.deps(), scheduler, sink)

			// Act
			outcome := ing.Submit(context.Background(), 7, 101, 42, "A")

			// Assert
			assert.Equal(t, tt.want, outcome)
			sink.AssertExpectations(t)
			if !tt.sinkCall {
				sink.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
			}
		})
	}
}

// ==========================================================================
// Конвейер целиком: кеш -> сверка -> пакетная запись -> БД
// ==========================================================================

func newTestPipeline(t *testing.T, env *testEnv) *Pipeline {
	t.Helper()
	p := NewPipeline(fastConfig(), env.deps())
	p.Start(context.Background())
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	return p
}

func TestPipeline_DebounceProducesSingleWrite(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	p := newTestPipeline(t, env)
	ctx := context.Background()

	// Act: A, B, C быстрее окна сверки
	p.Ingestor.Submit(ctx, 7, 101, 42, "A")
	time.Sleep(5 * time.Millisecond)
	p.Ingestor.Submit(ctx, 7, 101, 42, "B")
	time.Sleep(5 * time.Millisecond)
	p.Ingestor.Submit(ctx, 7, 101, 42, "C")

	// Assert
	require.Eventually(t, func() bool { return env.repo.writes() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, env.repo.writes(), "ровно одна запись в БД")
	rows := env.repo.all()
	require.Len(t, rows, 1)
	assert.Equal(t, "C", rows[0].Answer)
	assert.True(t, rows[0].IsFirst)
}

func TestPipeline_SettleAfterGapProducesTwoWrites(t *testing.T) {
	env := newTestEnv(t)
	p := newTestPipeline(t, env)
	ctx := context.Background()

	p.Ingestor.Submit(ctx, 7, 101, 42, "A")
	require.Eventually(t, func() bool { return env.repo.writes() == 1 }, 2*time.Second, 5*time.Millisecond)

	p.Ingestor.Submit(ctx, 7, 101, 42, "B")
	require.Eventually(t, func() bool { return env.repo.writes() == 2 }, 2*time.Second, 5*time.Millisecond)

	rows := env.repo.all()
	require.Len(t, rows, 1, "вторая запись обновляет строку на месте")
	assert.Equal(t, "B", rows[0].Answer)
}

func TestPipeline_IdempotentSubmissionWritesOnce(t *testing.T) {
	env := newTestEnv(t)
	p := newTestPipeline(t, env)
	ctx := context.Background()

	assert.Equal(t, OutcomeScheduled, p.Ingestor.Submit(ctx, 7, 101, 42, "A"))
	assert.Equal(t, OutcomeUnchanged, p.Ingestor.Submit(ctx, 7, 101, 42, "A"))

	require.Eventually(t, func() bool { return env.repo.writes() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, env.repo.writes())
}

func TestPipeline_StopPersistsPendingEdits(t *testing.T) {
	// Arrange: окно сверки длиннее теста
	env := newTestEnv(t)
	cfg := fastConfig()
	cfg.MinDelay = time.Hour
	p := NewPipeline(cfg, env.deps())
	p.Start(context.Background())
	ctx := context.Background()

	// Act
	for i := int64(1); i <= 5; i++ {
		p.Ingestor.Submit(ctx, 7, 101, i, "B")
	}
	require.NoError(t, p.Stop(ctx))

	// Assert
	assert.Equal(t, 5, env.repo.writes(), "при остановке ожидающие правки сохраняются")
}

func TestPipeline_WorksWithoutCache(t *testing.T) {
	repo := newMemAnswerRepo()
	deps := Dependencies{
		AnswerRepo: repo,
		Cache:      redisRepo.NewDisabledCache(),
		Locks:      redisRepo.NewDisabledLock(),
	}
	p := NewPipeline(fastConfig(), deps)
	p.Start(context.Background())

	outcome := p.Ingestor.Submit(context.Background(), 7, 101, 42, "A")
	require.NoError(t, p.Stop(context.Background()))

	assert.Equal(t, OutcomeFallback, outcome)
	assert.Equal(t, 1, repo.writes())
}

// flakyScriptCache - кеш, у которого скрипт записи можно один раз "уронить"
type flakyScriptCache struct {
	repository.CacheRepository
	failNext atomic.Bool
}

func (c *flakyScriptCache) CompareAndSetField(ctx context.Context, key, field, value string, ttl time.Duration) (bool, string, error) {
	if c.failNext.CompareAndSwap(true, false) {
		return false, "", errors.New("script failed")
	}
	return c.CacheRepository.CompareAndSetField(ctx, key, field, value, ttl)
}

func TestPipeline_FallbackAnswerIsNotOverwrittenByPendingSnapshot(t *testing.T) {
	// Arrange: A принят через кеш, B ушёл в БД из-за сбоя скрипта
	env := newTestEnv(t)
	cache := &flakyScriptCache{CacheRepository: env.cache}
	deps := env.deps()
	deps.Cache = cache
	cfg := fastConfig()
	cfg.MinDelay = 150 * time.Millisecond
	p := NewPipeline(cfg, deps)
	p.Start(context.Background())
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	ctx := context.Background()

	// Act
	require.Equal(t, OutcomeScheduled, p.Ingestor.Submit(ctx, 7, 101, 42, "A"))
	cache.failNext.Store(true)
	require.Equal(t, OutcomeFallback, p.Ingestor.Submit(ctx, 7, 101, 42, "B"))

	// Assert: снимок A срабатывает после B и не должен его перезаписать
	require.Eventually(t, func() bool { return env.repo.writes() >= 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	rows := env.repo.all()
	require.Len(t, rows, 1)
	assert.Equal(t, "B", rows[0].Answer, "ответ, сохранённый в обход кеша, остаётся последним")
	assert.Equal(t, 1, env.repo.writes(), "снятый снимок ничего не сохраняет")
}

func TestPipeline_EvictedKeyPersistsLatestAnswer(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	cfg := fastConfig()
	cfg.MinDelay = 150 * time.Millisecond
	p := NewPipeline(cfg, env.deps())
	p.Start(context.Background())
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	ctx := context.Background()

	// Act: A -> B, затем ключ вытеснен из кеша до сверки
	p.Ingestor.Submit(ctx, 7, 101, 42, "A")
	p.Ingestor.Submit(ctx, 7, 101, 42, "B")
	env.mr.Del(AnswerCacheKey(7, 101))

	// Assert
	require.Eventually(t, func() bool { return env.repo.writes() == 1 }, 2*time.Second, 5*time.Millisecond)
	rows := env.repo.all()
	require.Len(t, rows, 1)
	assert.Equal(t, "B", rows[0].Answer, "сохраняется последний принятый ответ, а не первый")
}
