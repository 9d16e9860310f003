package answersync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	redisRepo "github.com/cleartonglll-ui/study-pro/internal/repository/redis"
)

func TestStatistics_FromCache(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	key := AnswerCacheKey(7, 101)
	env.mr.HSet(key, "1", "A", "2", "A", "3", "B", "4", "D", "5", "X")
	stats := NewStatistics(fastConfig(), env.deps())

	// Act
	stat, err := stats.Get(context.Background(), 101, 7)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, SourceCache, stat.Source)
	assert.Equal(t, 50, stat.TotalStudents)
	assert.Equal(t, 5, stat.AnsweredCount, "ответ вне A-D тоже считается ответом")
	assert.Equal(t, 45, stat.NotAnsweredCount)
	assert.Equal(t, 2, stat.Counts["A"])
	assert.Equal(t, 0, stat.Counts["C"])
	assert.InDelta(t, 0.04, stat.Ratios["A"], 1e-9)
	assert.InDelta(t, 0.9, stat.NotAnsweredRatio, 1e-9)
}

func TestStatistics_FallsBackToDatabase(t *testing.T) {
	// Arrange: кеш недоступен, в БД история ответов
	env := newTestEnv(t)
	t0 := time.Now()
	ctx := context.Background()
	require.NoError(t, env.repo.Create(ctx, &entity.Answer{PlanID: 7, QuestionID: 101, StudentID: 1,
		Answer: entity.FirstOnlyPayload("A").Encode(), CreatedAt: t0}))
	require.NoError(t, env.repo.Create(ctx, &entity.Answer{PlanID: 7, QuestionID: 101, StudentID: 1,
		Answer: entity.FirstAndLastPayload("A", "C").Encode(), CreatedAt: t0.Add(time.Second)}))
	require.NoError(t, env.repo.Create(ctx, &entity.Answer{PlanID: 7, QuestionID: 101, StudentID: 2,
		Answer: "b", CreatedAt: t0}))
	require.NoError(t, env.repo.Create(ctx, &entity.Answer{PlanID: 7, QuestionID: 101, StudentID: 3,
		Answer: `{"first_ans": 1}`, CreatedAt: t0}))
	require.NoError(t, env.repo.Create(ctx, &entity.Answer{PlanID: 8, QuestionID: 101, StudentID: 4,
		Answer: "A", CreatedAt: t0}))
	env.mr.Close()
	stats := NewStatistics(fastConfig(), env.deps())

	// Act
	stat, err := stats.Get(ctx, 101, 7)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, SourceDB, stat.Source)
	assert.Equal(t, 3, stat.AnsweredCount, "по одному ответу на студента")
	assert.Equal(t, 0, stat.Counts["A"], "учитывается последняя запись студента")
	assert.Equal(t, 1, stat.Counts["C"])
	assert.Equal(t, 1, stat.Counts["B"], "сырой ответ нормализуется")
}

func TestStatistics_DisabledCacheUsesDatabase(t *testing.T) {
	repo := newMemAnswerRepo()
	require.NoError(t, repo.Create(context.Background(), &entity.Answer{PlanID: 7, QuestionID: 101, StudentID: 1, Answer: "D"}))
	stats := NewStatistics(fastConfig(), Dependencies{AnswerRepo: repo, Cache: redisRepo.NewDisabledCache()})

	stat, err := stats.Get(context.Background(), 101, 7)

	require.NoError(t, err)
	assert.Equal(t, SourceDB, stat.Source)
	assert.Equal(t, 1, stat.Counts["D"])
}
