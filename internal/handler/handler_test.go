package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/middleware"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
	"github.com/cleartonglll-ui/study-pro/internal/service"
	"github.com/cleartonglll-ui/study-pro/internal/service/answersync"
	"github.com/cleartonglll-ui/study-pro/internal/service/exchange"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ============================================================================
// Моки
// ============================================================================

type MockSubmitterForAnswerHandler struct {
	mock.Mock
}

func (m *MockSubmitterForAnswerHandler) Submit(ctx context.Context, planID, questionID, studentID int64, raw string) answersync.SubmitOutcome {
	args := m.Called(planID, questionID, studentID, raw)
	return args.Get(0).(answersync.SubmitOutcome)
}

type MockStatsForAnswerHandler struct {
	mock.Mock
}

func (m *MockStatsForAnswerHandler) Get(ctx context.Context, questionID, planID int64) (*entity.AnswerStatistic, error) {
	args := m.Called(questionID, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.AnswerStatistic), args.Error(1)
}

func (m *MockStatsForAnswerHandler) GetFromDB(ctx context.Context, questionID, planID int64) (*entity.AnswerStatistic, error) {
	args := m.Called(questionID, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.AnswerStatistic), args.Error(1)
}

type MockDirectForAnswerHandler struct {
	mock.Mock
}

func (m *MockDirectForAnswerHandler) SubmitSingle(ctx context.Context, planID, questionID, studentID int64, raw string) (*entity.Answer, error) {
	args := m.Called(planID, questionID, studentID, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Answer), args.Error(1)
}

func (m *MockDirectForAnswerHandler) SubmitHistory(ctx context.Context, planID, questionID, studentID int64, raw string) (*entity.Answer, error) {
	args := m.Called(planID, questionID, studentID, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Answer), args.Error(1)
}

type MockExchangerForExchangeHandler struct {
	mock.Mock
}

func (m *MockExchangerForExchangeHandler) Exchange(ctx context.Context, userID int64, boxType int) *exchange.Result {
	args := m.Called(userID, boxType)
	return args.Get(0).(*exchange.Result)
}

func (m *MockExchangerForExchangeHandler) AddPoints(ctx context.Context, userID, points int64) (*entity.UserPoint, error) {
	args := m.Called(userID, points)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UserPoint), args.Error(1)
}

func (m *MockExchangerForExchangeHandler) GetPoints(ctx context.Context, userID int64) (*entity.UserPoint, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UserPoint), args.Error(1)
}

type MockBoxesForRandomBoxHandler struct {
	mock.Mock
}

func (m *MockBoxesForRandomBoxHandler) Generate(ctx context.Context, activityID string, count, minGold, maxGold int) ([]int, error) {
	args := m.Called(activityID, count, minGold, maxGold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockBoxesForRandomBoxHandler) Grab(ctx context.Context, activityID string, userID int64) (*service.GrabResult, error) {
	args := m.Called(activityID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.GrabResult), args.Error(1)
}

func (m *MockBoxesForRandomBoxHandler) Activity(ctx context.Context, activityID string) (*service.ActivityView, error) {
	args := m.Called(activityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ActivityView), args.Error(1)
}

// ============================================================================
// Вспомогательные функции
// ============================================================================

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, path, bytes.NewReader(bodyBytes))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	r.ServeHTTP(w, req)
	return w
}

// parseJSONResponse парсит JSON ответ из *httptest.ResponseRecorder
func parseJSONResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err, "Response body should be valid JSON: %s", w.Body.String())
	return resp
}

func answerRouter(h *AnswerHandler) *gin.Engine {
	r := gin.New()
	r.POST("/answer/submit-redis", h.SubmitViaCache)
	r.POST("/answer/submit-db", h.SubmitDirect)
	r.POST("/answer/submit-db-multi", h.SubmitHistory)
	ids := []gin.HandlerFunc{
		middleware.ExtractIDParam("questionId", "questionID"),
		middleware.ExtractIDParam("planId", "planID"),
	}
	r.GET("/answer/statistic-redis/:questionId/:planId", append(ids, h.GetStatistics)...)
	r.GET("/answer/statistic-db/:questionId/:planId", append(ids, h.GetStatisticsFromDB)...)
	r.GET("/answer/statistic-export/:questionId/:planId", append(ids, h.ExportStatistics)...)
	return r
}

var validAnswer = map[string]interface{}{"plan_id": 7, "question_id": 101, "student_id": 42, "answer": "b"}

// ============================================================================
// AnswerHandler
// ============================================================================

func TestSubmitViaCache(t *testing.T) {
	tests := []struct {
		name       string
		outcome    answersync.SubmitOutcome
		wantStatus int
	}{
		{"scheduled", answersync.OutcomeScheduled, http.StatusOK},
		{"unchanged", answersync.OutcomeUnchanged, http.StatusOK},
		{"fallback", answersync.OutcomeFallback, http.StatusOK},
		{"dropped", answersync.OutcomeDropped, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			submitter := new(MockSubmitterForAnswerHandler)
			submitter.On("Submit", int64(7), int64(101), int64(42), "b").Return(tt.outcome)
			r := answerRouter(NewAnswerHandler(submitter, nil, nil, nil))

			// Act
			w := doRequest(r, http.MethodPost, "/answer/submit-redis", validAnswer)

			// Assert
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, string(tt.outcome), parseJSONResponse(t, w)["outcome"])
			}
		})
	}
}

func TestSubmitViaCache_ValidationErrors(t *testing.T) {
	submitter := new(MockSubmitterForAnswerHandler)
	r := answerRouter(NewAnswerHandler(submitter, nil, nil, nil))

	for _, body := range []interface{}{
		nil,
		map[string]interface{}{"plan_id": 7, "question_id": 101, "answer": "A"},
		map[string]interface{}{"plan_id": 7, "question_id": 101, "student_id": 42},
	} {
		w := doRequest(r, http.MethodPost, "/answer/submit-redis", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	submitter.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitDirect_ReturnsDecodedEnvelope(t *testing.T) {
	direct := new(MockDirectForAnswerHandler)
	direct.On("SubmitSingle", int64(7), int64(101), int64(42), "b").Return(&entity.Answer{
		ID: 3, PlanID: 7, QuestionID: 101, StudentID: 42,
		Answer: entity.FirstAndLastPayload("A", "B").Encode(), IsFirst: true,
	}, nil)
	r := answerRouter(NewAnswerHandler(nil, nil, direct, nil))

	w := doRequest(r, http.MethodPost, "/answer/submit-db", validAnswer)

	require.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "A", resp["first_answer"])
	assert.Equal(t, "B", resp["last_answer"])
}

func TestSubmitHistory_MapsErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", apperrors.ErrValidation, http.StatusUnprocessableEntity},
		{"internal", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direct := new(MockDirectForAnswerHandler)
			direct.On("SubmitHistory", int64(7), int64(101), int64(42), "b").Return(nil, tt.err)
			r := answerRouter(NewAnswerHandler(nil, nil, direct, nil))

			w := doRequest(r, http.MethodPost, "/answer/submit-db-multi", validAnswer)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotContains(t, w.Body.String(), "db down", "детали внутренней ошибки не уходят клиенту")
		})
	}
}

func TestGetStatistics(t *testing.T) {
	stats := new(MockStatsForAnswerHandler)
	stat := entity.NewAnswerStatistic(101, 7, 50, []string{"A", "A", "C"}, answersync.SourceCache)
	stats.On("Get", int64(101), int64(7)).Return(stat, nil)
	stats.On("GetFromDB", int64(101), int64(7)).Return(stat, nil)
	r := answerRouter(NewAnswerHandler(nil, stats, nil, nil))

	w := doRequest(r, http.MethodGet, "/answer/statistic-redis/101/7", nil)
	wDB := doRequest(r, http.MethodGet, "/answer/statistic-db/101/7", nil)
	wBad := doRequest(r, http.MethodGet, "/answer/statistic-redis/abc/7", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, float64(3), resp["answered_count"])
	assert.Equal(t, "cache", resp["source"])
	assert.Equal(t, http.StatusOK, wDB.Code)
	assert.Equal(t, http.StatusBadRequest, wBad.Code)
}

func TestExportStatistics_WritesWorkbook(t *testing.T) {
	// Arrange
	stats := new(MockStatsForAnswerHandler)
	stat := entity.NewAnswerStatistic(101, 7, 50, []string{"A", "A", "B"}, answersync.SourceDB)
	stats.On("Get", int64(101), int64(7)).Return(stat, nil)
	r := answerRouter(NewAnswerHandler(nil, stats, nil, nil))

	// Act
	w := doRequest(r, http.MethodGet, "/answer/statistic-export/101/7", nil)

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "statistic_101_7.xlsx")
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	option, err := f.GetCellValue("Статистика", "A4")
	require.NoError(t, err)
	count, err := f.GetCellValue("Статистика", "B4")
	require.NoError(t, err)
	assert.Equal(t, "A", option)
	assert.Equal(t, "2", count)
}

// ============================================================================
// ExchangeHandler
// ============================================================================

func exchangeRouter(h *ExchangeHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/exchange/treasure-box", h.ExchangeTreasureBox)
	r.POST("/api/exchange/add-points", h.AddPoints)
	r.GET("/api/exchange/points/:userId", middleware.ExtractIDParam("userId", "userID"), h.GetPoints)
	return r
}

func TestExchangeTreasureBox_StatusInBody(t *testing.T) {
	exchanger := new(MockExchangerForExchangeHandler)
	exchanger.On("Exchange", int64(1), 2).Return(&exchange.Result{
		UserID: 1, BoxType: 2, Cost: 1000, Status: exchange.StatusInsufficient, State: exchange.StateInit,
	})
	r := exchangeRouter(NewExchangeHandler(exchanger, nil))

	w := doRequest(r, http.MethodPost, "/api/exchange/treasure-box", map[string]int{"user_id": 1, "box_type": 2})

	assert.Equal(t, http.StatusOK, w.Code, "отказ в обмене - не ошибка HTTP")
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "insufficient_points", resp["status"])
	assert.Equal(t, "INIT", resp["state"])
}

func TestAddPointsAndGetPoints(t *testing.T) {
	exchanger := new(MockExchangerForExchangeHandler)
	exchanger.On("AddPoints", int64(1), int64(500)).Return(&entity.UserPoint{UserID: 1, Point: 1500, FrozenPoint: 100}, nil)
	exchanger.On("GetPoints", int64(1)).Return(&entity.UserPoint{UserID: 1, Point: 1500, FrozenPoint: 100}, nil)
	r := exchangeRouter(NewExchangeHandler(exchanger, nil))

	wAdd := doRequest(r, http.MethodPost, "/api/exchange/add-points", map[string]int{"user_id": 1, "points": 500})
	wGet := doRequest(r, http.MethodGet, "/api/exchange/points/1", nil)
	wBad := doRequest(r, http.MethodPost, "/api/exchange/add-points", map[string]int{"user_id": 1, "points": -5})

	require.Equal(t, http.StatusOK, wAdd.Code)
	assert.Equal(t, float64(1600), parseJSONResponse(t, wAdd)["total"])
	require.Equal(t, http.StatusOK, wGet.Code)
	assert.Equal(t, float64(100), parseJSONResponse(t, wGet)["frozen_point"])
	assert.Equal(t, http.StatusBadRequest, wBad.Code)
}

// ============================================================================
// RandomBoxHandler и SystemHandler
// ============================================================================

func TestRandomBoxHandler(t *testing.T) {
	boxes := new(MockBoxesForRandomBoxHandler)
	boxes.On("Generate", "act-1", 3, 10, 20).Return([]int{10, 15, 20}, nil)
	boxes.On("Grab", "act-1", int64(9)).Return(&service.GrabResult{
		ActivityID: "act-1", UserID: 9, Status: service.GrabOK, GoldAmount: 15,
	}, nil)
	boxes.On("Grab", "act-1", int64(10)).Return(nil, apperrors.ErrCacheUnavailable)
	h := NewRandomBoxHandler(boxes, nil)
	r := gin.New()
	r.POST("/api/random-box/generate", h.Generate)
	r.POST("/api/random-box/grab/:activityId/:userId", middleware.ExtractIDParam("userId", "userID"), h.Grab)

	wGen := doRequest(r, http.MethodPost, "/api/random-box/generate",
		map[string]interface{}{"activity_id": "act-1", "count": 3, "min_gold": 10, "max_gold": 20})
	wGrab := doRequest(r, http.MethodPost, "/api/random-box/grab/act-1/9", nil)
	wDown := doRequest(r, http.MethodPost, "/api/random-box/grab/act-1/10", nil)
	wBad := doRequest(r, http.MethodPost, "/api/random-box/generate",
		map[string]interface{}{"activity_id": "act-1", "count": 3, "min_gold": 30, "max_gold": 20})

	require.Equal(t, http.StatusOK, wGen.Code)
	assert.Equal(t, float64(45), parseJSONResponse(t, wGen)["total_gold"])
	require.Equal(t, http.StatusOK, wGrab.Code)
	assert.Equal(t, "success", parseJSONResponse(t, wGrab)["status"])
	assert.Equal(t, http.StatusServiceUnavailable, wDown.Code)
	assert.Equal(t, http.StatusBadRequest, wBad.Code)
}

func TestRandomBoxHandler_Activity(t *testing.T) {
	// Arrange
	remaining := int64(3)
	boxes := new(MockBoxesForRandomBoxHandler)
	boxes.On("Activity", "act-1").Return(&service.ActivityView{
		ActivityID: "act-1",
		Remaining:  &remaining,
		Grabbed:    1,
		TotalGold:  25,
		Boxes:      []entity.RandomTreasureBox{{ActivityID: "act-1", UserID: 9, GoldAmount: 25}},
	}, nil)
	boxes.On("Activity", "missing").Return(nil, apperrors.ErrNotFound)
	h := NewRandomBoxHandler(boxes, nil)
	r := gin.New()
	r.GET("/api/random-box/activity/:activityId", h.Activity)

	// Act
	wOK := doRequest(r, http.MethodGet, "/api/random-box/activity/act-1", nil)
	wMissing := doRequest(r, http.MethodGet, "/api/random-box/activity/missing", nil)

	// Assert
	require.Equal(t, http.StatusOK, wOK.Code)
	body := parseJSONResponse(t, wOK)
	assert.Equal(t, float64(3), body["remaining"], "остаток берётся из кеша")
	assert.Equal(t, float64(25), body["total_gold"])
	assert.Equal(t, http.StatusNotFound, wMissing.Code)
}

type fixedResolver struct{}

func (fixedResolver) Location(int64) *time.Location {
	return time.FixedZone("UTC+8", 8*3600)
}

func TestSystemHandler(t *testing.T) {
	h := NewSystemHandler(true)
	r := gin.New()
	r.Use(middleware.TimeZone(fixedResolver{}))
	r.GET("/health", h.Health)
	r.GET("/api/timezone/now", h.Now)

	wHealth := doRequest(r, http.MethodGet, "/health", nil)
	wNow := doRequest(r, http.MethodGet, "/api/timezone/now", nil)

	require.Equal(t, http.StatusOK, wHealth.Code)
	assert.Equal(t, true, parseJSONResponse(t, wHealth)["cache_enabled"])
	require.Equal(t, http.StatusOK, wNow.Code)
	assert.Equal(t, "UTC+8", parseJSONResponse(t, wNow)["zone"])
}
