package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/handler/dto"
	"github.com/cleartonglll-ui/study-pro/internal/pkg/timezone"
	"github.com/cleartonglll-ui/study-pro/internal/service/answersync"
)

// AnswerSubmitter принимает ответы через кеш (answersync.Ingestor)
type AnswerSubmitter interface {
	Submit(ctx context.Context, planID, questionID, studentID int64, rawAnswer string) answersync.SubmitOutcome
}

// StatisticsReader считает статистику ответов (answersync.Statistics)
type StatisticsReader interface {
	Get(ctx context.Context, questionID, planID int64) (*entity.AnswerStatistic, error)
	GetFromDB(ctx context.Context, questionID, planID int64) (*entity.AnswerStatistic, error)
}

// DirectAnswerWriter записывает ответы сразу в БД (service.AnswerService)
type DirectAnswerWriter interface {
	SubmitSingle(ctx context.Context, planID, questionID, studentID int64, raw string) (*entity.Answer, error)
	SubmitHistory(ctx context.Context, planID, questionID, studentID int64, raw string) (*entity.Answer, error)
}

// AnswerHandler обрабатывает запросы приёма ответов и статистики
type AnswerHandler struct {
	submitter AnswerSubmitter
	stats     StatisticsReader
	direct    DirectAnswerWriter
	log       *zap.Logger
}

// NewAnswerHandler создает новый обработчик ответов
func NewAnswerHandler(submitter AnswerSubmitter, stats StatisticsReader, direct DirectAnswerWriter, log *zap.Logger) *AnswerHandler {
	return &AnswerHandler{submitter: submitter, stats: stats, direct: direct, log: orNop(log)}
}

// SubmitViaCache принимает ответ через кеш с отложенной записью в БД
// POST /answer/submit-redis
func (h *AnswerHandler) SubmitViaCache(c *gin.Context) {
	var req dto.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	outcome := h.submitter.Submit(c.Request.Context(), req.PlanID, req.QuestionID, req.StudentID, req.Answer)
	if outcome == answersync.OutcomeDropped {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "answer queue is full, retry later"})
		return
	}
	c.JSON(http.StatusOK, dto.SubmitAnswerResponse{Outcome: string(outcome)})
}

// SubmitDirect записывает ответ в БД, храня первый и последний ответ в одной строке
// POST /answer/submit-db
func (h *AnswerHandler) SubmitDirect(c *gin.Context) {
	h.submitDirect(c, h.direct.SubmitSingle)
}

// SubmitHistory записывает каждую отправку отдельной строкой
// POST /answer/submit-db-multi
func (h *AnswerHandler) SubmitHistory(c *gin.Context) {
	h.submitDirect(c, h.direct.SubmitHistory)
}

func (h *AnswerHandler) submitDirect(c *gin.Context, write func(ctx context.Context, planID, questionID, studentID int64, raw string) (*entity.Answer, error)) {
	var req dto.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	row, err := write(c.Request.Context(), req.PlanID, req.QuestionID, req.StudentID, req.Answer)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewAnswerResponse(row))
}

// GetStatistics возвращает статистику из кеша, при его недоступности - из БД
// GET /answer/statistic-redis/:questionId/:planId
func (h *AnswerHandler) GetStatistics(c *gin.Context) {
	stat, err := h.stats.Get(c.Request.Context(), c.GetInt64("questionID"), c.GetInt64("planID"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stat)
}

// GetStatisticsFromDB возвращает статистику только по БД
// GET /answer/statistic-db/:questionId/:planId
func (h *AnswerHandler) GetStatisticsFromDB(c *gin.Context) {
	stat, err := h.stats.GetFromDB(c.Request.Context(), c.GetInt64("questionID"), c.GetInt64("planID"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stat)
}

// ExportStatistics выгружает статистику в Excel
// GET /answer/statistic-export/:questionId/:planId
func (h *AnswerHandler) ExportStatistics(c *gin.Context) {
	ctx := c.Request.Context()
	questionID, planID := c.GetInt64("questionID"), c.GetInt64("planID")
	stat, err := h.stats.Get(ctx, questionID, planID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Статистика"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		h.log.Error("[AnswerHandler] Ошибка переименования листа", zap.Error(err))
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		h.log.Error("[AnswerHandler] Ошибка создания StreamWriter", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}

	rows := [][]interface{}{
		{"Вопрос", stat.QuestionID, "План", stat.PlanID},
		{"Сформировано", timezone.Format(ctx, stat.GeneratedAt), "Источник", stat.Source},
		{"Вариант", "Ответов", "Доля"},
	}
	for _, option := range entity.AnswerOptions {
		rows = append(rows, []interface{}{option, stat.Counts[option], stat.Ratios[option]})
	}
	rows = append(rows,
		[]interface{}{"Ответили", stat.AnsweredCount, stat.AnsweredRatio},
		[]interface{}{"Не ответили", stat.NotAnsweredCount, stat.NotAnsweredRatio},
	)
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := sw.SetRow(cell, row); err != nil {
			h.log.Error("[AnswerHandler] Ошибка записи строки", zap.Int("row", i+1), zap.Error(err))
		}
	}
	if err := sw.Flush(); err != nil {
		h.log.Error("[AnswerHandler] Ошибка при Flush", zap.Error(err))
	}

	filename := fmt.Sprintf("statistic_%d_%d", questionID, planID)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))
	if err := f.Write(c.Writer); err != nil {
		h.log.Error("[AnswerHandler] Ошибка записи Excel в response", zap.Error(err))
	}
}
