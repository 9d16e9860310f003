package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/handler/dto"
	"github.com/cleartonglll-ui/study-pro/internal/service"
)

// RandomBoxDistributor раздаёт случайные сундуки (service.TreasureBoxService)
type RandomBoxDistributor interface {
	Generate(ctx context.Context, activityID string, count, minGold, maxGold int) ([]int, error)
	Grab(ctx context.Context, activityID string, userID int64) (*service.GrabResult, error)
	Activity(ctx context.Context, activityID string) (*service.ActivityView, error)
}

// RandomBoxHandler обрабатывает запросы случайных сундуков
type RandomBoxHandler struct {
	boxes RandomBoxDistributor
	log   *zap.Logger
}

// NewRandomBoxHandler создает новый обработчик случайных сундуков
func NewRandomBoxHandler(boxes RandomBoxDistributor, log *zap.Logger) *RandomBoxHandler {
	return &RandomBoxHandler{boxes: boxes, log: orNop(log)}
}

// Generate создаёт активность со случайными сундуками
// POST /api/random-box/generate
func (h *RandomBoxHandler) Generate(c *gin.Context) {
	var req dto.GenerateBoxesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	amounts, err := h.boxes.Generate(c.Request.Context(), req.ActivityID, req.Count, req.MinGold, req.MaxGold)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	total := 0
	for _, a := range amounts {
		total += a
	}
	c.JSON(http.StatusOK, dto.GenerateBoxesResponse{ActivityID: req.ActivityID, Count: len(amounts), TotalGold: total})
}

// Grab выдаёт пользователю сундук активности
// POST /api/random-box/grab/:activityId/:userId
func (h *RandomBoxHandler) Grab(c *gin.Context) {
	res, err := h.boxes.Grab(c.Request.Context(), c.Param("activityId"), c.GetInt64("userID"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Activity возвращает остаток и выданные сундуки активности
// GET /api/random-box/activity/:activityId
func (h *RandomBoxHandler) Activity(c *gin.Context) {
	view, err := h.boxes.Activity(c.Request.Context(), c.Param("activityId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
