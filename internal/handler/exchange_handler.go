package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/handler/dto"
	"github.com/cleartonglll-ui/study-pro/internal/service/exchange"
)

// PointExchanger обменивает баллы и ведёт их учёт (exchange.Coordinator)
type PointExchanger interface {
	Exchange(ctx context.Context, userID int64, boxType int) *exchange.Result
	AddPoints(ctx context.Context, userID, points int64) (*entity.UserPoint, error)
	GetPoints(ctx context.Context, userID int64) (*entity.UserPoint, error)
}

// ExchangeHandler обрабатывает запросы обмена баллов
type ExchangeHandler struct {
	exchanger PointExchanger
	log       *zap.Logger
}

// NewExchangeHandler создает новый обработчик обменов
func NewExchangeHandler(exchanger PointExchanger, log *zap.Logger) *ExchangeHandler {
	return &ExchangeHandler{exchanger: exchanger, log: orNop(log)}
}

// ExchangeTreasureBox обменивает баллы на сундук.
// Отказ (занято, не хватает баллов) - это обычный ответ 200 со статусом.
// POST /api/exchange/treasure-box
func (h *ExchangeHandler) ExchangeTreasureBox(c *gin.Context) {
	var req dto.ExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	res := h.exchanger.Exchange(c.Request.Context(), req.UserID, req.BoxType)
	c.JSON(http.StatusOK, res)
}

// AddPoints начисляет баллы пользователю
// POST /api/exchange/add-points
func (h *ExchangeHandler) AddPoints(c *gin.Context) {
	var req dto.AddPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	account, err := h.exchanger.AddPoints(c.Request.Context(), req.UserID, req.Points)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPointsResponse(account))
}

// GetPoints возвращает баланс пользователя
// GET /api/exchange/points/:userId
func (h *ExchangeHandler) GetPoints(c *gin.Context) {
	account, err := h.exchanger.GetPoints(c.Request.Context(), c.GetInt64("userID"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewPointsResponse(account))
}
