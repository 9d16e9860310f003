package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cleartonglll-ui/study-pro/internal/pkg/timezone"
)

// SystemHandler отвечает на служебные запросы
type SystemHandler struct {
	cacheEnabled bool
}

// NewSystemHandler создает обработчик служебных запросов
func NewSystemHandler(cacheEnabled bool) *SystemHandler {
	return &SystemHandler{cacheEnabled: cacheEnabled}
}

// Health сообщает, что сервис жив
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "cache_enabled": h.cacheEnabled})
}

// Now возвращает текущее время в часовом поясе школы запроса
// GET /api/timezone/now
func (h *SystemHandler) Now(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now()
	c.JSON(http.StatusOK, gin.H{
		"zone":      timezone.FromContext(ctx).String(),
		"local":     timezone.Format(ctx, now),
		"timestamp": now.Unix(),
	})
}
