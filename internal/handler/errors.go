package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
)

// respondError переводит ошибку сервиса в HTTP ответ.
// Детали внутренних ошибок остаются в логе.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict"})
	case errors.Is(err, apperrors.ErrCacheUnavailable), errors.Is(err, apperrors.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable, retry later"})
	default:
		log.Error("[Handler] Внутренняя ошибка",
			zap.String("method", c.Request.Method), zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
