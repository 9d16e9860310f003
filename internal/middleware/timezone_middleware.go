package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cleartonglll-ui/study-pro/internal/pkg/timezone"
)

// SchoolIDHeader - заголовок с ID школы запроса
const SchoolIDHeader = "X-School-Id"

// LocationResolver возвращает часовой пояс школы (service.TimeZoneService)
type LocationResolver interface {
	Location(schoolID int64) *time.Location
}

// TimeZone кладёт часовой пояс школы в контекст запроса.
// ID школы берётся из заголовка X-School-Id или параметра schoolId; без него - пояс по умолчанию.
func TimeZone(resolver LocationResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(SchoolIDHeader)
		if raw == "" {
			raw = c.Query("schoolId")
		}
		schoolID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			schoolID = 0
		}
		loc := resolver.Location(schoolID)
		c.Request = c.Request.WithContext(timezone.WithLocation(c.Request.Context(), loc))
		c.Next()
	}
}
