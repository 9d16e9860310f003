package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
)

// RateLimitConfig содержит настройки rate limiting
type RateLimitConfig struct {
	// MaxRequests - максимальное количество запросов за Window
	MaxRequests int
	// Window - временное окно для подсчёта запросов
	Window time.Duration
	// KeyPrefix - префикс для ключей в кеше
	KeyPrefix string
}

// SubmitRateLimitConfig - лимит на отправку ответов: ученик может часто менять выбор
func SubmitRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRequests: 120,
		Window:      1 * time.Minute,
		KeyPrefix:   "rl:answer",
	}
}

// ExchangeRateLimitConfig - строгий лимит для обменов и получения сундуков
func ExchangeRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRequests: 10,              // 10 попыток
		Window:      1 * time.Minute, // за 1 минуту
		KeyPrefix:   "rl:exchange",
	}
}

// RateLimiter создаёт middleware для rate limiting поверх CacheRepository
type RateLimiter struct {
	cache repository.CacheRepository
	log   *zap.Logger
}

// NewRateLimiter создает новый RateLimiter
func NewRateLimiter(cache repository.CacheRepository, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{cache: cache, log: log}
}

// Limit возвращает Gin middleware с заданной конфигурацией
// Ключ формируется из IP + endpoint path
func (rl *RateLimiter) Limit(cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath() // Gin route pattern, e.g. "/api/exchange/treasure-box"
		if path == "" {
			path = c.Request.URL.Path
		}
		rl.apply(c, cfg, fmt.Sprintf("%s:%s:%s", cfg.KeyPrefix, c.ClientIP(), path))
	}
}

// LimitByIP ограничивает количество запросов по IP (без привязки к path)
// Полезно для глобального лимита на группу endpoints
func (rl *RateLimiter) LimitByIP(cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		rl.apply(c, cfg, fmt.Sprintf("%s:%s", cfg.KeyPrefix, c.ClientIP()))
	}
}

func (rl *RateLimiter) apply(c *gin.Context, cfg RateLimitConfig, key string) {
	// без кеша лимит не считается
	if !rl.cache.Enabled() {
		c.Next()
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	count, ttl, err := rl.cache.IncrementWindow(ctx, key, cfg.Window)
	if err != nil {
		// При ошибке кеша пропускаем запрос (fail-open), но логируем
		rl.log.Warn("[RateLimiter] Ошибка кеша, пропускаем запрос", zap.String("key", key), zap.Error(err))
		c.Next()
		return
	}

	remaining := cfg.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	retryAfter := int(cfg.Window.Seconds())
	if ttl > 0 {
		retryAfter = int(ttl.Seconds())
	}

	c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.MaxRequests))
	c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", retryAfter))

	if int(count) > cfg.MaxRequests {
		rl.log.Info("[RateLimiter] Превышен лимит запросов",
			zap.String("ip", c.ClientIP()), zap.String("key", key),
			zap.Int64("count", count), zap.Int("limit", cfg.MaxRequests))

		c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "Too many requests. Please try again later.",
			"error_type":  "rate_limited",
			"retry_after": retryAfter,
		})
		return
	}

	c.Next()
}
