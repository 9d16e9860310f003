package exchange

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/config"
	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
)

// Status - итог обмена, который видит клиент
type Status string

const (
	StatusSuccess      Status = "success"
	StatusBusy         Status = "busy"
	StatusInsufficient Status = "insufficient_points"
	StatusFailed       Status = "failed"
)

// State - фаза обмена Try/Confirm/Cancel
type State string

const (
	StateInit      State = "INIT"
	StateTried     State = "TRIED"
	StateConfirmed State = "CONFIRMED"
	StateCancelled State = "CANCELLED"
)

// Result описывает завершённый обмен
type Result struct {
	UserID  int64  `json:"user_id"`
	BoxType int    `json:"box_type"`
	Cost    int64  `json:"cost"`
	Status  Status `json:"status"`
	State   State  `json:"state"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Config содержит настройки обмена
type Config struct {
	LeaseTTL    time.Duration
	MirrorTTL   time.Duration
	DefaultCost int64
	BoxCosts    map[int]int64
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		LeaseTTL:    30 * time.Second,
		MirrorTTL:   time.Minute,
		DefaultCost: 1000,
		BoxCosts:    map[int]int64{},
	}
}

// ConfigFromSettings строит Config из секции exchange.
// Ключи box_costs - номера типов сундуков; нечисловые ключи пропускаются.
func ConfigFromSettings(s config.ExchangeConfig) *Config {
	cfg := DefaultConfig()
	if s.LeaseTTLMs > 0 {
		cfg.LeaseTTL = time.Duration(s.LeaseTTLMs) * time.Millisecond
	}
	if s.MirrorTTLMs > 0 {
		cfg.MirrorTTL = time.Duration(s.MirrorTTLMs) * time.Millisecond
	}
	if s.DefaultCost > 0 {
		cfg.DefaultCost = s.DefaultCost
	}
	for key, cost := range s.BoxCosts {
		boxType, err := strconv.Atoi(key)
		if err != nil || cost <= 0 {
			continue
		}
		cfg.BoxCosts[boxType] = int64(cost)
	}
	return cfg
}

// Cost возвращает стоимость сундука в баллах
func (c *Config) Cost(boxType int) int64 {
	if cost, ok := c.BoxCosts[boxType]; ok {
		return cost
	}
	return c.DefaultCost
}

// Dependencies содержит зависимости координатора
type Dependencies struct {
	Points repository.PointRepository
	Cache  repository.CacheRepository
	Locks  repository.LockRepository
	Logger *zap.Logger
}

func (d Dependencies) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// PointCacheKey - хеш-зеркало счёта в кеше (поля point и frozenPoint)
func PointCacheKey(userID int64) string {
	return fmt.Sprintf("user_point:%d", userID)
}

// LeaseKey - ключ аренды обмена
func LeaseKey(userID int64, boxType int) string {
	return fmt.Sprintf("exchange_lock:%d:%d", userID, boxType)
}
