package dto

import "github.com/cleartonglll-ui/study-pro/internal/domain/entity"

// ExchangeRequest - обмен баллов на сундук
type ExchangeRequest struct {
	UserID  int64 `json:"user_id" binding:"required,gt=0"`
	BoxType int   `json:"box_type" binding:"required,gt=0"`
}

// AddPointsRequest - начисление баллов
type AddPointsRequest struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
	Points int64 `json:"points" binding:"required,gt=0"`
}

// PointsResponse - баланс пользователя
type PointsResponse struct {
	UserID      int64 `json:"user_id"`
	Point       int64 `json:"point"`
	FrozenPoint int64 `json:"frozen_point"`
	Total       int64 `json:"total"`
}

// NewPointsResponse создает ответ с балансом
func NewPointsResponse(p *entity.UserPoint) PointsResponse {
	return PointsResponse{
		UserID:      p.UserID,
		Point:       p.Point,
		FrozenPoint: p.FrozenPoint,
		Total:       p.Total(),
	}
}

// GenerateBoxesRequest - создание активности случайных сундуков
type GenerateBoxesRequest struct {
	ActivityID string `json:"activity_id" binding:"required,max=64"`
	Count      int    `json:"count" binding:"required,gt=0,lte=10000"`
	MinGold    int    `json:"min_gold" binding:"required,gt=0"`
	MaxGold    int    `json:"max_gold" binding:"required,gtefield=MinGold"`
}

// GenerateBoxesResponse - итог генерации
type GenerateBoxesResponse struct {
	ActivityID string `json:"activity_id"`
	Count      int    `json:"count"`
	TotalGold  int    `json:"total_gold"`
}
