package entity

import "time"

// UserPoint - счёт баллов пользователя.
// Point - доступные баллы, FrozenPoint - зарезервированные незавершённым обменом.
type UserPoint struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      int64     `gorm:"not null;uniqueIndex" json:"user_id"`
	Point       int64     `gorm:"not null;default:0" json:"point"`
	FrozenPoint int64     `gorm:"not null;default:0" json:"frozen_point"`
	CreatedAt   time.Time `gorm:"column:create_time" json:"create_time"`
	UpdatedAt   time.Time `gorm:"column:update_time" json:"update_time"`
}

// TableName определяет имя таблицы для GORM
func (UserPoint) TableName() string {
	return "user_point"
}

// Total возвращает сумму доступных и замороженных баллов
func (p *UserPoint) Total() int64 {
	return p.Point + p.FrozenPoint
}
