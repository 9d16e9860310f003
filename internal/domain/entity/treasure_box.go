package entity

import "time"

// Статусы сундука
const (
	TreasureBoxStatusRedeemed = 1
)

// TreasureBox - сундук, полученный в обмен на баллы. Создаётся только при подтверждении обмена.
type TreasureBox struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	BoxType   int       `gorm:"not null" json:"box_type"`
	Status    int       `gorm:"not null;default:1" json:"status"`
	PointCost int64     `gorm:"not null" json:"point_cost"`
	CreatedAt time.Time `gorm:"column:create_time" json:"create_time"`
	UpdatedAt time.Time `gorm:"column:update_time" json:"update_time"`
}

// TableName определяет имя таблицы для GORM
func (TreasureBox) TableName() string {
	return "treasure_box"
}

// RandomTreasureBox - запись о полученном случайном сундуке
type RandomTreasureBox struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ActivityID  string    `gorm:"size:64;not null;index" json:"activity_id"`
	UserID      int64     `gorm:"not null;index" json:"user_id"`
	GoldAmount  int       `gorm:"not null" json:"gold_amount"`
	Status      int       `gorm:"not null;default:1" json:"status"`
	CreatedAt   time.Time `gorm:"column:create_time" json:"create_time"`
	ReceiveTime time.Time `gorm:"column:receive_time" json:"receive_time"`
}

// TableName определяет имя таблицы для GORM
func (RandomTreasureBox) TableName() string {
	return "random_treasure_box"
}
