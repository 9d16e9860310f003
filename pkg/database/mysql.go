package database

import (
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
)

// NewMySQLDB создает подключение к MySQL
func NewMySQLDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := configurePool(db); err != nil {
		return nil, err
	}
	log.Println("Database connection established")
	return db, nil
}

// AutoMigrate создаёт таблицы по моделям (используется для MySQL)
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.Answer{},
		&entity.UserPoint{},
		&entity.TreasureBox{},
		&entity.RandomTreasureBox{},
	)
}
