package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/cleartonglll-ui/study-pro/internal/config"
)

// Open подключается к БД выбранного драйвера и приводит схему в актуальное состояние
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "mysql":
		db, err := NewMySQLDB(cfg.MySQLConnectionString())
		if err != nil {
			return nil, err
		}
		if err := AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return db, nil
	case "postgres", "":
		db, err := NewPostgresDB(cfg.PostgresConnectionString())
		if err != nil {
			return nil, err
		}
		if err := MigrateDB(db, cfg.MigrationsPath); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
