package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/cleartonglll-ui/study-pro/internal/config"
)

// fix-db снимает с PostgreSQL флаг dirty после упавшей миграции.
// Пример: fix-db -version 1
func main() {
	configPath := flag.String("config", "config/config.yaml", "путь к файлу конфигурации")
	version := flag.Int("version", -1, "версия миграции, которую нужно проставить")
	flag.Parse()

	if *version < 0 {
		fmt.Fprintln(os.Stderr, "укажите -version: последнюю успешно применённую миграцию")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Database.Driver == "mysql" {
		log.Fatal("fix-db работает только с postgres: для mysql схема создаётся через AutoMigrate")
	}

	db, err := sql.Open("postgres", cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal(err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatal(err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+cfg.Database.MigrationsPath, "postgres", driver)
	if err != nil {
		log.Fatal(err)
	}

	current, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("Current version: %d (dirty=%t). Forcing version %d...\n", current, dirty, *version)

	if err := m.Force(*version); err != nil {
		log.Fatalf("Failed to force version: %v", err)
	}

	fmt.Println("Success! Dirty state cleaned. You can now run the app normally.")
}
