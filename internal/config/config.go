package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	AnswerSync AnswerSyncConfig `mapstructure:"answer_sync"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	WorkerPool WorkerPoolConfig `mapstructure:"worker_pool"`
	Log        LogConfig        `mapstructure:"log"`
	TimeZone   TimeZoneConfig   `mapstructure:"timezone"`
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig содержит настройки подключения к БД.
// Driver: "postgres" (по умолчанию) или "mysql".
type DatabaseConfig struct {
	Driver         string `mapstructure:"driver"`
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	DBName         string `mapstructure:"dbname"`
	SSLMode        string `mapstructure:"sslmode"`
	Charset        string `mapstructure:"charset"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Enabled: при false используется заглушка кеша, все операции идут в БД.
	Enabled bool `mapstructure:"enabled"`

	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт).
	Addrs []string `mapstructure:"addrs"`

	// Addr: адрес для режима 'single', если Addrs пустой.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"` // мс
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"` // мс
}

// AnswerSyncConfig содержит настройки конвейера синхронизации ответов.
// Все длительности задаются в миллисекундах.
type AnswerSyncConfig struct {
	MinDelayMs        int    `mapstructure:"min_delay_ms"`
	DelayJitterMs     int    `mapstructure:"delay_jitter_ms"`
	ReconcileCapacity int    `mapstructure:"reconcile_capacity"`
	BatchCapacity     int    `mapstructure:"batch_capacity"`
	BatchThreshold    int    `mapstructure:"batch_threshold"`
	BatchIntervalMs   int    `mapstructure:"batch_interval_ms"`
	PollIntervalMs    int    `mapstructure:"poll_interval_ms"`
	LeaseTTLMs        int    `mapstructure:"lease_ttl_ms"`
	EnqueueTimeoutMs  int    `mapstructure:"enqueue_timeout_ms"`
	RosterSize        int    `mapstructure:"roster_size"`
	OverflowPolicy    string `mapstructure:"overflow_policy"`
	MissingKeyPolicy  string `mapstructure:"missing_key_policy"`
}

// ExchangeConfig содержит настройки обмена баллов на сундуки
type ExchangeConfig struct {
	LeaseTTLMs  int            `mapstructure:"lease_ttl_ms"`
	MirrorTTLMs int            `mapstructure:"mirror_ttl_ms"`
	DefaultCost int64          `mapstructure:"default_cost"`
	BoxCosts    map[string]int `mapstructure:"box_costs"`
}

// WorkerPoolConfig содержит настройки общего пула воркеров
type WorkerPoolConfig struct {
	Workers int `mapstructure:"workers"`
	Backlog int `mapstructure:"backlog"`
}

// LogConfig содержит настройки логирования
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TimeZoneConfig содержит настройки часовых поясов школ
type TimeZoneConfig struct {
	Default string            `mapstructure:"default"`
	Schools map[string]string `mapstructure:"schools"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// MySQLConnectionString формирует DSN для MySQL
func (d *DatabaseConfig) MySQLConnectionString() string {
	charset := d.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=true&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.DBName, charset)
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.mode", "debug")
	vip.SetDefault("server.read_timeout", 10)
	vip.SetDefault("server.write_timeout", 30)

	vip.SetDefault("database.driver", "postgres")
	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("database.migrations_path", "migrations")

	vip.SetDefault("redis.enabled", true)
	vip.SetDefault("redis.mode", "single")

	vip.SetDefault("answer_sync.min_delay_ms", 10000)
	vip.SetDefault("answer_sync.delay_jitter_ms", 9000)
	vip.SetDefault("answer_sync.reconcile_capacity", 100000)
	vip.SetDefault("answer_sync.batch_capacity", 20000)
	vip.SetDefault("answer_sync.batch_threshold", 20)
	vip.SetDefault("answer_sync.batch_interval_ms", 5000)
	vip.SetDefault("answer_sync.poll_interval_ms", 100)
	vip.SetDefault("answer_sync.lease_ttl_ms", 10000)
	vip.SetDefault("answer_sync.enqueue_timeout_ms", 0)
	vip.SetDefault("answer_sync.roster_size", 50)
	vip.SetDefault("answer_sync.overflow_policy", "direct")
	vip.SetDefault("answer_sync.missing_key_policy", "commit")

	vip.SetDefault("exchange.lease_ttl_ms", 30000)
	vip.SetDefault("exchange.mirror_ttl_ms", 60000)
	vip.SetDefault("exchange.default_cost", 1000)

	vip.SetDefault("worker_pool.workers", 20)
	vip.SetDefault("worker_pool.backlog", 100)

	vip.SetDefault("log.level", "info")
	vip.SetDefault("log.file", "logs/app.log")
	vip.SetDefault("log.max_size_mb", 100)
	vip.SetDefault("log.max_backups", 5)
	vip.SetDefault("log.max_age_days", 30)
	vip.SetDefault("log.compress", true)
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	vip := viper.New() // отдельный экземпляр, без глобального состояния

	setDefaults(vip)

	// Переменные окружения привязываем явно
	vip.BindEnv("database.driver", "DATABASE_DRIVER")
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	vip.BindEnv("redis.enabled", "REDIS_ENABLED")
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("answer_sync.overflow_policy", "ANSWER_SYNC_OVERFLOW_POLICY")
	vip.BindEnv("answer_sync.missing_key_policy", "ANSWER_SYNC_MISSING_KEY_POLICY")

	vip.BindEnv("server.port", "SERVER_PORT")
	vip.BindEnv("server.mode", "GIN_MODE")
	vip.BindEnv("log.level", "LOG_LEVEL")

	if configPath != "" {
		vip.SetConfigFile(configPath)
		// Файла может не быть, тогда работают env и умолчания
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// REDIS_ADDRS приходит одной строкой через запятую
	if len(cfg.Redis.Addrs) == 1 && strings.Contains(cfg.Redis.Addrs[0], ",") {
		cfg.Redis.Addrs = strings.Split(cfg.Redis.Addrs[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Server.Mode != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Driver: %s", cfg.Database.Driver)
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Enabled: %t", cfg.Redis.Enabled)
		log.Printf("Redis Mode: %s", cfg.Redis.Mode)
		log.Printf("Answer Sync Overflow Policy: %s", cfg.AnswerSync.OverflowPolicy)
		log.Printf("Answer Sync Missing Key Policy: %s", cfg.AnswerSync.MissingKeyPolicy)
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	return &cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
		return fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	switch c.Database.Driver {
	case "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.AnswerSync.OverflowPolicy {
	case "drop", "direct":
	default:
		return fmt.Errorf("unsupported answer_sync.overflow_policy: %s", c.AnswerSync.OverflowPolicy)
	}
	switch c.AnswerSync.MissingKeyPolicy {
	case "drop", "commit":
	default:
		return fmt.Errorf("unsupported answer_sync.missing_key_policy: %s", c.AnswerSync.MissingKeyPolicy)
	}
	if c.Server.Mode == "release" && c.Database.Password == "" {
		return fmt.Errorf("database password is required in release mode (check DATABASE_PASSWORD env var)")
	}
	return nil
}
