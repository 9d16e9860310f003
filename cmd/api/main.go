package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/config"
	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
	"github.com/cleartonglll-ui/study-pro/internal/handler"
	"github.com/cleartonglll-ui/study-pro/internal/middleware"
	"github.com/cleartonglll-ui/study-pro/internal/pkg/workerpool"
	pgRepo "github.com/cleartonglll-ui/study-pro/internal/repository/postgres"
	redisRepo "github.com/cleartonglll-ui/study-pro/internal/repository/redis"
	"github.com/cleartonglll-ui/study-pro/internal/service"
	"github.com/cleartonglll-ui/study-pro/internal/service/answersync"
	"github.com/cleartonglll-ui/study-pro/internal/service/exchange"
	"github.com/cleartonglll-ui/study-pro/pkg/database"
	"github.com/cleartonglll-ui/study-pro/pkg/logger"
	"github.com/cleartonglll-ui/study-pro/pkg/monitoring"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	zapLogger := logger.New(cfg.Log)
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)

	monitoring.Init()

	// Подключаемся к БД и применяем миграции
	db, err := database.Open(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to open database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}

	// Кеш необязателен: без Redis все операции идут напрямую в БД
	var (
		cacheRepo repository.CacheRepository = redisRepo.NewDisabledCache()
		lockRepo  repository.LockRepository  = redisRepo.NewDisabledLock()
	)
	if cfg.Redis.Enabled {
		redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
		if err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()

		cache, err := redisRepo.NewCacheRepo(redisClient)
		if err != nil {
			zapLogger.Fatal("Failed to initialize CacheRepo", zap.Error(err))
		}
		locks, err := redisRepo.NewLockRepo(redisClient)
		if err != nil {
			zapLogger.Fatal("Failed to initialize LockRepo", zap.Error(err))
		}
		cacheRepo, lockRepo = cache, locks
		zapLogger.Info("Successfully connected to Redis", zap.String("mode", cfg.Redis.Mode))
	} else {
		zapLogger.Warn("Redis disabled, running in database-only mode")
	}

	// Репозитории
	answerRepo := pgRepo.NewAnswerRepo(db)
	pointRepo := pgRepo.NewPointRepo(db)
	randomBoxRepo := pgRepo.NewRandomBoxRepo(db)

	// Общий пул воркеров
	pool := workerpool.New(cfg.WorkerPool.Workers, cfg.WorkerPool.Backlog, zapLogger)

	// Конвейер синхронизации ответов
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeline := answersync.NewPipeline(answersync.ConfigFromSettings(cfg.AnswerSync), answersync.Dependencies{
		AnswerRepo: answerRepo,
		Cache:      cacheRepo,
		Locks:      lockRepo,
		Pool:       pool,
		Logger:     zapLogger,
	})
	pipeline.Start(ctx)

	// Сервисы
	coordinator := exchange.NewCoordinator(exchange.ConfigFromSettings(cfg.Exchange), exchange.Dependencies{
		Points: pointRepo,
		Cache:  cacheRepo,
		Locks:  lockRepo,
		Logger: zapLogger,
	})
	answerService := service.NewAnswerService(answerRepo, zapLogger)
	treasureBoxService := service.NewTreasureBoxService(cacheRepo, randomBoxRepo, pool, zapLogger)
	timeZoneService := service.NewTimeZoneService(cfg.TimeZone, zapLogger)

	// Обработчики
	answerHandler := handler.NewAnswerHandler(pipeline.Ingestor, pipeline.Statistics, answerService, zapLogger)
	exchangeHandler := handler.NewExchangeHandler(coordinator, zapLogger)
	randomBoxHandler := handler.NewRandomBoxHandler(treasureBoxService, zapLogger)
	systemHandler := handler.NewSystemHandler(cfg.Redis.Enabled)

	rateLimiter := middleware.NewRateLimiter(cacheRepo, zapLogger)

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	isProduction := gin.Mode() == gin.ReleaseMode

	router := gin.New()
	router.Use(gin.Recovery())

	// В production не доверяем прокси-заголовкам, в development доверяем localhost
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			zapLogger.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			zapLogger.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:8000", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.SchoolIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(middleware.TimeZone(timeZoneService))

	router.GET("/health", systemHandler.Health)
	router.GET("/metrics", monitoring.PrometheusHandler())

	statIDs := []gin.HandlerFunc{
		middleware.ExtractIDParam("questionId", "questionID"),
		middleware.ExtractIDParam("planId", "planID"),
	}

	answerGroup := router.Group("/answer")
	{
		submit := answerGroup.Group("")
		submit.Use(rateLimiter.Limit(middleware.SubmitRateLimitConfig()))
		{
			submit.POST("/submit-redis", answerHandler.SubmitViaCache)
			submit.POST("/submit-db", answerHandler.SubmitDirect)
			submit.POST("/submit-db-multi", answerHandler.SubmitHistory)
		}

		answerGroup.GET("/statistic-redis/:questionId/:planId", append(statIDs, answerHandler.GetStatistics)...)
		answerGroup.GET("/statistic-db/:questionId/:planId", append(statIDs, answerHandler.GetStatisticsFromDB)...)
		answerGroup.GET("/statistic-export/:questionId/:planId", append(statIDs, answerHandler.ExportStatistics)...)
	}

	api := router.Group("/api")
	{
		exchangeGroup := api.Group("/exchange")
		{
			exchangeGroup.POST("/treasure-box", rateLimiter.LimitByIP(middleware.ExchangeRateLimitConfig()), exchangeHandler.ExchangeTreasureBox)
			exchangeGroup.POST("/add-points", exchangeHandler.AddPoints)
			exchangeGroup.GET("/points/:userId", middleware.ExtractIDParam("userId", "userID"), exchangeHandler.GetPoints)
		}

		randomBoxGroup := api.Group("/random-box")
		{
			randomBoxGroup.POST("/generate", randomBoxHandler.Generate)
			randomBoxGroup.POST("/grab/:activityId/:userId",
				rateLimiter.LimitByIP(middleware.ExchangeRateLimitConfig()),
				middleware.ExtractIDParam("userId", "userID"),
				randomBoxHandler.Grab)
			randomBoxGroup.GET("/activity/:activityId", randomBoxHandler.Activity)
		}

		api.GET("/timezone/now", systemHandler.Now)
	}

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		zapLogger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Сначала перестаём принимать запросы, затем сохраняем отложенные ответы, затем гасим пул
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := pipeline.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Answer pipeline did not drain in time", zap.Error(err))
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Worker pool did not stop in time", zap.Error(err))
	}
	cancel()

	zapLogger.Info("Server exited properly")
}
