package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/gradelens/backend/internal/api/handlers"
	"github.com/gradelens/backend/internal/chat"
	"github.com/gradelens/backend/internal/gradestats"
	"github.com/gradelens/backend/internal/llm"
	"github.com/gradelens/backend/internal/metrics"
	"github.com/gradelens/backend/internal/middleware/ratelimit"
	"github.com/gradelens/backend/internal/middleware/security"
	"github.com/gradelens/backend/internal/middleware/validation"
	"github.com/gradelens/backend/internal/reviews"
	"github.com/gradelens/backend/internal/storage/sqlite"
	"github.com/gradelens/backend/pkg/config"
	appLogger "github.com/gradelens/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting GradeLens API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to open grade database", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	reviewTTL := time.Duration(cfg.Cache.TTLHours) * time.Hour

	var reviewStore reviews.Store
	if cfg.Cache.Backend == "redis" {
		redisStore, err := reviews.NewRedisStore(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			reviewTTL,
		)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis review cache", zap.Error(err))
		}
		reviewStore = redisStore
	} else {
		reviewStore = reviews.NewCache(cfg.Cache.MaxEntries, reviewTTL)
	}

	reviewFetcher := reviews.NewFetcher(reviewStore, reviews.FetcherConfig{
		BaseURL:     cfg.Reviews.BaseURL,
		Concurrency: cfg.Reviews.FetchConcurrency,
		Timeout:     time.Duration(cfg.Reviews.FetchTimeoutSec) * time.Second,
		BatchDelay:  time.Duration(cfg.Reviews.BatchDelayMS) * time.Millisecond,
	})

	statsFetcher := gradestats.NewFetcher(sqliteClient)

	llmClient := llm.NewClient(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	engine := chat.NewEngine(sqliteClient, statsFetcher, reviewFetcher, llmClient, chat.EngineConfig{
		ChunkDelay: time.Duration(cfg.Chat.ChunkDelayMS) * time.Millisecond,
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 60,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		MaxQueryLength: cfg.Chat.MaxQueryLength,
		Logger:         appLogger.GetLogger(),
	}))

	chatHandler := handlers.NewChatHandler(engine)
	courseHandler := handlers.NewCourseHandler(sqliteClient, statsFetcher)
	historyHandler := handlers.NewHistoryHandler(sqliteClient)
	wsHandler := handlers.NewWebSocketHandler(engine)

	api := app.Group("/api/v1")

	api.Post("/chat", chatHandler.HandleChat)
	api.Get("/chat/history", historyHandler.GetChatHistory)

	api.Get("/courses/:code/stats", courseHandler.GetCourseStats)
	api.Get("/courses/:code/professors", courseHandler.GetCourseProfessors)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.Handler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
