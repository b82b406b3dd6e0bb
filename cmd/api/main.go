package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/jeovahfialho/stock-tracker/internal/api"
	"github.com/jeovahfialho/stock-tracker/internal/config"
	"github.com/jeovahfialho/stock-tracker/internal/service"
	"github.com/jeovahfialho/stock-tracker/internal/storage/cache"
	"github.com/jeovahfialho/stock-tracker/internal/storage/postgres"
	"github.com/jeovahfialho/stock-tracker/internal/stream/redisstream"
	pkglogger "github.com/jeovahfialho/stock-tracker/pkg/logger"
)

// @title Stock Position Tracker API
// @version 1.0
// @description Trade ingestion and position query API

// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	if err := pkglogger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal("failed to init logger:", err)
	}
	defer pkglogger.Close()

	db, err := connectPostgres(cfg)
	if err != nil {
		log.Fatal("failed to connect to PostgreSQL:", err)
	}
	defer db.Close()

	cacheService, err := cache.NewRedisCache(cfg)
	if err != nil {
		// Redis carries the change stream; the write path cannot run
		// without it.
		log.Fatal("failed to connect to Redis:", err)
	}
	defer cacheService.Close()

	store := postgres.NewStore(db)
	publisher := redisstream.NewPublisher(cacheService.Client(), cfg.StreamName)

	// Services
	tradeService := service.NewTradeService(store, publisher, pkglogger.Log)
	positionService := service.NewPositionService(store, cacheService, cfg.CacheTTL, pkglogger.Log)

	// Handler
	handler := api.NewHandler(db, cacheService, tradeService, positionService)

	// Fiber app
	app := fiber.New(fiber.Config{
		Prefork:               false,
		ServerHeader:          "Stock-Tracker",
		DisableStartupMessage: false,
		AppName:               "Stock Position Tracker v1.0.0",
		ReadTimeout:           cfg.APIReadTimeout,
		WriteTimeout:          cfg.APIWriteTimeout,
		IdleTimeout:           120 * time.Second,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
		ProxyHeader:           "X-Forwarded-For",
		BodyLimit:             1 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Setup routes
	api.SetupRoutes(app, handler)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("Starting server on %s", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatal("Server error:", err)
	}
}

func connectPostgres(cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
