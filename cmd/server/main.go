package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deba607/AbJee-Travel-sub001/internal/config"
	"github.com/deba607/AbJee-Travel-sub001/internal/database"
	"github.com/deba607/AbJee-Travel-sub001/internal/handler"
	"github.com/deba607/AbJee-Travel-sub001/internal/middleware"
	"github.com/deba607/AbJee-Travel-sub001/internal/repository"
	"github.com/deba607/AbJee-Travel-sub001/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	// Database
	db, err := database.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(context.Background(), db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations applied successfully")

	// Repositories
	userRepo := repository.NewUserRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	msgRepo := repository.NewMessageRepository(db)

	// Services
	authSvc := service.NewAuthService(userRepo, cfg.JWTSecret)
	entitlements := service.NewTierEntitlements()
	hub := service.NewHub()
	typingLimit := service.NewKeyedLimiter(cfg.TypingEventsPerMin, 5)
	notifier := service.NewWebhookNotifier(cfg.ReportsWebhookURL)
	chatSvc := service.NewChatService(roomRepo, msgRepo, userRepo, entitlements, hub, typingLimit, notifier, service.ChatConfig{
		MaxMessageLen: cfg.MaxMessageLen,
		HistoryLimit:  cfg.HistoryLimit,
	})

	// Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	app.Use(recover.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// Health + metrics
	healthH := handler.NewHealthHandler(db, hub)
	app.Get("/health", healthH.Health)
	app.Get("/ready", healthH.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Admin
	v1 := app.Group("/api/v1")
	admin := v1.Group("/admin", middleware.AdminKey(cfg.AdminKey))
	adminH := handler.NewAdminHandler(userRepo, roomRepo, hub)
	admin.Get("/stats", adminH.Stats)
	admin.Post("/announce", adminH.Announce)

	// WebSocket
	wsH := handler.NewWSHandler(hub, authSvc, chatSvc, userRepo)
	app.Get("/ws", middleware.RateLimit(30, time.Minute), wsH.Upgrade)

	// Start hub
	go hub.Run()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Printf("wanderlink chat backend running on :%s (%s)", cfg.Port, cfg.Env)

	<-quit
	log.Println("Shutting down...")
	_ = app.ShutdownWithTimeout(5 * time.Second)
	hub.Shutdown()
	typingLimit.Stop()
	log.Println("Server stopped")
}
