package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"aiplatform/internal/config"
	"aiplatform/internal/database"
	"aiplatform/internal/handlers"
	"aiplatform/internal/jobs"
	"aiplatform/internal/llm"
	"aiplatform/internal/logging"
	"aiplatform/internal/middleware"
	"aiplatform/internal/services"
	"aiplatform/pkg/auth"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logging.Init()
	cfg := config.Load()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("⚠️  Redis unreachable, using database-backed counters: %v", err)
			rdb = nil
		} else {
			log.Println("✅ Redis connected")
		}
		cancel()
	}

	registryCfg, err := llm.LoadRegistryConfig(cfg.ModelsConfigPath, cfg.ModelsDir)
	if err != nil {
		log.Fatalf("❌ Failed to load model catalog: %v", err)
	}
	if cfg.DefaultModel != "" {
		registryCfg.Default = cfg.DefaultModel
	}
	registry, err := llm.NewRegistry(registryCfg, cfg.ModelRuntimeURL, cfg.StreamStallLimit)
	if err != nil {
		log.Fatalf("❌ Failed to build model registry: %v", err)
	}

	jwtAuth, err := auth.NewLocalJWTAuth(cfg.JWTSecret, 0, time.Duration(cfg.JWTExpiryDays)*24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Failed to initialize auth: %v", err)
	}
	if cfg.IsProduction() && cfg.JWTSecret == "dev-secret-change-in-production" {
		log.Fatal("❌ JWT_SECRET must be set in production")
	}

	userService := services.NewUserService(db)
	tierService := services.NewTierService(db)
	sessionService := services.NewSessionService(db)
	limiter := services.NewUsageLimiter(rdb, sessionService,
		cfg.RateLimitFree, cfg.RateLimitPremium, cfg.RateLimitAdmin, cfg.RateLimitEnforce)
	chatService := services.NewChatService(registry, sessionService, userService, tierService, limiter)
	paymentService := services.NewPaymentService(db, tierService,
		cfg.PaymentBaseURL, cfg.PaymentServerKey, cfg.PremiumPriceIDR, cfg.PremiumDays)

	scheduler, err := jobs.NewScheduler(sessionService, tierService, paymentService)
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("❌ Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "aiplatform",
		DisableStartupMessage: cfg.IsProduction(),
		ReadTimeout:           30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if !cfg.IsProduction() {
		app.Use(logger.New())
	}

	prometheus := fiberprometheus.New("aiplatform")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	authHandler := handlers.NewAuthHandler(userService, jwtAuth)
	chatHandler := handlers.NewChatHandler(chatService, sessionService)
	modelHandler := handlers.NewModelHandler(registry)
	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg.IsProduction())
	healthHandler := handlers.NewHealthHandler(db, registry, version)

	app.Get("/health", healthHandler.Health)
	app.Get("/api/health", healthHandler.Health)
	app.Get("/api/models", modelHandler.List)
	app.Get("/api/usage", middleware.AuthMiddleware(jwtAuth), chatHandler.Usage)

	authGroup := app.Group("/api/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Get("/me", middleware.AuthMiddleware(jwtAuth), authHandler.Me)

	chatGroup := app.Group("/api/chat", middleware.AuthMiddleware(jwtAuth))
	chatGroup.Post("/send", chatHandler.Send)
	chatGroup.Get("/history", chatHandler.History)
	chatGroup.Delete("/history", chatHandler.Clear)
	chatGroup.Post("/clear", chatHandler.Clear)
	chatGroup.Get("/usage", chatHandler.Usage)

	paymentGroup := app.Group("/api/payments")
	paymentGroup.Post("/webhook", paymentHandler.Webhook)
	paymentGroup.Post("/create", middleware.AuthMiddleware(jwtAuth), paymentHandler.Create)
	paymentGroup.Get("/status/:order_id", middleware.AuthMiddleware(jwtAuth), paymentHandler.Status)

	go func() {
		log.Printf("🚀 Server listening on :%s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("⚠️  Shutdown error: %v", err)
	}
	log.Println("✅ Server stopped")
}
