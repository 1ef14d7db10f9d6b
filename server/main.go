package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kitchenhub/api/routes"
	"kitchenhub/internal/notifications"
	"kitchenhub/internal/shared/config"
	"kitchenhub/internal/shared/database"
	"kitchenhub/internal/shared/middleware"
	"kitchenhub/pkg/logger"
	"kitchenhub/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("Failed to connect to databases", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	publisher := newPublisher(cfg, appLogger)
	defer func() {
		if err := publisher.Close(); err != nil {
			appLogger.Error("Error closing event publisher", slog.Any("error", err))
		}
	}()

	services, err := routes.BuildServices(cfg, db.PostgreSQL, db.Redis, publisher)
	if err != nil {
		appLogger.Error("Failed to wire services", slog.Any("error", err))
		os.Exit(1)
	}

	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewRateLimiter(db.Redis, &ratelimit.Config{
			Enabled:         cfg.RateLimit.Enabled,
			WindowDuration:  cfg.RateLimit.WindowDuration,
			DefaultRequests: cfg.RateLimit.DefaultRequests,
			CommandRequests: cfg.RateLimit.CommandRequests,
			ManagerRequests: cfg.RateLimit.ManagerRequests,
			AdminRequests:   cfg.RateLimit.AdminRequests,
			WebhookRequests: cfg.RateLimit.WebhookRequests,
			HealthRequests:  cfg.RateLimit.HealthRequests,
			WhitelistedIPs:  cfg.RateLimit.WhitelistedIPs,
		})
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	jobsCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	if cfg.Jobs.Enabled {
		services.Scheduler.Start(jobsCtx)
		defer services.Scheduler.Stop()
	}

	router := setupRouter(cfg, db, services, rateLimiter)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("🚀 Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("version", Version),
			slog.String("commit", GitCommit),
			slog.String("built", BuildTime),
			slog.Bool("sandbox_payments", services.Sandbox),
			slog.Bool("kafka_events", cfg.Kafka.Enabled),
			slog.Bool("sweeps", cfg.Jobs.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

// newPublisher returns the Kafka publisher, or a log publisher when Kafka is
// disabled or unreachable
func newPublisher(cfg *config.Config, appLogger *logger.Logger) notifications.Publisher {
	if !cfg.Kafka.Enabled {
		return notifications.NewLogPublisher(appLogger)
	}
	kcfg := notifications.DefaultKafkaProducerConfig()
	kcfg.Brokers = cfg.Kafka.Brokers
	kcfg.Topic = cfg.Kafka.Topic
	kcfg.ClientID = cfg.Kafka.ClientID

	p, err := notifications.NewKafkaPublisher(kcfg)
	if err != nil {
		appLogger.Error("Failed to connect to Kafka; domain events will only be logged", slog.Any("error", err))
		return notifications.NewLogPublisher(appLogger)
	}
	appLogger.Info("Kafka event publisher ready", slog.String("topic", kcfg.Topic))
	return p
}

func setupRouter(cfg *config.Config, db *database.DB, services *routes.Services, rateLimiter *ratelimit.RateLimiter) *gin.Engine {
	engine := gin.New()
	appLogger := logger.GetDefault()

	engine.Use(middleware.RequestID(), middleware.RequestLogger(appLogger), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Stripe-Signature", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter))
	}

	routes.NewRouter(cfg, db, services).SetupRoutes(engine)
	return engine
}
