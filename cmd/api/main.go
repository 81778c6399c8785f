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
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/data-analyst/backend/internal/analysis"
	"github.com/data-analyst/backend/internal/api/handlers"
	blobfs "github.com/data-analyst/backend/internal/blob/fs"
	redisCache "github.com/data-analyst/backend/internal/cache/redis"
	"github.com/data-analyst/backend/internal/dataset"
	"github.com/data-analyst/backend/internal/metrics"
	"github.com/data-analyst/backend/internal/middleware/ratelimit"
	"github.com/data-analyst/backend/internal/middleware/security"
	"github.com/data-analyst/backend/internal/middleware/validation"
	"github.com/data-analyst/backend/internal/query"
	"github.com/data-analyst/backend/internal/store"
	"github.com/data-analyst/backend/internal/store/sqlite"
	"github.com/data-analyst/backend/internal/tasks"
	"github.com/data-analyst/backend/pkg/config"
	appLogger "github.com/data-analyst/backend/pkg/logger"
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

	appLogger.Info("Starting Data Analyst API Server")

	metrics.Init()

	docStore, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create document store", zap.Error(err))
	}
	defer docStore.Close()

	err = docStore.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	gateway := store.NewGateway(docStore)

	blobStore, err := blobfs.New(
		afero.NewOsFs(),
		cfg.Blob.RootDir,
		cfg.Blob.SigningSecret,
		cfg.Blob.PublicBaseURL,
	)
	if err != nil {
		appLogger.Fatal("Failed to create blob store", zap.Error(err))
	}

	var cache *redisCache.Client
	if cfg.Redis.Enabled {
		cache, err = redisCache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to create redis client", zap.Error(err))
		}
		defer cache.Close()
	}

	engine := analysis.NewClient(cfg.Engine.BaseURL, time.Duration(cfg.Engine.TimeoutSec)*time.Second)

	pool := tasks.NewPool(4, 64)
	pool.OnDrop(func(name string) {
		metrics.TasksDropped.Inc()
	})

	signedTTL := time.Duration(cfg.Blob.SignedURLDays) * 24 * time.Hour
	datasetService := dataset.NewService(gateway, blobStore, engine, pool, cache, signedTTL)
	queryService := query.NewService(gateway, engine, cache)

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
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use("/api", limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	datasetHandler := handlers.NewDatasetHandler(datasetService)
	queryHandler := handlers.NewQueryHandler(queryService)
	chatHandler := handlers.NewChatHandler(queryService)
	connectionHandler := handlers.NewConnectionHandler(gateway)
	authHandler := handlers.NewAuthHandler(gateway)
	fileHandler := handlers.NewFileHandler(blobStore)
	statusHandler := handlers.NewStatusHandler(datasetService)

	api := app.Group("/api")

	api.Post("/datasets/upload", datasetHandler.Upload)
	api.Get("/datasets/events", websocket.New(statusHandler.HandleConnection))
	api.Get("/datasets", datasetHandler.List)
	api.Get("/datasets/:id/url", datasetHandler.RefreshURL)
	api.Get("/datasets/:id", datasetHandler.Get)
	api.Delete("/datasets/:id", datasetHandler.Delete)

	api.Post("/query", queryHandler.Query)
	api.Get("/query/history/:datasetId", queryHandler.History)
	api.Get("/query/health", queryHandler.Health)

	api.Post("/chat", chatHandler.Save)
	api.Get("/chat/:datasetId", chatHandler.History)

	api.Post("/connections", connectionHandler.Save)
	api.Get("/connections/:userId", connectionHandler.ListForUser)
	api.Delete("/connections/:connectionId", connectionHandler.Delete)

	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)
	api.Post("/auth/verify", authHandler.Verify)
	api.Get("/auth/user/:uid", authHandler.GetUser)

	api.Get("/files/*", fileHandler.Download)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

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
	pool.Stop()
	appLogger.Info("Server stopped")
}
