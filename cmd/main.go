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

	"museum-discovery/internal/config"
	"museum-discovery/internal/crawler"
	"museum-discovery/internal/index"
	"museum-discovery/internal/ingest"
	"museum-discovery/internal/logger"
	"museum-discovery/internal/queue"
	"museum-discovery/internal/telemetry"
	"museum-discovery/middleware"
	"museum-discovery/routes"
	"museum-discovery/services"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer(cfg.ServiceName, cfg.OTLPEndpoint, cfg.TraceSampleRatio)
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			defer shutdown()
		}
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	registry := index.DefaultRegistry()

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg, registry)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	store := index.NewMongoStore(mongoClient.Database(cfg.DBName))

	// Redis backs rate limiting and the ingestion lock; both degrade without it
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		logger.Warn("redis unavailable, running without rate limits or ingestion lock", "error", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	runner, err := ingest.NewRunnerFromConfig(cfg, store, rdb, metrics)
	if err != nil {
		log.Fatal("Failed to configure ingestion:", err)
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddlewareWithOrigins(cfg.CORSOrigins))
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware(cfg.ServiceName))
		router.Use(middleware.EnrichTrace())
	}
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RequestSizeLimit(64 << 10))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	routes.SetupSearchRoutes(router, &routes.SearchAPI{
		Registry: registry,
		Searcher: services.NewSearcher(store, registry, services.SearchOptions{
			ColorTolerance: cfg.ColorTolerance,
			Metrics:        metrics,
		}),
		Similar:   services.NewSimilarityService(store, metrics),
		Terms:     services.NewTermsService(store),
		Documents: store,
		Timeout:   cfg.SearchTimeout,
		Ping: func(ctx context.Context) error {
			return mongoClient.Ping(ctx, nil)
		},
	})
	routes.SetupIngestRoutes(router, cfg.ImportSecret, runner)

	// Scheduled ingestion is enqueued for the worker
	var scheduler *crawler.Scheduler
	if rdb != nil && cfg.IngestCron != "" {
		redisOpt, err := config.AsynqRedisOpt(cfg)
		if err != nil {
			log.Fatal("Failed to configure task queue:", err)
		}
		client := asynq.NewClient(redisOpt)
		defer client.Close()

		scheduler = crawler.NewScheduler()
		if err := scheduleIngestion(scheduler, client, cfg.IngestCron, runner.Sources); err != nil {
			log.Fatal("Failed to schedule ingestion:", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}

// scheduleIngestion enqueues the default feed run on cron, plus one job per
// source that declares its own schedule.
func scheduleIngestion(s *crawler.Scheduler, client *asynq.Client, cron string, sources []ingest.SourceConfig) error {
	enqueue := func(source string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			task, err := queue.NewIngestTask(source, "scheduler")
			if err != nil {
				return err
			}
			info, err := client.EnqueueContext(ctx, task)
			if errors.Is(err, asynq.ErrDuplicateTask) {
				logger.Info("ingestion already queued", "source", source)
				return nil
			}
			if err != nil {
				return err
			}
			logger.Info("ingestion enqueued", "source", source, "task_id", info.ID)
			return nil
		}
	}

	if err := s.ScheduleJob("ingest:feeds", cron, enqueue("")); err != nil {
		return err
	}
	for _, src := range sources {
		if src.Schedule == "" {
			continue
		}
		if err := s.ScheduleJob("ingest:"+src.Name, src.Schedule, enqueue(src.Name)); err != nil {
			return err
		}
	}
	return nil
}
