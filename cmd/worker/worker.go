package main

import (
	"context"
	"log"
	"time"

	"museum-discovery/internal/config"
	"museum-discovery/internal/index"
	"museum-discovery/internal/ingest"
	"museum-discovery/internal/logger"
	"museum-discovery/internal/queue"
	"museum-discovery/internal/telemetry"

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
		shutdown, err := telemetry.InitTracer(cfg.ServiceName+"-worker", cfg.OTLPEndpoint, cfg.TraceSampleRatio)
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

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg, index.DefaultRegistry())
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	runner, err := ingest.NewRunnerFromConfig(cfg, index.NewMongoStore(mongoClient.Database(cfg.DBName)), rdb, metrics)
	if err != nil {
		log.Fatal("Failed to configure ingestion:", err)
	}

	// Redis options for Asynq
	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to configure task queue:", err)
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queue.QueueIngest: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(runner)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestSources, processor.ProcessIngest)

	logger.Info("starting ingestion worker", "concurrency", cfg.WorkerConcurrency, "sources", len(runner.Sources))

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
