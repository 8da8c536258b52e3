package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"museum-discovery/internal/config"
	"museum-discovery/internal/index"
	"museum-discovery/internal/ingest"
	"museum-discovery/internal/logger"
	"museum-discovery/models"
)

func usage() {
	fmt.Println("Usage: ingest <command> [source]")
	fmt.Println("Commands:")
	fmt.Println("  list              - List configured sources")
	fmt.Println("  run [source]      - Ingest one source, or the feed sources when omitted")
	fmt.Println("  dry-run [source]  - Extract and transform into memory without writing")
}

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred cleanup happens before exit.
func run() int {
	if len(os.Args) < 2 {
		usage()
		return 1
	}

	command := os.Args[1]
	source := ""
	if len(os.Args) > 2 {
		source = os.Args[2]
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "list":
		sources, err := ingest.LoadSources(cfg.SourcesFile)
		if err != nil {
			log.Fatalf("Failed to load sources: %v", err)
		}
		for _, s := range sources {
			fmt.Printf("%-24s %-12s %-10s %s%s\n", s.Name, s.Transformer, s.Index, s.URL, s.File)
		}

	case "run":
		mongoClient, err := config.ConnectMongoDB(cfg, index.DefaultRegistry())
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			mongoClient.Disconnect(ctx)
		}()

		rdb, err := config.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("redis unavailable, running without the ingestion lock", "error", err)
		} else {
			defer rdb.Close()
		}

		runner, err := ingest.NewRunnerFromConfig(cfg, index.NewMongoStore(mongoClient.Database(cfg.DBName)), rdb, nil)
		if err != nil {
			log.Fatalf("Failed to configure ingestion: %v", err)
		}
		return report(runner.Run(ctx, source))

	case "dry-run":
		store := index.NewMemoryStore()
		runner, err := ingest.NewRunnerFromConfig(cfg, store, nil, nil)
		if err != nil {
			log.Fatalf("Failed to configure ingestion: %v", err)
		}
		code := report(runner.Run(ctx, source))
		for _, name := range index.DefaultRegistry().Names() {
			if n := store.Count(name); n > 0 {
				fmt.Printf("%s: %d documents\n", name, n)
			}
		}
		return code

	default:
		fmt.Printf("Unknown command: %s\n", command)
		usage()
		return 1
	}
	return 0
}

// report prints the summary and returns the process exit code.
func report(summary models.IngestionSummary, err error) int {
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingestion failed: %v\n", err)
		return 1
	}
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	if summary.Failed() {
		return 2
	}
	return 0
}
