package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int

	// Ingestion
	ImportSecret      string
	SourcesFile       string
	IngestChunkSize   int
	IngestConcurrency int
	IngestCron        string
	WorkerConcurrency int

	// Authority vocabulary
	VocabularyURL     string
	VocabularyFile    string
	VocabularyTimeout time.Duration
	VocabularyRPS     float64

	// Color search
	ExtractColors  bool
	PaletteSize    int
	ColorTolerance float64

	SearchTimeout time.Duration

	// Tracing
	TracingEnabled   bool
	OTLPEndpoint     string
	TraceSampleRatio float64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "museum-discovery"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/museum"),
		DBName:      getEnv("DB_NAME", "museum"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		ImportSecret:      getEnv("IMPORT_SECRET", ""),
		SourcesFile:       getEnv("SOURCES_FILE", "sources.yaml"),
		IngestChunkSize:   getEnvInt("INGEST_CHUNK_SIZE", 1000),
		IngestConcurrency: getEnvInt("INGEST_CONCURRENCY", 4),
		IngestCron:        getEnv("INGEST_CRON", "0 */6 * * *"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),

		VocabularyURL:     getEnv("VOCABULARY_URL", ""),
		VocabularyFile:    getEnv("VOCABULARY_FILE", ""),
		VocabularyTimeout: getEnvDuration("VOCABULARY_TIMEOUT", 3*time.Second),
		VocabularyRPS:     getEnvFloat64("VOCABULARY_RPS", 10),

		ExtractColors:  getEnvBool("EXTRACT_COLORS", false),
		PaletteSize:    getEnvInt("PALETTE_SIZE", 5),
		ColorTolerance: getEnvFloat64("COLOR_TOLERANCE", 20),

		SearchTimeout: getEnvDuration("SEARCH_TIMEOUT", 10*time.Second),

		TracingEnabled:   getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:     getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TraceSampleRatio: getEnvFloat64("TRACE_SAMPLE_RATIO", 0.1),
	}

	// Validate required fields
	if cfg.ImportSecret == "" {
		return nil, fmt.Errorf("IMPORT_SECRET is required - set it in .env file")
	}

	if cfg.IngestChunkSize <= 0 {
		return nil, fmt.Errorf("INGEST_CHUNK_SIZE must be positive, got %d", cfg.IngestChunkSize)
	}

	if cfg.IngestConcurrency <= 0 {
		return nil, fmt.Errorf("INGEST_CONCURRENCY must be positive, got %d", cfg.IngestConcurrency)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("750ms") or plain seconds ("3").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
