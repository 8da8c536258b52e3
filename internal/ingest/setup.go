package ingest

import (
	"fmt"
	"time"

	"museum-discovery/internal/authority"
	"museum-discovery/internal/config"
	"museum-discovery/internal/crawler"
	"museum-discovery/internal/index"
	"museum-discovery/internal/logger"
	"museum-discovery/internal/telemetry"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// NewRunnerFromConfig wires sources, enrichers and the run lock from cfg.
// A nil rdb runs without the cross-process lock.
func NewRunnerFromConfig(cfg *config.Config, store index.Writer, rdb *redis.Client, metrics *telemetry.Metrics) (*Runner, error) {
	sources, err := LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}

	enrichers, err := enrichersFromConfig(cfg, metrics)
	if err != nil {
		return nil, err
	}

	var lock *Lock
	if rdb != nil {
		lock = NewLock(rdb, 0)
	}

	return &Runner{
		Sources:  sources,
		Registry: NewRegistry(),
		Deps:     Deps{HTTPClient: crawler.NewHTTPClient(60 * time.Second)},
		Pipeline: NewPipeline(store, Options{
			ChunkSize:   cfg.IngestChunkSize,
			Concurrency: cfg.IngestConcurrency,
			Enrichers:   enrichers,
			Metrics:     metrics,
		}),
		Lock: lock,
	}, nil
}

func enrichersFromConfig(cfg *config.Config, metrics *telemetry.Metrics) ([]Enricher, error) {
	var enrichers []Enricher

	var vocab authority.Vocabulary
	switch {
	case cfg.VocabularyFile != "":
		v, err := authority.LoadFileVocabulary(cfg.VocabularyFile)
		if err != nil {
			return nil, fmt.Errorf("vocabulary: %w", err)
		}
		logger.Info("authority vocabulary loaded", "file", cfg.VocabularyFile, "records", v.Len())
		vocab = v
	case cfg.VocabularyURL != "":
		vocab = authority.NewHTTPVocabulary(cfg.VocabularyURL, cfg.VocabularyTimeout)
	}
	if vocab != nil {
		resolver := authority.NewResolver(vocab, authority.Options{
			Timeout:      cfg.VocabularyTimeout,
			RequestsPerS: cfg.VocabularyRPS,
			OnStateChange: func(name string, _, to gobreaker.State) {
				metrics.RecordCircuitBreakerState(name, to.String())
			},
		})
		enrichers = append(enrichers, &AuthorityEnricher{Resolver: resolver})
	}

	if cfg.ExtractColors {
		enrichers = append(enrichers, &ColorEnricher{
			Client: crawler.NewHTTPClient(30 * time.Second),
			Size:   cfg.PaletteSize,
		})
	}
	return enrichers, nil
}
