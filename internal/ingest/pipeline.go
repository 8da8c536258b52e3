package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"museum-discovery/internal/errs"
	"museum-discovery/internal/index"
	"museum-discovery/internal/logger"
	"museum-discovery/internal/telemetry"
	"museum-discovery/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkSize   = 1000
	DefaultConcurrency = 4
)

// Options configure a Pipeline.
type Options struct {
	ChunkSize   int
	Concurrency int
	Enrichers   []Enricher
	Metrics     *telemetry.Metrics
	Now         func() time.Time
}

// Pipeline runs sources into an index writer.
type Pipeline struct {
	store index.Writer
	opts  Options
}

// NewPipeline returns a pipeline writing to store.
func NewPipeline(store index.Writer, opts Options) *Pipeline {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{store: store, opts: opts}
}

// Run ingests sources one after another. A failing source is reported in the
// summary and does not stop the ones after it.
func (p *Pipeline) Run(ctx context.Context, sources []Source) models.IngestionSummary {
	summary := models.IngestionSummary{
		RunID:     uuid.NewString(),
		StartedAt: p.opts.Now().UTC(),
	}
	enrichers := make([]Enricher, len(p.opts.Enrichers))
	for i, e := range p.opts.Enrichers {
		if scoped, ok := e.(runScoped); ok {
			e = scoped.ForRun()
		}
		enrichers[i] = e
	}

	logger.Info("ingestion run started", "run_id", summary.RunID, "sources", len(sources))
	for _, src := range sources {
		summary.Sources = append(summary.Sources, p.runSource(ctx, summary.RunID, src, enrichers))
	}
	summary.FinishedAt = p.opts.Now().UTC()
	logger.Info("ingestion run finished",
		"run_id", summary.RunID,
		"failed", summary.Failed(),
		"duration", summary.FinishedAt.Sub(summary.StartedAt).String())
	return summary
}

// sourceRun carries the mutable state of one source.
type sourceRun struct {
	cfg       SourceConfig
	log       *slog.Logger
	enrichers []Enricher
	summary   models.SourceSummary
	keep      []string
}

func (p *Pipeline) runSource(ctx context.Context, runID string, src Source, enrichers []Enricher) models.SourceSummary {
	cfg := src.Config()
	start := time.Now()

	ctx, span := otel.Tracer("ingest").Start(ctx, "ingest.source")
	span.SetAttributes(
		attribute.String("ingest.run_id", runID),
		attribute.String("ingest.source", cfg.Name),
		attribute.String("ingest.index", cfg.Index),
	)
	defer span.End()

	run := &sourceRun{
		cfg:       cfg,
		log:       logger.With("run_id", runID, "source", cfg.Name),
		enrichers: enrichers,
		summary: models.SourceSummary{
			Source: cfg.Name,
			Index:  cfg.Index,
			Status: models.SourceStatusOK,
		},
	}

	err := p.drain(ctx, src, run)
	if err == nil && cfg.Prune {
		pruned, pruneErr := p.store.DeleteStale(ctx, cfg.Index, cfg.SourceID, run.keep)
		if pruneErr != nil {
			err = fmt.Errorf("prune: %w", pruneErr)
		}
		run.summary.Pruned = pruned
	}

	s := &run.summary
	s.Duration = time.Since(start)
	failedOps := 0
	if err != nil {
		s.Status = models.SourceStatusFailed
		s.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var partial *errs.PartialIngestionFailure
		if errors.As(err, &partial) {
			failedOps = len(partial.Failures)
			run.log.Error("bulk upsert rejected operations", "index", cfg.Index, "failures", partial.Failures)
		}
		run.log.Error("source ingestion failed", "error", err)
	} else {
		run.log.Info("source ingested",
			"index", cfg.Index,
			"extracted", s.Extracted,
			"upserted", s.Upserted,
			"skipped", s.Skipped,
			"terms", s.Terms,
			"pruned", s.Pruned,
			"duration", s.Duration.String())
	}
	span.SetAttributes(
		attribute.Int("ingest.upserted", s.Upserted),
		attribute.Int("ingest.skipped", s.Skipped),
	)
	p.opts.Metrics.RecordIngestion(ctx, cfg.Name, s.Status, s.Upserted, s.Skipped, failedOps, s.Duration.Seconds())
	return *s
}

// drain pulls jobs from src and flushes them chunk by chunk. Each flush is
// awaited before the next chunk is built.
func (p *Pipeline) drain(ctx context.Context, src Source, run *sourceRun) error {
	chunk := make([]Job, 0, p.opts.ChunkSize)
	for job, err := range src.Jobs(ctx) {
		if err != nil {
			if errs.IsMalformed(err) {
				run.summary.Skipped++
				run.log.Warn("skipping record", "error", err)
				continue
			}
			return fmt.Errorf("extract: %w", err)
		}
		run.summary.Extracted++
		chunk = append(chunk, job)
		if len(chunk) < p.opts.ChunkSize {
			continue
		}
		if err := p.flush(ctx, run, chunk); err != nil {
			return err
		}
		chunk = chunk[:0]
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(chunk) > 0 {
		return p.flush(ctx, run, chunk)
	}
	return nil
}

func (p *Pipeline) flush(ctx context.Context, run *sourceRun, chunk []Job) error {
	ops, err := p.transform(ctx, run, chunk)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	res, err := p.store.BulkUpsert(ctx, run.cfg.Index, ops)
	if err != nil {
		run.summary.FailedChunks++
		return fmt.Errorf("bulk upsert: %w", err)
	}
	if !res.OK() {
		run.summary.FailedChunks++
		run.summary.Upserted += len(ops) - len(res.Failures)
		return &errs.PartialIngestionFailure{Source: run.cfg.Name, Index: run.cfg.Index, Failures: res.Failures}
	}
	run.summary.Upserted += len(ops)

	docs := make([]*models.Document, len(ops))
	for i, op := range ops {
		docs[i] = op.Document
		run.keep = append(run.keep, op.ID)
	}
	terms := BuildTerms(run.cfg.Label, run.cfg.Index, docs)
	if _, err := p.store.UpsertTerms(ctx, terms); err != nil {
		run.log.Warn("term upsert failed", "error", err)
	} else {
		run.summary.Terms += len(terms)
	}
	return nil
}

// transform runs the jobs of a chunk on a bounded pool and returns the
// operations in extraction order. Failed records are counted as skipped.
func (p *Pipeline) transform(ctx context.Context, run *sourceRun, chunk []Job) ([]models.IngestionOperation, error) {
	results := make([]models.IngestionOperation, len(chunk))
	failures := make([]error, len(chunk))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, job := range chunk {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			op, err := runJob(run.cfg.Name, job)
			if err != nil {
				failures[i] = err
				return nil
			}
			for _, e := range run.enrichers {
				if err := e.Enrich(gctx, op.Document); err != nil {
					run.log.Warn("enrichment failed", "id", op.ID, "error", err)
				}
			}
			results[i] = op
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ops := make([]models.IngestionOperation, 0, len(chunk))
	for i, op := range results {
		if failures[i] != nil {
			run.summary.Skipped++
			run.log.Warn("skipping record", "error", failures[i])
			continue
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func runJob(source string, job Job) (op models.IngestionOperation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Malformed(source, "transform panicked", fmt.Errorf("%v", r))
		}
	}()
	return job()
}
