package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"museum-discovery/internal/errs"
	"museum-discovery/internal/ingest"
	"museum-discovery/internal/logger"
	"museum-discovery/models"

	"github.com/hibiken/asynq"
)

const (
	TaskIngestSources = "ingest:sources"

	// QueueIngest holds ingestion tasks only, so a long run never delays
	// anything else sharing the Redis instance.
	QueueIngest = "ingest"
)

type IngestPayload struct {
	// Source is empty for the default feed sources.
	Source      string `json:"source,omitempty"`
	TriggeredBy string `json:"triggered_by"`
}

// NewIngestTask builds an ingestion task. Tasks for the same source are
// deduplicated while one is queued or running.
func NewIngestTask(source, triggeredBy string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{Source: source, TriggeredBy: triggeredBy})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestSources,
		payload,
		asynq.MaxRetry(2),
		asynq.Timeout(2*time.Hour),
		asynq.Queue(QueueIngest),
		asynq.Unique(time.Hour),
	), nil
}

// Runner runs one ingestion trigger.
type Runner interface {
	Run(ctx context.Context, name string) (models.IngestionSummary, error)
}

type TaskProcessor struct {
	runner Runner
}

func NewTaskProcessor(runner Runner) *TaskProcessor {
	return &TaskProcessor{runner: runner}
}

// ProcessIngest runs the sources named by the task. Unknown sources are not
// retried; a run blocked by another holder of the lock is.
func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	logger.Info("processing ingestion task", "source", payload.Source, "triggered_by", payload.TriggeredBy)

	summary, err := p.runner.Run(ctx, payload.Source)
	var invalid *errs.ValidationError
	switch {
	case errors.As(err, &invalid):
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case errors.Is(err, ingest.ErrRunInProgress):
		return err
	case err != nil:
		return fmt.Errorf("ingest %q: %w", payload.Source, err)
	}

	if summary.Failed() {
		// Sources that failed are picked up by the next scheduled run.
		logger.Warn("ingestion task finished with failed sources", "run_id", summary.RunID)
		return nil
	}
	logger.Info("ingestion task finished", "run_id", summary.RunID, "sources", len(summary.Sources))
	return nil
}
