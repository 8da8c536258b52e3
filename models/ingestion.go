package models

import "time"

// IngestionOperation is one queued doc-as-upsert unit.
type IngestionOperation struct {
	Index    string
	ID       string
	Document *Document
}

// Source run statuses
const (
	SourceStatusOK     = "ok"
	SourceStatusFailed = "failed"
)

// SourceSummary reports the outcome of ingesting one source.
type SourceSummary struct {
	Source       string        `json:"source"`
	Index        string        `json:"index"`
	Status       string        `json:"status"`
	Extracted    int           `json:"extracted"`
	Upserted     int           `json:"upserted"`
	Skipped      int           `json:"skipped"`
	Terms        int           `json:"terms"`
	FailedChunks int           `json:"failedChunks"`
	Pruned       int64         `json:"pruned"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// IngestionSummary is returned by a pipeline run.
type IngestionSummary struct {
	RunID      string          `json:"runId"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Sources    []SourceSummary `json:"sources"`
}

// Failed reports whether any source in the run failed.
func (s *IngestionSummary) Failed() bool {
	for _, src := range s.Sources {
		if src.Status == SourceStatusFailed {
			return true
		}
	}
	return false
}
