package ingest

import (
	"context"
	"errors"
	"time"

	"museum-discovery/internal/logger"
	"museum-discovery/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRunInProgress is returned when another process holds the ingestion lock.
var ErrRunInProgress = errors.New("ingestion already running")

// LockKey is the Redis key holding the current run's token.
const LockKey = "ingest:lock"

// Lock is a Redis SETNX lease that keeps ingestion runs from overlapping
// across processes.
type Lock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLock returns a lock whose lease expires after ttl if never released.
func NewLock(client *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Lock{client: client, ttl: ttl}
}

// RunExclusive runs the pipeline while holding the lock. A nil lock runs
// without coordination.
func (l *Lock) RunExclusive(ctx context.Context, p *Pipeline, sources []Source) (models.IngestionSummary, error) {
	if l == nil || l.client == nil {
		return p.Run(ctx, sources), nil
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, LockKey, token, l.ttl).Result()
	if err != nil {
		return models.IngestionSummary{}, err
	}
	if !ok {
		return models.IngestionSummary{}, ErrRunInProgress
	}
	defer l.release(token)

	return p.Run(ctx, sources), nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// release deletes the key only while it still holds our token.
func (l *Lock) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{LockKey}, token).Err(); err != nil {
		logger.Warn("failed to release ingestion lock", "error", err)
	}
}
