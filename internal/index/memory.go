package index

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"museum-discovery/internal/errs"
	"museum-discovery/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MemoryStore is an in-process Writer used for dry runs and tests. Upserts
// merge the same way the Mongo store does: the stored document is replaced
// field by field and ingestedAt is kept from the first insert.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]map[string]models.Document
	terms map[string]models.Term
	now   func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]map[string]models.Document),
		terms: make(map[string]models.Term),
		now:   time.Now,
	}
}

func (m *MemoryStore) BulkUpsert(_ context.Context, index string, ops []models.IngestionOperation) (BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.docs[index]
	if !ok {
		coll = make(map[string]models.Document)
		m.docs[index] = coll
	}

	var res BulkResult
	for _, op := range ops {
		doc := storable(op.Document)
		doc.ID = op.ID
		if prev, exists := coll[op.ID]; exists {
			doc.IngestedAt = prev.IngestedAt
			res.Matched++
		} else {
			ts := m.now().UTC()
			doc.IngestedAt = &ts
			res.Upserted++
		}
		coll[op.ID] = doc
	}
	return res, nil
}

func (m *MemoryStore) UpsertTerms(_ context.Context, terms []models.Term) (BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res BulkResult
	for _, term := range terms {
		if _, exists := m.terms[term.ID]; exists {
			res.Matched++
		} else {
			res.Upserted++
		}
		m.terms[term.ID] = term
	}
	return res, nil
}

func (m *MemoryStore) DeleteStale(_ context.Context, index, sourceID string, keep []string) (int64, error) {
	if len(keep) == 0 || sourceID == "" {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make(map[string]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	var deleted int64
	for id, doc := range m.docs[index] {
		if doc.SourceID == sourceID && !kept[id] {
			delete(m.docs[index], id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStore) FindByID(_ context.Context, index, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[index][id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	doc.Index = index
	return &doc, nil
}

// Aggregate is not supported in memory.
func (m *MemoryStore) Aggregate(context.Context, string, mongo.Pipeline) ([]bson.Raw, error) {
	return nil, fmt.Errorf("memory store: aggregation %w", errs.ErrUpstreamUnavailable)
}

// Count returns the number of documents in index.
func (m *MemoryStore) Count(index string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[index])
}

// IDs returns the sorted ids stored in index.
func (m *MemoryStore) IDs(index string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.docs[index]))
	for id := range m.docs[index] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Term returns a stored term by id.
func (m *MemoryStore) Term(id string) (models.Term, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.terms[id]
	return t, ok
}
