package services

import (
	"context"
	"sync"
	"testing"

	"museum-discovery/internal/errs"
	"museum-discovery/models"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type aggregateCall struct {
	index    string
	pipeline mongo.Pipeline
}

// fakeReader serves canned aggregation results per collection and records
// every pipeline it receives.
type fakeReader struct {
	mu      sync.Mutex
	results map[string][]bson.Raw
	errs    map[string]error
	docs    map[string]*models.Document
	calls   []aggregateCall
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		results: make(map[string][]bson.Raw),
		errs:    make(map[string]error),
		docs:    make(map[string]*models.Document),
	}
}

func (f *fakeReader) Aggregate(_ context.Context, index string, pipeline mongo.Pipeline) ([]bson.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, aggregateCall{index: index, pipeline: pipeline})
	if err := f.errs[index]; err != nil {
		return nil, err
	}
	return f.results[index], nil
}

func (f *fakeReader) FindByID(_ context.Context, index, id string) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	out := *doc
	out.Index = index
	return &out, nil
}

func (f *fakeReader) callsFor(index string) []aggregateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []aggregateCall
	for _, c := range f.calls {
		if c.index == index {
			out = append(out, c)
		}
	}
	return out
}

func mustRaw(t *testing.T, v any) bson.Raw {
	t.Helper()
	data, err := bson.Marshal(v)
	require.NoError(t, err)
	return bson.Raw(data)
}

// stage returns the value of the first stage named op.
func stage(pipeline mongo.Pipeline, op string) (any, int) {
	for i, s := range pipeline {
		if len(s) > 0 && s[0].Key == op {
			return s[0].Value, i
		}
	}
	return nil, -1
}

func lookup(d bson.D, key string) (any, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func keys(d bson.D) []string {
	out := make([]string, 0, len(d))
	for _, e := range d {
		out = append(out, e.Key)
	}
	return out
}
