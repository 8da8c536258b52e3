package authority

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"museum-discovery/internal/errs"
	"museum-discovery/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVocabulary struct {
	candidates []Candidate
	err        error
	calls      atomic.Int32
}

func (s *stubVocabulary) Lookup(context.Context, string) ([]Candidate, error) {
	s.calls.Add(1)
	return s.candidates, s.err
}

func TestResolveExactMatchWins(t *testing.T) {
	vocab := &stubVocabulary{candidates: []Candidate{
		{ID: "500000001", PreferredTerm: "Picasso, Paloma"},
		{ID: "500009666", PreferredTerm: "Picasso, Pablo", Biography: "Spanish artist"},
	}}
	r := NewResolver(vocab, Options{})

	rec, err := r.Resolve(context.Background(), "Pablo Picasso")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "500009666", rec.ID)
	assert.Equal(t, "pablo picasso", rec.Query)
	assert.Equal(t, "Spanish artist", rec.Biography)
}

func TestResolveMatchesNonPreferredTerm(t *testing.T) {
	vocab := &stubVocabulary{candidates: []Candidate{
		{ID: "500060445", PreferredTerm: "Andō Hiroshige", NonPreferredTerms: []string{"Utagawa Hiroshige", "Hiroshige I"},
			BirthYear: models.IntPtr(1797), DeathYear: models.IntPtr(1858)},
	}}
	r := NewResolver(vocab, Options{})

	rec, err := r.ResolveConstituent(context.Background(), "Utagawa Hiroshige (Ando)", models.IntPtr(1797), models.IntPtr(1858))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "500060445", rec.ID)
	assert.Equal(t, "Andō Hiroshige", rec.PreferredTerm)
}

func TestResolveTopCandidateNeedsSharedFirstToken(t *testing.T) {
	vocab := &stubVocabulary{candidates: []Candidate{{ID: "1", PreferredTerm: "Wood, Enoch"}}}
	r := NewResolver(vocab, Options{})

	rec, err := r.Resolve(context.Background(), "Enoch Wood & Sons")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "1", rec.ID)

	vocab.candidates = []Candidate{{ID: "2", PreferredTerm: "Smith, John"}}
	rec, err = r.Resolve(context.Background(), "Jane Smith")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestResolveNoCandidates(t *testing.T) {
	r := NewResolver(&stubVocabulary{}, Options{})
	rec, err := r.Resolve(context.Background(), "Nobody")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestResolveEmptyNameSkipsLookup(t *testing.T) {
	vocab := &stubVocabulary{}
	r := NewResolver(vocab, Options{})
	rec, err := r.Resolve(context.Background(), "  ")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Zero(t, vocab.calls.Load())
}

func TestResolveFailureIsUpstreamUnavailable(t *testing.T) {
	r := NewResolver(&stubVocabulary{err: errors.New("connection refused")}, Options{})
	rec, err := r.Resolve(context.Background(), "Pablo Picasso")
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)
}

func TestResolveConstituentPrefersMatchingDates(t *testing.T) {
	vocab := &stubVocabulary{candidates: []Candidate{
		{ID: "elder", PreferredTerm: "Brueghel, Jan", BirthYear: models.IntPtr(1568)},
		{ID: "younger", PreferredTerm: "Brueghel, Jan", BirthYear: models.IntPtr(1601)},
	}}
	r := NewResolver(vocab, Options{})

	rec, err := r.ResolveConstituent(context.Background(), "Jan Brueghel", models.IntPtr(1601), nil)
	require.NoError(t, err)
	assert.Equal(t, "younger", rec.ID)

	rec, err = r.ResolveConstituent(context.Background(), "Jan Brueghel", models.IntPtr(1500), nil)
	require.NoError(t, err)
	assert.Equal(t, "elder", rec.ID)
}

func TestResolveTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	r := NewResolver(NewHTTPVocabulary(srv.URL, time.Second), Options{Timeout: 50 * time.Millisecond})
	_, err := r.Resolve(context.Background(), "Pablo Picasso")
	assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)
}

func TestRunCacheAsksOncePerName(t *testing.T) {
	vocab := &stubVocabulary{err: errors.New("down")}
	cache := NewRunCache(NewResolver(vocab, Options{}))
	ctx := context.Background()

	_, err := cache.ResolveConstituent(ctx, "Picasso, Pablo", nil, nil)
	assert.Error(t, err)
	rec, err := cache.ResolveConstituent(ctx, "Pablo Picasso", nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, rec)
	assert.EqualValues(t, 1, vocab.calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestHTTPVocabulary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Paul Cezanne", r.URL.Query().Get("q"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []Candidate{{ID: "500004793", PreferredTerm: "Cézanne, Paul", BirthYear: models.IntPtr(1839)}},
		})
	}))
	defer srv.Close()

	r := NewResolver(NewHTTPVocabulary(srv.URL, time.Second), Options{})
	rec, err := r.Resolve(context.Background(), "Paul Cezanne")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Cézanne, Paul", rec.PreferredTerm)
	assert.Equal(t, 1839, *rec.BirthYear)
}

func TestHTTPVocabularyStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPVocabulary(srv.URL, time.Second).Lookup(context.Background(), "x")
	assert.Error(t, err)
}

func TestFileVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authority.jsonl.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	enc := json.NewEncoder(gz)
	require.NoError(t, enc.Encode(Candidate{ID: "500009666", PreferredTerm: "Picasso, Pablo", NonPreferredTerms: []string{"Pablo Ruiz Picasso"}}))
	_, err = gz.Write([]byte("not json\n"))
	require.NoError(t, err)
	require.NoError(t, enc.Encode(Candidate{ID: "500004793", PreferredTerm: "Cézanne, Paul"}))
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	vocab, err := LoadFileVocabulary(path)
	require.NoError(t, err)
	assert.Equal(t, 2, vocab.Len())

	got, err := vocab.Lookup(context.Background(), "Pablo Ruiz Picasso")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "500009666", got[0].ID)

	rec, err := NewResolver(vocab, Options{}).Resolve(context.Background(), "Paul Cézanne")
	require.NoError(t, err)
	assert.Equal(t, "500004793", rec.ID)

	_, err = LoadFileVocabulary(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestFileVocabularyResolvesThroughNonPreferredTerm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authority.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(f).Encode(Candidate{
		ID:                "500060445",
		PreferredTerm:     "Andō Hiroshige",
		NonPreferredTerms: []string{"Utagawa Hiroshige"},
		BirthYear:         models.IntPtr(1797),
		DeathYear:         models.IntPtr(1858),
	}))
	require.NoError(t, f.Close())

	vocab, err := LoadFileVocabulary(path)
	require.NoError(t, err)

	rec, err := NewResolver(vocab, Options{}).ResolveConstituent(context.Background(),
		"Utagawa Hiroshige (Ando)", models.IntPtr(1797), models.IntPtr(1858))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "500060445", rec.ID)
}
