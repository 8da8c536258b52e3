package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"museum-discovery/internal/errs"
	"museum-discovery/internal/index"
	"museum-discovery/models"
	"museum-discovery/services"
	"museum-discovery/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSearcher struct {
	params  []services.SearchParams
	result  *services.SearchResult
	err     error
	buckets []services.Bucket
}

func (s *stubSearcher) Search(_ context.Context, p services.SearchParams) (*services.SearchResult, error) {
	s.params = append(s.params, p)
	return s.result, s.err
}

func (s *stubSearcher) Options(context.Context, string, string, string) ([]services.Bucket, error) {
	return s.buckets, s.err
}

type stubSimilar struct {
	opts []services.SimilarOptions
	docs []models.Document
	err  error
}

func (s *stubSimilar) SimilarTo(_ context.Context, _ string, opts services.SimilarOptions) ([]models.Document, error) {
	s.opts = append(s.opts, opts)
	return s.docs, s.err
}

type stubTerms struct {
	terms []models.Term
	calls int
}

func (s *stubTerms) Suggest(context.Context, string) ([]models.Term, error) {
	s.calls++
	return s.terms, nil
}

func (s *stubTerms) Terms(context.Context, string) ([]models.Term, error) {
	s.calls++
	return s.terms, nil
}

type testAPI struct {
	searcher *stubSearcher
	similar  *stubSimilar
	terms    *stubTerms
	docs     *index.MemoryStore
	router   *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	api := &testAPI{
		searcher: &stubSearcher{result: &services.SearchResult{Data: []models.Document{}}},
		similar:  &stubSimilar{docs: []models.Document{{ID: "bkm_1", Title: "Mont Sainte-Victoire"}}},
		terms:    &stubTerms{terms: []models.Term{{ID: "t1", Value: "Cézanne, Paul"}}},
		docs:     index.NewMemoryStore(),
		router:   gin.New(),
	}
	_, err := api.docs.BulkUpsert(context.Background(), index.Art, []models.IngestionOperation{{
		Index: index.Art,
		ID:    "bkm_225001",
		Document: &models.Document{
			ID:           "bkm_225001",
			Title:        "The Village of Gardanne",
			Constituents: []models.Constituent{{Name: "Paul Cézanne", CanonicalName: "Cézanne, Paul"}},
		},
	}})
	require.NoError(t, err)
	_, err = api.docs.BulkUpsert(context.Background(), index.News, []models.IngestionOperation{{
		Index: index.News, ID: "n1", Document: &models.Document{ID: "n1", Title: "Press release"},
	}})
	require.NoError(t, err)

	SetupSearchRoutes(api.router, &SearchAPI{
		Registry:  index.DefaultRegistry(),
		Searcher:  api.searcher,
		Similar:   api.similar,
		Terms:     api.terms,
		Documents: api.docs,
	})
	return api
}

func (a *testAPI) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var body utils.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSearchRoute(t *testing.T) {
	api := newTestAPI(t)

	w := api.get(t, "/search?index=art&q=disease&classification=Painting&p=2")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, api.searcher.params, 1)
	p := api.searcher.params[0]
	assert.Equal(t, index.Art, p.Index)
	assert.Equal(t, "disease", p.Query)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, []string{"Painting"}, p.Filter("classification"))
}

func TestSearchRouteValidation(t *testing.T) {
	api := newTestAPI(t)

	w := api.get(t, "/search?index=paintings")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "validation_error", body.ErrorCode)
	assert.Empty(t, api.searcher.params)
}

func TestSearchRouteErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		want string
	}{
		{errs.ErrOutOfRange, http.StatusBadRequest, "out_of_range"},
		{errs.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "upstream_unavailable"},
		{context.DeadlineExceeded, http.StatusServiceUnavailable, "upstream_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		api := newTestAPI(t)
		api.searcher.err = tc.err
		w := api.get(t, "/search?q=x")
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
		assert.Equal(t, tc.want, decodeError(t, w).ErrorCode)
	}
}

func TestDocumentRouteArtHasOneConstituentAndSimilar(t *testing.T) {
	api := newTestAPI(t)

	w := api.get(t, "/document?index=art&id=bkm_225001")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data    models.Document   `json:"data"`
		Similar []models.Document `json:"similar"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "bkm_225001", body.Data.ID)
	assert.Len(t, body.Data.Constituents, 1)
	assert.Len(t, body.Similar, 1)
	require.Len(t, api.similar.opts, 1)
	assert.True(t, api.similar.opts[0].RequirePhoto)
}

func TestDocumentRouteNonArtHasNoSimilar(t *testing.T) {
	api := newTestAPI(t)

	w := api.get(t, "/document?index=news&id=n1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"similar"`)
	assert.Empty(t, api.similar.opts)
}

func TestDocumentRouteErrors(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusNotFound, api.get(t, "/document?index=art&id=nope").Code)
	assert.Equal(t, http.StatusBadRequest, api.get(t, "/document?index=all&id=bkm_225001").Code)
	assert.Equal(t, http.StatusBadRequest, api.get(t, "/document?index=art").Code)
}

func TestSimilarRoute(t *testing.T) {
	api := newTestAPI(t)

	w := api.get(t, "/similar?id=bkm_225001&hasPhoto=true&size=6")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, api.similar.opts, 1)
	assert.Equal(t, services.SimilarOptions{RequirePhoto: true, Size: 6}, api.similar.opts[0])

	assert.Equal(t, http.StatusBadRequest, api.get(t, "/similar?id=x&hasPhoto=maybe").Code)
	assert.Equal(t, http.StatusBadRequest, api.get(t, "/similar").Code)

	api.similar.err = errs.ErrNotFound
	assert.Equal(t, http.StatusNotFound, api.get(t, "/similar?id=missing").Code)
}

func TestSuggestAndTermsWithoutQuery(t *testing.T) {
	api := newTestAPI(t)

	w := api.get(t, "/suggest")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	w = api.get(t, "/terms")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = api.get(t, "/suggest?q=%20%20")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	w = api.get(t, "/terms?q=%20")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	assert.Zero(t, api.terms.calls)
}

func TestSuggestRoute(t *testing.T) {
	api := newTestAPI(t)

	w := api.get(t, "/suggest?q=cezanne")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []models.Term `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Cézanne, Paul", body.Data[0].Value)
}

func TestOptionsRoute(t *testing.T) {
	api := newTestAPI(t)
	api.searcher.buckets = []services.Bucket{{Key: "Painting", DocCount: 3}}

	w := api.get(t, "/options?index=art&field=classification")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[{"key":"Painting","doc_count":3}]}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, api.get(t, "/options?index=art").Code)
}

func TestHealthRoute(t *testing.T) {
	api := newTestAPI(t)
	assert.Equal(t, http.StatusOK, api.get(t, "/health").Code)

	router := gin.New()
	SetupSearchRoutes(router, &SearchAPI{
		Registry: index.DefaultRegistry(),
		Ping:     func(context.Context) error { return errors.New("down") },
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
