package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"museum-discovery/internal/index"
	"museum-discovery/internal/ingest"
	"museum-discovery/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const importSecret = "s3cret"

func newIngestRouter(t *testing.T, content string) (*gin.Engine, *index.MemoryStore, string) {
	t.Helper()
	return newLockedIngestRouter(t, content, nil)
}

func newLockedIngestRouter(t *testing.T, content string, lock *ingest.Lock) (*gin.Engine, *index.MemoryStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "content.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store := index.NewMemoryStore()
	runner := &ingest.Runner{
		Sources: []ingest.SourceConfig{{
			Name:        "press",
			SourceID:    "press",
			Label:       "Press",
			Transformer: ingest.TransformerContent,
			Index:       index.News,
			File:        path,
		}},
		Pipeline: ingest.NewPipeline(store, ingest.Options{ChunkSize: 2}),
		Lock:     lock,
	}
	router := gin.New()
	SetupIngestRoutes(router, importSecret, runner)
	return router, store, path
}

func postImport(router *gin.Engine, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const pressItems = `{"id":"1","url":"https://example.org/press/1","title":"New galleries open"}
{"id":"2","url":"https://example.org/press/2","title":"Annual report"}
{"id":"3","url":"https://example.org/press/3","title":""}
`

func TestImportRequiresSecret(t *testing.T) {
	router, store, _ := newIngestRouter(t, pressItems)

	w := postImport(router, "/import?source=press", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = postImport(router, "/import?source=press", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Zero(t, store.Count(index.News))
}

func TestImportNamedSource(t *testing.T) {
	router, store, _ := newIngestRouter(t, pressItems)

	w := postImport(router, "/import?source=press", importSecret)
	require.Equal(t, http.StatusOK, w.Code)

	var summary models.IngestionSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	require.Len(t, summary.Sources, 1)
	assert.Equal(t, models.SourceStatusOK, summary.Sources[0].Status)
	assert.Equal(t, 2, summary.Sources[0].Upserted)
	assert.Equal(t, 1, summary.Sources[0].Skipped)
	assert.Equal(t, 2, store.Count(index.News))

	// a second run upserts the same ids
	w = postImport(router, "/import?source=press", importSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, store.Count(index.News))
}

func TestImportDefaultSelectsFeedsOnly(t *testing.T) {
	router, store, _ := newIngestRouter(t, pressItems)

	w := postImport(router, "/import", importSecret)
	require.Equal(t, http.StatusOK, w.Code)
	var summary models.IngestionSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Empty(t, summary.Sources)
	assert.Zero(t, store.Count(index.News))
}

func TestImportUnknownSource(t *testing.T) {
	router, _, _ := newIngestRouter(t, pressItems)
	w := postImport(router, "/import?source=nope", importSecret)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportFailedSourceIs500(t *testing.T) {
	router, _, path := newIngestRouter(t, pressItems)
	require.NoError(t, os.Remove(path))

	w := postImport(router, "/import?source=press", importSecret)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var summary models.IngestionSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	require.Len(t, summary.Sources, 1)
	assert.Equal(t, models.SourceStatusFailed, summary.Sources[0].Status)
	assert.NotEmpty(t, summary.Sources[0].Error)
}

func TestImportConflictWhileAnotherRunHoldsTheLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	router, store, _ := newLockedIngestRouter(t, pressItems, ingest.NewLock(client, time.Minute))

	require.NoError(t, mr.Set(ingest.LockKey, "another-run"))
	w := postImport(router, "/import?source=press", importSecret)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "run_in_progress")
	assert.Zero(t, store.Count(index.News))

	mr.Del(ingest.LockKey)
	w = postImport(router, "/import?source=press", importSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, store.Count(index.News))
	assert.False(t, mr.Exists(ingest.LockKey))
}
