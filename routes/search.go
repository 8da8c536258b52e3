package routes

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"museum-discovery/internal/errs"
	"museum-discovery/internal/index"
	"museum-discovery/models"
	"museum-discovery/services"
	"museum-discovery/utils"

	"github.com/gin-gonic/gin"
)

// DocumentSimilarSize is the number of similar works attached to an art
// document.
const DocumentSimilarSize = 12

type Searcher interface {
	Search(ctx context.Context, p services.SearchParams) (*services.SearchResult, error)
	Options(ctx context.Context, name, field, q string) ([]services.Bucket, error)
}

type SimilarFinder interface {
	SimilarTo(ctx context.Context, id string, opts services.SimilarOptions) ([]models.Document, error)
}

type TermFinder interface {
	Suggest(ctx context.Context, q string) ([]models.Term, error)
	Terms(ctx context.Context, q string) ([]models.Term, error)
}

type DocumentFinder interface {
	FindByID(ctx context.Context, index, id string) (*models.Document, error)
}

// SearchAPI bundles the read services behind the public endpoints.
type SearchAPI struct {
	Registry  *index.Registry
	Searcher  Searcher
	Similar   SimilarFinder
	Terms     TermFinder
	Documents DocumentFinder
	Timeout   time.Duration
	// Ping backs /health when set.
	Ping func(ctx context.Context) error
}

func SetupSearchRoutes(router *gin.Engine, api *SearchAPI) {
	router.GET("/health", api.health)
	router.GET("/search", api.search)
	router.GET("/document", api.document)
	router.GET("/similar", api.similar)
	router.GET("/suggest", api.suggest)
	router.GET("/terms", api.terms)
	router.GET("/options", api.options)
}

func (a *SearchAPI) withTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	if a.Timeout <= 0 {
		return utils.WithTimeout(c.Request.Context())
	}
	return utils.WithCustomTimeout(c.Request.Context(), a.Timeout)
}

func (a *SearchAPI) health(c *gin.Context) {
	if a.Ping != nil {
		ctx, cancel := utils.WithShortTimeout(c.Request.Context())
		defer cancel()
		if err := a.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
}

func (a *SearchAPI) search(c *gin.Context) {
	params, err := services.ParseSearchParams(a.Registry, c.Request.URL.Query())
	if err != nil {
		utils.RespondWithServiceError(c, err)
		return
	}

	ctx, cancel := a.withTimeout(c)
	defer cancel()

	res, err := a.Searcher.Search(ctx, params)
	if err != nil {
		utils.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *SearchAPI) document(c *gin.Context) {
	name := c.Query("index")
	id := c.Query("id")
	if !slices.Contains(a.Registry.Names(), name) {
		utils.RespondWithServiceError(c, errs.Invalid("index", "unknown index %q", name))
		return
	}
	if id == "" {
		utils.RespondWithServiceError(c, errs.Invalid("id", "is required"))
		return
	}

	ctx, cancel := a.withTimeout(c)
	defer cancel()

	doc, err := a.Documents.FindByID(ctx, name, id)
	if err != nil {
		utils.RespondWithServiceError(c, err)
		return
	}

	resp := gin.H{"data": doc}
	if name == index.Art {
		similar, err := a.Similar.SimilarTo(ctx, id, services.SimilarOptions{RequirePhoto: true, Size: DocumentSimilarSize})
		if err != nil {
			utils.RespondWithServiceError(c, err)
			return
		}
		resp["similar"] = similar
	}
	c.JSON(http.StatusOK, resp)
}

func (a *SearchAPI) similar(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		utils.RespondWithServiceError(c, errs.Invalid("id", "is required"))
		return
	}
	opts := services.SimilarOptions{Color: c.Query("color")}
	if v := c.Query("hasPhoto"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			utils.RespondWithServiceError(c, errs.Invalid("hasPhoto", "expected a boolean, got %q", v))
			return
		}
		opts.RequirePhoto = b
	}
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > services.MaxPageSize {
			utils.RespondWithServiceError(c, errs.Invalid("size", "expected 1..%d, got %q", services.MaxPageSize, v))
			return
		}
		opts.Size = n
	}

	ctx, cancel := a.withTimeout(c)
	defer cancel()

	docs, err := a.Similar.SimilarTo(ctx, id, opts)
	if err != nil {
		utils.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (a *SearchAPI) suggest(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	ctx, cancel := a.withTimeout(c)
	defer cancel()

	terms, err := a.Terms.Suggest(ctx, q)
	if err != nil {
		utils.RespondWithServiceError(c, err)
		return
	}
	if terms == nil {
		terms = []models.Term{}
	}
	c.JSON(http.StatusOK, gin.H{"data": terms})
}

func (a *SearchAPI) terms(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, []models.Term{})
		return
	}

	ctx, cancel := a.withTimeout(c)
	defer cancel()

	terms, err := a.Terms.Terms(ctx, q)
	if err != nil {
		utils.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, terms)
}

func (a *SearchAPI) options(c *gin.Context) {
	name := c.DefaultQuery("index", index.All)
	field := c.Query("field")
	if field == "" {
		utils.RespondWithServiceError(c, errs.Invalid("field", "is required"))
		return
	}

	ctx, cancel := a.withTimeout(c)
	defer cancel()

	buckets, err := a.Searcher.Options(ctx, name, field, c.Query("q"))
	if err != nil {
		utils.RespondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": buckets})
}
