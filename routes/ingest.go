package routes

import (
	"context"
	"errors"
	"net/http"

	"museum-discovery/internal/ingest"
	"museum-discovery/internal/logger"
	"museum-discovery/middleware"
	"museum-discovery/models"
	"museum-discovery/utils"

	"github.com/gin-gonic/gin"
)

// IngestRunner runs one ingestion trigger.
type IngestRunner interface {
	Run(ctx context.Context, name string) (models.IngestionSummary, error)
}

// SetupIngestRoutes registers the authenticated ingestion trigger. The run is
// synchronous and bound to the request context.
func SetupIngestRoutes(router *gin.Engine, secret string, runner IngestRunner) {
	router.POST("/import", middleware.RequireImportSecret(secret), func(c *gin.Context) {
		source := c.Query("source")
		logger.Info("ingestion triggered", "source", source, "request_id", middleware.GetRequestID(c))

		summary, err := runner.Run(c.Request.Context(), source)
		switch {
		case errors.Is(err, ingest.ErrRunInProgress):
			utils.RespondWithError(c, http.StatusConflict, "run_in_progress", err.Error(), nil)
			return
		case err != nil:
			utils.RespondWithServiceError(c, err)
			return
		}

		status := http.StatusOK
		if summary.Failed() {
			status = http.StatusInternalServerError
		}
		c.JSON(status, summary)
	})
}
