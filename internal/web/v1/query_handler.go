package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/metaboard/internal/core/domain"
	"github.com/duynhne/metaboard/internal/export"
	"github.com/duynhne/metaboard/internal/logging"
	logicv1 "github.com/duynhne/metaboard/internal/logic/v1"
	"github.com/duynhne/metaboard/middleware"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExecuteQuery fans a SQL query out to the selected servers.
// POST /api/v1/query/execute
//
// The response is always 200 once the run dispatches: per-server failures
// live in each entry's error field, not in the outer status. Only a
// malformed request (400) or an internal failure (500) rejects the call.
func (h *Handler) ExecuteQuery(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	logger := logging.FromContext(ctx)

	req, ok := h.bindQueryRequest(c, span)
	if !ok {
		return
	}

	entries, err := h.fanout.Run(ctx, *req)
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("Fan-out rejected")

		switch {
		case errors.Is(err, logicv1.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to execute queries"})
		}
		return
	}

	logger.Info().Int("selections", len(entries)).Msg("Fan-out complete")
	c.JSON(http.StatusOK, entries)
}

// ExportQuery runs the same fan-out and streams the successful results as
// an XLSX workbook, one sheet per server.
// POST /api/v1/query/export
func (h *Handler) ExportQuery(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	logger := logging.FromContext(ctx)

	req, ok := h.bindQueryRequest(c, span)
	if !ok {
		return
	}

	entries, err := h.fanout.Run(ctx, *req)
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("Fan-out rejected")

		switch {
		case errors.Is(err, logicv1.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to execute queries"})
		}
		return
	}

	workbook, err := export.Workbook(entries)
	if err != nil {
		if errors.Is(err, export.ErrNoResults) {
			// Nothing succeeded; hand back the per-server errors instead
			// of an empty workbook.
			c.JSON(http.StatusBadGateway, gin.H{"error": "All servers failed", "results": entries})
			return
		}
		span.RecordError(err)
		logger.Error().Err(err).Msg("Workbook build failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build workbook"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="query_results.xlsx"`)
	c.Header("Content-Type", xlsxContentType)
	if err := workbook.Write(c.Writer); err != nil {
		// Headers are gone already; log and give up on this response.
		span.RecordError(err)
		logger.Error().Err(err).Msg("Workbook write failed")
		return
	}

	logger.Info().Int("selections", len(entries)).Msg("Export complete")
}

// bindQueryRequest parses the fan-out request body and enforces the role
// gate: a regular user may only run fan-outs against their own credentials,
// a super user against anyone's. A missing userId defaults to the caller.
func (h *Handler) bindQueryRequest(c *gin.Context, span trace.Span) (*domain.QueryRequest, bool) {
	logger := logging.FromContext(c.Request.Context())

	var req domain.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Error().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return nil, false
	}

	callerID := c.GetInt("user_id")
	if req.UserID == 0 {
		req.UserID = callerID
	}
	if req.UserID != callerID && c.GetString("user_role") != domain.RoleSuperUser {
		logger.Warn().
			Int("caller_id", callerID).
			Int("requested_user_id", req.UserID).
			Msg("Cross-user fan-out denied")
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot query another user's servers"})
		return nil, false
	}

	span.SetAttributes(
		attribute.Bool("request.valid", true),
		attribute.Int("selections", len(req.Selections)),
	)
	return &req, true
}
