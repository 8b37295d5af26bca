package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/metaboard/internal/core/domain"
	"github.com/duynhne/metaboard/internal/logging"
	logicv1 "github.com/duynhne/metaboard/internal/logic/v1"
	"github.com/duynhne/metaboard/middleware"
)

// ListServers returns the caller's registered servers.
// GET /api/v1/servers
func (h *Handler) ListServers(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	logger := logging.FromContext(ctx)

	servers, err := h.servers.List(ctx, c.GetInt("user_id"))
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("List servers failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, servers)
}

// RegisterServer upserts a server and the caller's credentials for it.
// POST /api/v1/servers
func (h *Handler) RegisterServer(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	logger := logging.FromContext(ctx)

	var req domain.RegisterServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Error().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.servers.Register(ctx, c.GetInt("user_id"), req)
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("Register server failed")

		switch {
		case errors.Is(err, logicv1.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": "hostUrl, email and password are required"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save server"})
		}
		return
	}

	logger.Info().Int("server_id", summary.ID).Msg("Server registered")
	c.JSON(http.StatusCreated, summary)
}

// DeleteServer removes the caller's association with a server.
// DELETE /api/v1/servers/:serverId
func (h *Handler) DeleteServer(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	logger := logging.FromContext(ctx)

	serverID := pathID(c, "serverId")
	if serverID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid server ID"})
		return
	}

	if err := h.servers.Delete(ctx, c.GetInt("user_id"), serverID); err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Int("server_id", serverID).Msg("Delete server failed")

		switch {
		case errors.Is(err, logicv1.ErrServerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete server"})
		}
		return
	}

	logger.Info().Int("server_id", serverID).Msg("Server deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Server deleted successfully"})
}

// ListServerDatabases lists the databases on a registered remote server.
// GET /api/v1/servers/:serverId/databases
func (h *Handler) ListServerDatabases(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	logger := logging.FromContext(ctx)

	serverID := pathID(c, "serverId")
	if serverID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid server ID"})
		return
	}

	databases, err := h.servers.ListDatabases(ctx, c.GetInt("user_id"), serverID)
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Int("server_id", serverID).Msg("List databases failed")

		switch {
		case errors.Is(err, logicv1.ErrServerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch databases"})
		}
		return
	}

	c.JSON(http.StatusOK, databases)
}

// PingServer probes a registered server's reachability and version.
// GET /api/v1/servers/:serverId/ping
func (h *Handler) PingServer(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	logger := logging.FromContext(ctx)

	serverID := pathID(c, "serverId")
	if serverID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid server ID"})
		return
	}

	result, err := h.servers.Ping(ctx, c.GetInt("user_id"), serverID)
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Int("server_id", serverID).Msg("Ping failed")

		switch {
		case errors.Is(err, logicv1.ErrServerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}
