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

// Handler groups HTTP handlers for the dashboard API v1.
// Dependencies are injected via the constructor — no global state.
type Handler struct {
	auth    *logicv1.AuthService
	servers *logicv1.ServerService
	fanout  *logicv1.FanOutService
}

// NewHandler creates a new Handler with the given services.
func NewHandler(auth *logicv1.AuthService, servers *logicv1.ServerService, fanout *logicv1.FanOutService) *Handler {
	return &Handler{auth: auth, servers: servers, fanout: fanout}
}

// RegisterRoutes registers all API v1 routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/login", h.Login)
	rg.POST("/auth/register", h.Register)

	authed := rg.Group("", h.SessionAuth())
	{
		authed.GET("/auth/me", h.GetMe)
		authed.POST("/auth/logout", h.Logout)

		authed.GET("/servers", h.ListServers)
		authed.POST("/servers", h.RegisterServer)
		authed.DELETE("/servers/:serverId", h.DeleteServer)
		authed.GET("/servers/:serverId/databases", h.ListServerDatabases)
		authed.GET("/servers/:serverId/ping", h.PingServer)

		authed.POST("/query/execute", h.ExecuteQuery)
		authed.POST("/query/export", h.ExportQuery)
	}
}

// Login handles HTTP request for user login.
func (h *Handler) Login(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	logger := logging.FromContext(ctx)

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Error().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Bool("request.valid", true))

	// Call business logic layer
	response, err := h.auth.Login(ctx, req)
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("Login failed")

		switch {
		case errors.Is(err, logicv1.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		case errors.Is(err, logicv1.ErrUserNotFound):
			// Don't reveal that user doesn't exist (security best practice)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	logger.Info().Str("user_id", response.User.ID).Msg("Login successful")
	c.JSON(http.StatusOK, response)
}

// Register handles HTTP request for user registration.
// Anyone may self-register a regular user; creating a SUPER_USER requires
// a super-user session token on the request.
func (h *Handler) Register(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	logger := logging.FromContext(ctx)

	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Error().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Bool("request.valid", true))

	// Role gating needs to know who is asking, if anyone.
	callerRole := ""
	if token := bearerToken(c); token != "" {
		if session, err := h.auth.GetUserByToken(ctx, token); err == nil {
			callerRole = session.Role
		}
	}

	response, err := h.auth.Register(ctx, req, callerRole)
	if err != nil {
		span.RecordError(err)
		logger.Error().
			Err(err).
			Str("username", req.Username).
			Msg("Registration failed")

		switch {
		case errors.Is(err, logicv1.ErrUserExists):
			c.JSON(http.StatusConflict, gin.H{"error": "Username or email already exists"})
		case errors.Is(err, logicv1.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "Super user required to assign roles"})
		case errors.Is(err, logicv1.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	logger.Info().Str("user_id", response.User.ID).Msg("Registration successful")
	c.JSON(http.StatusCreated, response)
}

// GetMe handles HTTP request to get current user from session token.
// GET /api/v1/auth/me
// Authorization: Bearer <token>
func (h *Handler) GetMe(c *gin.Context) {
	_, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	// The session middleware already validated the token.
	user := domain.User{
		ID:       itoa(c.GetInt("user_id")),
		Username: c.GetString("username"),
		Email:    c.GetString("email"),
		Role:     c.GetString("user_role"),
	}

	span.SetAttributes(attribute.String("user.id", user.ID))
	c.JSON(http.StatusOK, user)
}

// Logout invalidates the caller's session token.
func (h *Handler) Logout(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	logger := logging.FromContext(ctx)

	token := c.GetString("session_token")
	if err := h.auth.Logout(ctx, token); err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("Logout failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}
