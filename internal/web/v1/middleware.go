package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	logicv1 "github.com/duynhne/metaboard/internal/logic/v1"
)

// SessionAuth validates the Bearer session token and stores the
// authenticated user's identity on the request context for downstream
// handlers and the logging middleware.
func (h *Handler) SessionAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		session, err := h.auth.GetUserByToken(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, logicv1.ErrSessionNotFound):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			case errors.Is(err, logicv1.ErrSessionExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
			return
		}

		c.Set("user_id", session.UserID)
		c.Set("username", session.Username)
		c.Set("email", session.Email)
		c.Set("user_role", session.Role)
		c.Set("session_token", token)

		c.Next()
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, or returns "" when absent or malformed.
func bearerToken(c *gin.Context) string {
	const bearerPrefix = "Bearer "

	authHeader := c.GetHeader("Authorization")
	if len(authHeader) <= len(bearerPrefix) || !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return authHeader[len(bearerPrefix):]
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// pathID parses a numeric path parameter, returning 0 when missing or
// not a number.
func pathID(c *gin.Context, name string) int {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0
	}
	return id
}
