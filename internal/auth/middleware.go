package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Efasquel/tracker/internal"
	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "userID"

func AuthMiddleware(provider TokenProvider, logger internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, internal.NewAppError(http.StatusUnauthorized, "Access denied. No token provided."))
			return
		}
		claims, err := provider.Validate(token)
		if err != nil {
			logger.Warnf("[request_id=%s] token rejected: %v", c.GetString("request_id"), err)
			if errors.Is(err, internal.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, internal.NewAppError(http.StatusUnauthorized, "Token has expired."))
				return
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, internal.NewAppError(http.StatusBadRequest, "Invalid token."))
			return
		}
		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// CallerID returns the id of the authenticated caller, or "" outside AuthMiddleware.
func CallerID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
