package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Efasquel/tracker/internal"
	"github.com/Efasquel/tracker/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDMiddleware ensures every request has a correlation/request ID
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("request_id", reqID)
		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Next()
	}
}

// AccessLogMiddleware logs one line per request once the handler chain is done.
func AccessLogMiddleware(logger internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infof("[request_id=%s] %s %s -> %d (%s)",
			c.GetString("request_id"), c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// StoreTimeoutMiddleware bounds how long handlers may wait on the store.
func StoreTimeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RecoveryMiddleware turns a panic into a logged 500.
func RecoveryMiddleware(logger internal.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Errorf("[request_id=%s] panic: %v", c.GetString("request_id"), recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.InternalError())
	})
}
