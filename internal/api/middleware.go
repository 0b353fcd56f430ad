package api

import (
	"net/http"
	"time"

	"medscribe/internal/utils"
	"medscribe/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const callerKey = "caller_id"

// corsMiddleware adds CORS headers for browser and mobile clients
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-User-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// LoggingMiddleware logs one line per request
func LoggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// RecoveryMiddleware turns a handler panic into a 500 response
func RecoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("Handler panicked")
				utils.Error(c, http.StatusInternalServerError, "internal_error", "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// requireCaller resolves the X-User-ID header into the caller identity
func requireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID, err := uuid.Parse(c.GetHeader("X-User-ID"))
		if err != nil || callerID == uuid.Nil {
			utils.Fail(c, errors.Wrap(errors.ErrUnauthenticated, errors.KindUnauthenticated, "unauthenticated",
				"X-User-ID header with a valid UUID is required"))
			c.Abort()
			return
		}
		c.Set(callerKey, callerID)
		c.Next()
	}
}

func caller(c *gin.Context) uuid.UUID {
	id, _ := c.Get(callerKey)
	callerID, _ := id.(uuid.UUID)
	return callerID
}
