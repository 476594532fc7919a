package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const slowRequestThreshold = 500 * time.Millisecond

// Zerolog logs every request; slow requests are promoted to warnings.
func Zerolog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)

		event := log.Info()
		if latency > slowRequestThreshold {
			event = log.Warn()
		}

		event.
			Str("http.client_ip", c.ClientIP()).
			Str("http.method", c.Request.Method).
			Str("http.path", c.Request.URL.Path).
			Int("http.status", c.Writer.Status()).
			Dur("http.latency", latency).
			Msg("HTTP request")
	}
}

// CORS. Allowed origins should be comma separated. Empty string is treated as `*` wildcard.
func CORS(allowedOrigins string) gin.HandlerFunc {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}

	config := cors.DefaultConfig()
	config.AllowOrigins = strings.Split(allowedOrigins, ",")
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}

	return cors.New(config)
}

// Timeout bounds request handling through the request context.
func Timeout(timeout time.Duration, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})

		go func() {
			c.Next()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return
			}

			log.Warn().
				Str("http.method", c.Request.Method).
				Str("http.path", c.Request.URL.Path).
				Msg("HTTP request timed out")

			c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{
				"error": "Request timeout",
			})
		}
	}
}
