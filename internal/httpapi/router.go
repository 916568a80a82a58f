package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// slowRequestThreshold is the duration above which requests are logged at WARN level.
const slowRequestThreshold = 500 * time.Millisecond

// Deps wires the router.
type Deps struct {
	Jobs    JobService
	Events  Subscriber
	Metrics http.Handler
	MCP     http.Handler
	Logger  *slog.Logger
}

// NewRouter builds the gin engine serving the job API, health and metrics.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), loggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.MCP != nil {
		router.Any("/mcp", gin.WrapH(deps.MCP))
	}

	jobs := NewJobHandler(deps.Jobs)
	v1 := router.Group("/v1")
	v1.POST("/jobs", jobs.CreateJob)
	v1.GET("/jobs", jobs.ListJobs)
	v1.GET("/jobs/:id", jobs.GetJob)
	v1.POST("/jobs/:id/cancel", jobs.CancelJob)
	if deps.Events != nil {
		v1.GET("/jobs/:id/watch", NewWatchHandler(deps.Jobs, deps.Events, logger).Watch)
	}

	return router
}

// loggingMiddleware logs every request with its status and duration.
// Slow requests and server errors are logged above DEBUG.
func loggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", duration.Milliseconds(),
		}
		if id := c.Param("id"); id != "" {
			attrs = append(attrs, "job_id", id)
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request failed", attrs...)
		case duration > slowRequestThreshold && c.FullPath() != "/v1/jobs/:id/watch":
			logger.Warn("slow request", attrs...)
		default:
			logger.Debug("request completed", attrs...)
		}
	}
}
