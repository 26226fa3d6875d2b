package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	promhandler "github.com/jwalitptl/medvault-api/internal/handler/prometheus"
	"github.com/jwalitptl/medvault-api/internal/middleware"
	"github.com/jwalitptl/medvault-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	Mode           string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	CORS           middleware.CORSConfig
	// RateLimit is nil when rate limiting is disabled.
	RateLimit *middleware.RateLimiterConfig
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
}

type Router struct {
	engine   *gin.Engine
	metrics  *metrics.Metrics
	handlers []Handler
}

func NewRouter(config RouterConfig, m *metrics.Metrics, handlers ...Handler) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	middleware.RegisterValidators()

	engine := gin.New()
	r := &Router{
		engine:   engine,
		metrics:  m,
		handlers: handlers,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		r.metricsMiddleware(),
		middleware.SecurityHeaders(),
		middleware.CORS(config.CORS),
	)
	if config.RateLimit != nil {
		engine.Use(middleware.NewRateLimiter(*config.RateLimit).RateLimit())
	}
	engine.Use(
		middleware.BodyLimit(config.MaxBodyBytes),
		middleware.Timeout(config.RequestTimeout),
		middleware.ErrorHandler(),
	)

	promhandler.New(config.Gatherer).RegisterRoutes(engine)
	return r
}

// Setup mounts every handler under /api/v1.
func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")
	for _, h := range r.handlers {
		h.RegisterRoutes(api)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		code := c.Writer.Status()
		status := strconv.Itoa(code)

		r.metrics.RequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.RequestTotal.WithLabelValues(c.Request.Method, path, status).Inc()

		switch {
		case code >= 500:
			r.metrics.ErrorTotal.WithLabelValues(c.Request.Method, path, "server").Inc()
		case code >= 400:
			r.metrics.ErrorTotal.WithLabelValues(c.Request.Method, path, "client").Inc()
		}
	}
}
