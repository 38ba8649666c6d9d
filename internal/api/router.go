package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/brokenlink/internal/model"
)

// ReadHeaderTimeout bounds how long the server waits for request headers.
const ReadHeaderTimeout = 10 * time.Second

// Scanner is the scan registry seen by the handlers.
// *registry.Registry implements Scanner.
type Scanner interface {
	Start(cfg model.ScanConfig) (string, error)
	Status(id string) (model.ScanJob, error)
	Result(id string) (*model.ScanResult, error)
	Wait(ctx context.Context, id string) (model.ScanJob, error)
	Cancel(id string) error
	List() []model.ScanJob
}

// routerConfig holds optional router settings.
type routerConfig struct {
	logger  *slog.Logger
	metrics http.Handler
}

// Option configures the router.
type Option func(*routerConfig)

// WithLogger sets the logger used for request logs.
func WithLogger(logger *slog.Logger) Option {
	return func(c *routerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetricsHandler serves handler on GET /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(c *routerConfig) {
		c.metrics = handler
	}
}

// NewRouter creates the gin engine with all routes.
func NewRouter(scanner Scanner, opts ...Option) *gin.Engine {
	cfg := &routerConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(cfg.logger))

	h := &ScanHandler{scanner: scanner, logger: cfg.logger}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.metrics))
	}

	router.POST("/scan", h.StartScan)
	router.DELETE("/scan/:scan_id", h.CancelScan)
	router.GET("/status/:scan_id", h.GetStatus)
	router.GET("/results/:scan_id", h.GetResults)
	router.GET("/scans", h.ListScans)

	return router
}

// NewServer returns an http.Server serving handler on addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: ReadHeaderTimeout,
	}
}

// loggingMiddleware logs each request after it was served.
func loggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
