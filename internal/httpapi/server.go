// Package httpapi implements the optional HTTP surface over the Search
// Service and Chunk Store: POST /v1/search/regex, POST /v1/search/semantic,
// GET /v1/stats, GET /healthz, GET /metrics. It mirrors the stdio tool
// protocol's operations for callers that want plain HTTP instead of MCP,
// built with gin-gonic/gin the way rajajisai-bot-go's router does.
package httpapi

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/codesearchd/codesearchd/internal/config"
	"github.com/codesearchd/codesearchd/internal/indexer"
	"github.com/codesearchd/codesearchd/internal/search"
	"github.com/codesearchd/codesearchd/internal/storage"
)

// Server wraps a gin.Engine bound to a net/http.Server so it can be started
// and gracefully stopped alongside the stdio protocol server.
type Server struct {
	log *zap.Logger
	cfg config.HTTPConfig
	srv *http.Server
}

// New builds the HTTP surface. defaultProvider is used for semantic search
// requests that omit "provider".
func New(log *zap.Logger, store *storage.ChunkStore, coord *indexer.Coordinator, svc *search.Service, defaultProvider string, cfg config.HTTPConfig) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	h := &handlers{store: store, coord: coord, svc: svc, defaultProvider: defaultProvider, log: log}
	router := newRouter(h, log)

	return &Server{
		log: log,
		cfg: cfg,
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Serve starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", zap.String("addr", s.cfg.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newRouter builds the gin.Engine shared by New (production) and tests
// (which exercise it directly via httptest, without a listening socket).
func newRouter(h *handlers, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(recoveryMiddleware(log))
	router.Use(loggerMiddleware(log))

	v1 := router.Group("/v1")
	{
		v1.POST("/search/regex", h.searchRegex)
		v1.POST("/search/semantic", h.searchSemantic)
		v1.GET("/stats", h.stats)
	}
	router.GET("/healthz", h.healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func loggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func recoveryMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("error", r),
					zap.String("stack", string(debug.Stack())),
					zap.String("path", c.Request.URL.Path),
				)
				c.JSON(http.StatusInternalServerError, errorBody(KindInternal, "internal error", false))
				c.Abort()
			}
		}()
		c.Next()
	}
}
