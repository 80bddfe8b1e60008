// Package quotehttp exposes the quote API: submit a request, poll its
// result, list recent requests.
package quotehttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"teklif/internal/logger"
	"teklif/internal/types"
)

// QuoteService is the surface the HTTP layer needs from the orchestrator.
type QuoteService interface {
	Submit(req types.QuoteRequest) (string, error)
	GetStatus(requestID string) (types.QuoteResult, error)
	ListRecent(limit int) []types.QuoteResult
}

// Server serves the quote API on a single listener.
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig describes the HTTP server dependencies.
type ServerConfig struct {
	Addr    string
	Quotes  QuoteService
	Healthy func() bool
}

// NewServer builds the quote HTTP server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Quotes == nil {
		return nil, errors.New("quote http server requires a quote service")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8750"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		if cfg.Healthy != nil && !cfg.Healthy() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	quoteRouter := NewRouter(cfg.Quotes)
	quoteRouter.Register(router.Group("/api"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		client := c.ClientIP()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), client, time.Since(start))
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
