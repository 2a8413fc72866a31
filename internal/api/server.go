// Package api serves the operator status surface.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"

	"scalper/internal/core"
	"scalper/internal/obs"
)

// StatusSource publishes the engine view.
type StatusSource interface {
	Status() core.Status
}

// Config controls the server.
type Config struct {
	Addr string
	// StaleAfter is how old the last tick may be before /healthz fails. Zero disables the check.
	StaleAfter time.Duration
}

// Server exposes /healthz, /status and /metrics.
type Server struct {
	cfg        Config
	source     StatusSource
	metrics    *obs.Metrics
	router     *gin.Engine
	httpServer *http.Server
	now        func() time.Time
}

// NewServer creates a server. metrics may be nil.
func NewServer(cfg Config, source StatusSource, metrics *obs.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLog())

	s := &Server{
		cfg:     cfg,
		source:  source,
		metrics: metrics,
		router:  router,
		now:     time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/status", s.handleStatus)
	if reg := s.metrics.Registry(); reg != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logs.Infof("status server listening on %s", s.cfg.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.source.Status()
	resp := gin.H{
		"status":    "ok",
		"symbol":    st.Symbol,
		"halted":    st.Halted,
		"connected": st.Connected,
		"lastTick":  st.LastTick,
	}
	if s.cfg.StaleAfter > 0 && !st.LastTick.IsZero() && s.now().Sub(st.LastTick) > s.cfg.StaleAfter {
		resp["status"] = "stale"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.Status())
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logs.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
