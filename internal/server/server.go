package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/atikulmunna/eveflow/internal/aggregator"
	"github.com/atikulmunna/eveflow/internal/hub"
	"github.com/atikulmunna/eveflow/internal/model"
	"github.com/atikulmunna/eveflow/internal/query"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Hub is the subscription side of the broadcast hub.
type Hub interface {
	Subscribe() *hub.Subscription
	Unsubscribe(*hub.Subscription)
}

// Queries answers /logs and /stats.
type Queries interface {
	Query(f query.Filters, page, limit int) query.Result
	Get(id string) (model.Record, bool)
	Stats(now time.Time) model.Stats
}

// Health reports ingestion state for /healthz.
type Health interface {
	Snapshot() aggregator.Stats
}

// Options configures the HTTP surface.
type Options struct {
	Addr        string
	CORSOrigins []string
	Pprof       bool
	Metrics     http.Handler // served at /metrics when set
	Logger      *zap.Logger
}

// Server holds the Gin engine and dependencies for the query and push API.
type Server struct {
	engine  *gin.Engine
	hub     Hub
	queries Queries
	health  Health
	opts    Options
	log     *zap.Logger
	origins map[string]bool
}

// New creates the HTTP server.
func New(h Hub, q Queries, health Health, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(opts.Logger))

	// Disable automatic redirects that cause 301 issues.
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	s := &Server{
		engine:  engine,
		hub:     h,
		queries: q,
		health:  health,
		opts:    opts,
		log:     opts.Logger,
		origins: make(map[string]bool, len(opts.CORSOrigins)),
	}
	for _, o := range opts.CORSOrigins {
		s.origins[o] = true
	}
	if len(opts.CORSOrigins) > 0 {
		engine.Use(cors.New(s.corsConfig()))
	}

	s.setupRoutes()
	return s
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if s.origins["*"] {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.opts.CORSOrigins
		cfg.AllowCredentials = true
	}
	return cfg
}

func (s *Server) setupRoutes() {
	s.engine.GET("/logs", s.handleLogs)
	s.engine.GET("/logs/:id", s.handleLog)
	s.engine.GET("/stats", s.handleStats)

	// Health check.
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"ingest": s.health.Snapshot(),
		})
	})

	if s.opts.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.opts.Metrics))
	}

	// WebSocket.
	s.engine.GET("/ws", s.handleWebSocket)

	if s.opts.Pprof {
		s.engine.GET("/debug/pprof/", gin.WrapF(pprof.Index))
		s.engine.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
		s.engine.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
		s.engine.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
		s.engine.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
		s.engine.GET("/debug/pprof/allocs", gin.WrapH(pprof.Handler("allocs")))
		s.engine.GET("/debug/pprof/heap", gin.WrapH(pprof.Handler("heap")))
		s.engine.GET("/debug/pprof/goroutine", gin.WrapH(pprof.Handler("goroutine")))
	}
}

func (s *Server) handleLogs(c *gin.Context) {
	page := intParam(c, "page", 1)
	limit := intParam(c, "limit", query.DefaultLimit)
	filters := query.ParseFilters(c.Request.URL.Query())

	c.JSON(http.StatusOK, s.queries.Query(filters, page, limit))
}

func (s *Server) handleLog(c *gin.Context) {
	rec, ok := s.queries.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "log not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.queries.Stats(time.Now()))
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// intParam reads a positive integer query parameter, falling back to def.
func intParam(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}

// requestLogger logs one line per request at debug level.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("client", c.ClientIP()),
		)
	}
}
