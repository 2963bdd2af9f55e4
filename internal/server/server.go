// Package server exposes the judging core over HTTP: submit cells for
// judgment, feed health reports, return external feedback to the
// policy, and introspect system state.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"cynic/internal/analyzer"
	"cynic/internal/consensus"
	"cynic/internal/health"
	"cynic/internal/logging"
	"cynic/internal/orchestrator"
	"cynic/internal/policy"
	"cynic/internal/storage"
)

// Config tunes the HTTP adapter.
type Config struct {
	Host         string
	Port         int
	EnableCORS   bool
	Debug        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         8080,
		EnableCORS:   true,
		Debug:        false,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Deps carries the collaborators the handlers need. Audit is optional.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Registry     *analyzer.Registry
	Engine       *consensus.Engine
	Monitor      *health.Monitor
	Table        *policy.QTable
	Audit        *storage.AuditLog
	Logger       logging.Logger
}

// Server is the HTTP adapter around one judging core instance.
type Server struct {
	cfg        Config
	deps       Deps
	engine     *gin.Engine
	httpServer *http.Server
	log        logging.Logger
	startTime  time.Time
}

// New assembles the router. Start actually binds the listener.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Orchestrator == nil || deps.Monitor == nil || deps.Table == nil ||
		deps.Engine == nil || deps.Registry == nil {
		return nil, fmt.Errorf("invalid configuration: orchestrator, registry, monitor, engine, and table are required")
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if cfg.Debug {
		engine.Use(gin.Logger())
	}
	if cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
		engine.Use(cors.New(corsConfig))
	}

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		engine:    engine,
		log:       logging.OrNop(deps.Logger),
		startTime: time.Now(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	api := s.engine.Group("/api")
	api.POST("/judge", s.handleJudge)
	api.POST("/health/report", s.handleHealthReport)
	api.POST("/health/force", s.handleHealthForce)
	api.POST("/feedback", s.handleFeedback)
	api.GET("/status", s.handleStatus)
	api.GET("/stats", s.handleStats)
	api.GET("/consensus/recent", s.handleRecentRounds)
	api.GET("/policy/stats", s.handlePolicyStats)
	api.GET("/policy/top", s.handlePolicyTop)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start binds the listener and serves until Shutdown. Blocks.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.log.Info("http server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
