// Package api serves the operator dashboard: bot status and control,
// trade and tick history, scanner verdicts, and a WebSocket feed of
// system events.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"upbit-trading-bot/internal/auth"
	"upbit-trading-bot/internal/database"
	"upbit-trading-bot/internal/events"
	"upbit-trading-bot/internal/portfolio"
)

// BotController is what the bot must expose to the API
type BotController interface {
	Start() error
	Stop() error
	Status() map[string]any
	TriggerTick() error
}

// PortfolioSource reads a live portfolio snapshot
type PortfolioSource interface {
	Snapshot(ctx context.Context) (*portfolio.Status, error)
}

// Config holds server settings
type Config struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	ProductionMode bool     `json:"production_mode" yaml:"production_mode"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// Server is the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        Config

	repo      *database.Repository
	bot       BotController
	portfolio PortfolioSource
	authSvc   *auth.Service
	hub       *Hub
	logger    zerolog.Logger
}

// NewServer wires routes and the WebSocket hub. A nil authSvc disables
// authentication, a nil repo disables the history endpoints.
func NewServer(
	cfg Config,
	repo *database.Repository,
	bus *events.Bus,
	bot BotController,
	pf PortfolioSource,
	authSvc *auth.Service,
	logger zerolog.Logger,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:    router,
		cfg:       cfg,
		repo:      repo,
		bot:       bot,
		portfolio: pf,
		authSvc:   authSvc,
		hub:       NewHub(logger),
		logger:    logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()
	s.hub.BindBus(bus)
	go s.hub.Run()

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.authSvc != nil {
		pub := s.router.Group("/api/auth")
		pub.POST("/login", s.handleLogin)
		pub.POST("/refresh", s.handleRefresh)
	}
	s.router.GET("/api/auth/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"auth_enabled": s.authSvc != nil})
	})

	api := s.router.Group("/api")
	if s.authSvc != nil {
		api.Use(auth.RequireAuth(s.authSvc))
	}
	{
		api.GET("/bot/status", s.handleBotStatus)
		api.POST("/bot/start", s.handleBotStart)
		api.POST("/bot/stop", s.handleBotStop)
		api.POST("/bot/tick", s.handleTriggerTick)

		api.GET("/portfolio", s.handlePortfolio)
		api.GET("/trades", s.handleTrades)
		api.GET("/ticks", s.handleTicks)
		api.GET("/scans", s.handleScans)
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// AttachMetrics exposes a Prometheus handler at /metrics. Call before
// Start.
func (s *Server) AttachMetrics(h http.Handler) {
	s.router.GET("/metrics", gin.WrapH(h))
}

// Start blocks serving HTTP until Shutdown or a listen error
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: listen: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}
