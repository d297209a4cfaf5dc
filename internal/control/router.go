package control

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/koshedutech/equities-trader/internal/database"
	"github.com/koshedutech/equities-trader/internal/orchestrator"
)

// TradingControl is the subset of the orchestrator's typed methods this
// adapter exposes over HTTP, mirroring the teacher's BotAPI interface
// boundary between the transport and the engine it fronts.
type TradingControl interface {
	SetTradingEnabled(enabled bool)
	TradingEnabled() bool
	ForceTick(ctx context.Context) bool
	Leaderboard() []orchestrator.LeaderboardEntry
}

// Server is the thin gin-based HTTP/WebSocket adapter over the control
// surface. It holds no state beyond what it needs to route: the
// engine it fronts, the repository for read-only history queries, the
// WebSocket hub, and the operator auth gate.
type Server struct {
	router  *gin.Engine
	engine  TradingControl
	repo    *database.Repository
	hub     *Hub
	auth    *TokenManager
	started time.Time
}

// Config holds the adapter's own settings (allowed CORS origins and gin
// production mode);
// trading parameters belong to the engine, not the transport.
type Config struct {
	AllowedOrigins []string
	ProductionMode bool
}

// NewServer builds the gin router and registers every control-surface
// route. auth may be nil, in which case the control routes are
// unauthenticated (only appropriate for local/dev use).
func NewServer(cfg Config, engine TradingControl, repo *database.Repository, hub *Hub, auth *TokenManager) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsCfg))

	s := &Server{
		router:  router,
		engine:  engine,
		repo:    repo,
		hub:     hub,
		auth:    auth,
		started: time.Now(),
	}
	s.routes()
	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)

	if s.auth != nil {
		s.router.POST("/api/auth/login", s.handleLogin)
	}

	api := s.router.Group("/api/control")
	if s.auth != nil {
		api.Use(s.auth.Middleware())
	}
	api.GET("/status", s.handleStatus)
	api.POST("/trading/enable", s.handleSetEnabled(true))
	api.POST("/trading/disable", s.handleSetEnabled(false))
	api.POST("/tick", s.handleForceTick)
	api.GET("/agents", s.handleLeaderboard)
	api.GET("/agents/:id/trades", s.handleAgentTrades)
	api.GET("/agents/:id/autocritiques", s.handleAutocritiques)
	api.GET("/trades/recent", s.handleRecentTrades)
	api.GET("/performance/:id", s.handlePerformance)

	s.router.GET("/ws", s.hub.ServeWS)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime_sec": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	token, err := s.auth.Login(req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_token": token})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"trading_enabled": s.engine.TradingEnabled(),
		"agent_count":     len(s.engine.Leaderboard()),
	})
}

func (s *Server) handleSetEnabled(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.engine.SetTradingEnabled(enabled)
		c.JSON(http.StatusOK, gin.H{"trading_enabled": enabled})
	}
}

func (s *Server) handleForceTick(c *gin.Context) {
	started := s.engine.ForceTick(c.Request.Context())
	if !started {
		c.JSON(http.StatusConflict, gin.H{"started": false, "reason": "a tick is already in flight"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"started": true})
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": s.engine.Leaderboard()})
}

func (s *Server) handleAgentTrades(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence not configured"})
		return
	}
	limit := parseLimit(c.Query("limit"), 50)
	trades, err := s.repo.GetTradesByAgent(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleRecentTrades(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence not configured"})
		return
	}
	limit := parseLimit(c.Query("limit"), 50)
	trades, err := s.repo.GetRecentTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleAutocritiques(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence not configured"})
		return
	}
	limit := parseLimit(c.Query("limit"), 10)
	critiques, err := s.repo.ListAutocritiques(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"autocritiques": critiques})
}

func (s *Server) handlePerformance(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence not configured"})
		return
	}
	limit := parseLimit(c.Query("limit"), 100)
	history, err := s.repo.GetPerformanceHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"performance": history})
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
