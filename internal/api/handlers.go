package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"upbit-trading-bot/internal/auth"
)

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "disabled"
	if s.repo != nil {
		dbStatus = "healthy"
		if err := s.repo.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unhealthy"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": dbStatus})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	pair, err := s.authSvc.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}

	pair, err := s.authSvc.Refresh(req.RefreshToken)
	if err != nil {
		if err == auth.ErrInvalidToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) handleBotStatus(c *gin.Context) {
	if s.bot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bot not attached"})
		return
	}
	c.JSON(http.StatusOK, s.bot.Status())
}

func (s *Server) handleBotStart(c *gin.Context) {
	if s.bot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bot not attached"})
		return
	}
	if err := s.bot.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (s *Server) handleBotStop(c *gin.Context) {
	if s.bot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bot not attached"})
		return
	}
	if err := s.bot.Stop(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": false})
}

func (s *Server) handleTriggerTick(c *gin.Context) {
	if s.bot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bot not attached"})
		return
	}
	if err := s.bot.TriggerTick(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"triggered": true})
}

func (s *Server) handlePortfolio(c *gin.Context) {
	if s.portfolio == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "portfolio not attached"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	status, err := s.portfolio.Snapshot(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("portfolio snapshot failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "portfolio snapshot failed"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database disabled"})
		return
	}

	limit := queryInt(c, "limit", 50, 500)
	offset := queryInt(c, "offset", 0, 1<<30)

	trades, err := s.repo.TradeHistory(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) handleTicks(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database disabled"})
		return
	}

	limit := queryInt(c, "limit", 100, 1000)
	ticks, err := s.repo.RecentTicks(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticks": ticks, "count": len(ticks)})
}

func (s *Server) handleScans(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database disabled"})
		return
	}

	limit := queryInt(c, "limit", 100, 1000)
	scans, err := s.repo.RecentScans(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans, "count": len(scans)})
}

func queryInt(c *gin.Context, name string, def, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
