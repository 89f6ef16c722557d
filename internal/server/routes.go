package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// Webhook route (EventSub deliveries from Twitch, authenticated by
	// signature instead of tokens)
	s.echo.POST("/webhooks/eventsub", s.handleEventSub)

	// Admin routes, only mounted when a token is configured
	if s.config.AdminToken != "" {
		admin := s.echo.Group("/admin", s.requireAdminToken)
		admin.POST("/watchlist/:login", s.handleWatch)
		admin.DELETE("/watchlist/:channelID", s.handleUnwatch)
		admin.POST("/recheck", s.handleRecheck)
	}
}
