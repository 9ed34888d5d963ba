package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// Streamer management
	s.echo.POST("/api/streamers", s.handleAddStreamer)
	s.echo.GET("/api/streamers", s.handleListStreamers)
	s.echo.DELETE("/api/streamers/:id", s.handleDeleteStreamer)
	s.echo.POST("/api/resubscribe", s.handleResubscribe)

	// Background job polling
	s.echo.GET("/api/jobs/:id", s.handleJobStatus)
}
