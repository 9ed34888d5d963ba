package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Serph91P/streamvault/internal/config"
	"github.com/Serph91P/streamvault/internal/domain"
	apperrors "github.com/Serph91P/streamvault/internal/errors"
	"github.com/Serph91P/streamvault/internal/jobs"
)

// streamerService is the slice of the eventsub service the API calls
// synchronously.
type streamerService interface {
	UntrackStreamer(ctx context.Context, streamerID uuid.UUID) error
}

// jobQueue enqueues background work and reports its outcome.
type jobQueue interface {
	Enqueue(ctx context.Context, kind jobs.Kind, username string) (uuid.UUID, error)
	GetResult(ctx context.Context, id uuid.UUID) (*jobs.Result, error)
}

// postgresHealthChecker is a minimal interface for PostgreSQL health checks
type postgresHealthChecker interface {
	Ping(ctx context.Context) error
}

// redisHealthChecker is a minimal interface for Redis health checks
type redisHealthChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	service   streamerService
	queue     jobQueue
	streamers domain.StreamerRepository
	postgres  postgresHealthChecker
	redis     redisHealthChecker
	startTime time.Time
}

func NewServer(cfg *config.Config, service streamerService, queue jobQueue, streamers domain.StreamerRepository, postgres postgresHealthChecker, redis redisHealthChecker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		service:   service,
		queue:     queue,
		streamers: streamers,
		postgres:  postgres,
		redis:     redis,
		startTime: time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
