// Package httpserver exposes the task REST API, the live task stream and
// the operational endpoints over echo.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/taskman/taskman/internal/adapter/metrics"
	"github.com/taskman/taskman/internal/app"
	"github.com/taskman/taskman/internal/domain"
	"github.com/taskman/taskman/internal/platform/config"
)

type taskService interface {
	List(ctx context.Context, owner domain.UserID, q app.ListQuery) ([]domain.TaskView, error)
	Get(ctx context.Context, owner domain.UserID, id int64) (domain.TaskView, error)
	Create(ctx context.Context, owner domain.UserID, in app.TaskInput) (domain.TaskView, error)
	Update(ctx context.Context, owner domain.UserID, id int64, in app.TaskInput) (domain.TaskView, error)
	Patch(ctx context.Context, owner domain.UserID, id int64, p app.TaskPatch) (domain.TaskView, error)
	Delete(ctx context.Context, owner domain.UserID, id int64) error
}

type tokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (domain.UserID, error)
}

// Deps are the collaborators the server routes to. HTTPMetrics and
// MetricsHandler may be nil.
type Deps struct {
	Tasks            taskService
	Verifier         tokenVerifier
	WebSocketHandler http.Handler
	MetricsHandler   http.Handler
	HTTPMetrics      *metrics.HTTPMetrics
	HealthChecks     []HealthCheck
	Clock            clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	tasks            taskService
	verifier         tokenVerifier
	websocketHandler http.Handler
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:             e,
		config:           cfg,
		tasks:            deps.Tasks,
		verifier:         deps.Verifier,
		websocketHandler: deps.WebSocketHandler,
		metricsHandler:   deps.MetricsHandler,
		httpMetrics:      deps.HTTPMetrics,
		healthChecks:     deps.HealthChecks,
		clock:            clock,
		startTime:        clock.Now(),
	}

	srv.registerRoutes()
	return srv
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
