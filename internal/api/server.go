// Package api serves the index over HTTP with echo. Builds stream their
// progress as server-sent events; everything else is plain JSON.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Aman-CERP/repoindex/internal/build"
	"github.com/Aman-CERP/repoindex/internal/config"
	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/lifecycle"
	"github.com/Aman-CERP/repoindex/internal/query"
	"github.com/Aman-CERP/repoindex/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// HeaderBuildID carries the id of the build a create request started.
const HeaderBuildID = "X-Build-Id"

// Builder starts index builds.
type Builder interface {
	Start(ctx context.Context, req build.Request) (*build.Build, error)
	Active() int
}

// Querier answers read-only queries.
type Querier interface {
	Documents(ctx context.Context, corpus string) ([]query.Document, error)
	Search(ctx context.Context, req query.SearchRequest) (*query.SearchResponse, error)
	SemanticSearch(ctx context.Context, req query.SearchRequest) (*query.SearchResponse, error)
	SearchFiles(ctx context.Context, q string, limit int) ([]string, error)
	Info(ctx context.Context) (*query.Info, error)
}

// Lifecycle reports on the index and owns its wholesale operations.
type Lifecycle interface {
	Status(ctx context.Context, id string) (*lifecycle.Status, error)
	Delete(ctx context.Context, id string) error
	Rebuild(ctx context.Context, id string) error
	BatchCreate(ctx context.Context, reqs []build.Request) (*lifecycle.BatchStatus, error)
	BatchStatus(ctx context.Context, id string) (*lifecycle.BatchStatus, error)
	Config() lifecycle.IndexingConfig
	ValidateConfig(req build.Request) lifecycle.Validation
}

// Deps are the services behind the routes. Metrics may be nil.
type Deps struct {
	Builds    Builder
	Queries   Querier
	Lifecycle Lifecycle
	Metrics   *telemetry.Metrics
}

// Server is the HTTP API.
type Server struct {
	echo   *echo.Echo
	cfg    config.ServerConfig
	deps   Deps
	logger *slog.Logger
}

// NewServer creates the server and registers its routes.
func NewServer(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Builds == nil || deps.Queries == nil || deps.Lifecycle == nil {
		return nil, fmt.Errorf("api: builds, queries and lifecycle are required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default().With(slog.String("component", "api")),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.logRequests)

	s.registerRoutes()
	return s, nil
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Info("http_request",
			slog.String("method", c.Request().Method),
			slog.String("uri", c.Request().RequestURI),
			slog.Int("status", c.Response().Status),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		)
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))

	g := s.echo.Group("/index")
	g.GET("/info", s.handleInfo)
	g.GET("/documents/:corpus", s.handleDocuments)
	g.POST("/create", s.handleCreate)
	g.POST("/search", s.handleSearch)
	g.GET("/search/files", s.handleSearchFiles)
	g.POST("/search/semantic", s.handleSemanticSearch)
	g.GET("/config", s.handleConfig)
	g.POST("/config/validate", s.handleValidateConfig)
	g.POST("/batch/create", s.handleBatchCreate)
	g.GET("/batch/:id/status", s.handleBatchStatus)
	g.GET("/:id/status", s.handleStatus)
	g.DELETE("/:id", s.handleDelete)
	g.POST("/:id/rebuild", s.handleRebuild)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	addr := s.cfg.Addr()
	s.logger.Info("server_starting", slog.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests and waits for open ones. Running
// builds see their request contexts cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server_stopping")
	return s.echo.Shutdown(ctx)
}

// respondError writes err as the JSON error envelope.
func respondError(c echo.Context, err error) error {
	status, body := rerrors.ToBody(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		slog.Error("request_failed",
			slog.String("uri", c.Request().RequestURI),
			slog.String("error", err.Error()))
	}
	return c.JSON(status, body)
}
