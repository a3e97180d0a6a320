// Package server exposes the discovery and training workflow over HTTP.
//
// Handlers are factories taking their collaborators, so tests can wire
// them against fakes without standing up the full server.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"datahound/internal/jobs"
	"datahound/internal/llm"
	"datahound/internal/model"
	"datahound/internal/workflow"
)

// Server is the HTTP front of the pipeline.
type Server struct {
	echo   *echo.Echo
	logger *slog.Logger
}

// New builds the server with all routes registered.
func New(flow *workflow.Orchestrator, registry *jobs.Registry, judge llm.Judge, cfg *model.Config, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, logger: logger}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogMethod:  true,
		LogURI:     true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))

	e.GET("/healthz", HealthHandler(flow, cfg.Training.ModelsDir))

	api := e.Group("/api")
	api.POST("/discovery/start", StartDiscoveryHandler(flow, registry))
	api.GET("/discovery/:projectId/status", DiscoveryStatusHandler(flow, cfg.Discovery.RelevanceThreshold))
	api.GET("/projects", ListProjectsHandler(flow))
	api.POST("/training/start", StartTrainingHandler(flow, registry))
	api.GET("/training/:jobId", GetTrainingHandler(registry))
	api.GET("/training", ListTrainingHandler(registry))
	api.GET("/models", ListModelsHandler(cfg.Training.ModelsDir))
	api.GET("/models/:name", GetModelHandler(cfg.Training.ModelsDir))
	api.POST("/chat", ChatHandler(judge))
	api.POST("/webhooks/scrape", ScrapeWebhookHandler(logger))

	return s
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleError renders every error as a JSON body with an error key.
func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := "internal server error"

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		if m, ok := httpErr.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"error", err,
		)
	}
	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"error": msg})
}
