// Package api exposes the workflow service over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"auraforce/backend/internal/auth"
	"auraforce/backend/internal/config"
	"auraforce/backend/internal/fssync"
	"auraforce/backend/internal/logging"
	"auraforce/backend/internal/repository"
	"auraforce/backend/internal/services"
	"auraforce/backend/pkg/models"
)

// Server holds the handler dependencies.
type Server struct {
	cfg       *config.Config
	workflows *services.WorkflowService
	sync      *fssync.Service
	store     repository.Store
	logger    *logging.Logger
}

// NewServer creates the HTTP server facade.
func NewServer(cfg *config.Config, workflows *services.WorkflowService, sync *fssync.Service,
	store repository.Store, logger *logging.Logger) *Server {
	return &Server{cfg: cfg, workflows: workflows, sync: sync, store: store, logger: logger}
}

// RegisterRoutes mounts all endpoints on e. Everything under /api requires a
// session; /health does not.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.handleHealth)

	g := e.Group("/api", auth.Middleware(s.store))
	g.POST("/workflows/upload", s.handleUpload)
	g.GET("/workflows", s.handleSearch)
	g.GET("/workflows/search", s.handleSearch)
	g.POST("/workflows/load-template", s.handleLoadTemplate)
	g.GET("/workflows/sync", s.handleSyncDiagnostics)
	g.POST("/workflows/sync", s.handleSyncAction)
	g.GET("/workflows/graph/:id", s.handleGraphAnalyze)
	g.POST("/workflows/graph/:id", s.handleGraphAction)
	g.GET("/workflows/:id", s.handleGetWorkflow)
	g.DELETE("/workflows/:id", s.handleDeleteWorkflow)
	g.POST("/workflows/:id/load", s.handleLoadWorkflow)
	g.GET("/workflows/:id/stats", s.handleStats)
	g.POST("/workflows/:id/rate", s.handleRate)
	g.GET("/workflows/:id/favorite", s.handleIsFavorited)
	g.POST("/workflows/:id/favorite", s.handleFavorite)
	g.DELETE("/workflows/:id/favorite", s.handleUnfavorite)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// respondError maps typed application errors onto the {error, message}
// envelope. Untyped errors become opaque 500s outside development.
func (s *Server) respondError(c echo.Context, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		msg := appErr.Message
		if appErr.Status >= http.StatusInternalServerError {
			s.logger.Error("request failed", "path", c.Path(), "error", err)
			if s.cfg.IsDev() {
				msg = err.Error()
			}
		}
		return c.JSON(appErr.Status, errorEnvelope{Error: appErr.Code, Message: msg})
	}
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorEnvelope{
			Error: models.CodeWorkflowNotFound, Message: "Workflow not found",
		})
	}

	s.logger.Error("request failed", "path", c.Path(), "error", err)
	msg := "Internal server error"
	if s.cfg.IsDev() {
		msg = err.Error()
	}
	return c.JSON(http.StatusInternalServerError, errorEnvelope{Error: models.CodeInternal, Message: msg})
}
