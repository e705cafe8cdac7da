package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"auraforce/backend/internal/auth"
	"auraforce/backend/pkg/models"
)

func (s *Server) handleSyncDiagnostics(c echo.Context) error {
	diag, err := s.sync.Diagnostics(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, diag)
}

// handleSyncAction dispatches the named filesystem-sync operation.
// Per-workflow actions enforce visibility through the workflow service
// before touching sync state.
func (s *Server) handleSyncAction(c echo.Context) error {
	var body struct {
		Action     string `json:"action"`
		WorkflowID string `json:"workflowId"`
		Source     string `json:"source"`
		Status     string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return s.respondError(c, models.NewValidationError("invalid request body"))
	}

	ctx := c.Request().Context()
	userID := auth.UserID(c)

	requireWorkflow := func() error {
		if body.WorkflowID == "" {
			return models.NewValidationError("workflowId is required for action " + body.Action)
		}
		_, err := s.workflows.GetWorkflow(ctx, body.WorkflowID, userID)
		return err
	}

	switch body.Action {
	case "trigger":
		diag, err := s.sync.TriggerSync(ctx, userID)
		if err != nil {
			return s.respondError(c, err)
		}
		return c.JSON(http.StatusOK, diag)

	case "detect-conflicts":
		reports, err := s.sync.DetectConflicts(ctx, userID)
		if err != nil {
			return s.respondError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"conflicts": reports})

	case "verify":
		if err := requireWorkflow(); err != nil {
			return s.respondError(c, err)
		}
		report, err := s.sync.Verify(ctx, body.WorkflowID)
		if err != nil {
			return s.respondError(c, err)
		}
		return c.JSON(http.StatusOK, report)

	case "recover":
		if err := requireWorkflow(); err != nil {
			return s.respondError(c, err)
		}
		report, err := s.sync.Recover(ctx, body.WorkflowID)
		if err != nil {
			return s.respondError(c, err)
		}
		return c.JSON(http.StatusOK, report)

	case "resolve-conflict":
		if err := requireWorkflow(); err != nil {
			return s.respondError(c, err)
		}
		report, err := s.sync.ResolveConflict(ctx, body.WorkflowID, body.Source)
		if err != nil {
			return s.respondError(c, models.NewValidationError(err.Error()))
		}
		return c.JSON(http.StatusOK, report)

	case "update-status":
		if err := requireWorkflow(); err != nil {
			return s.respondError(c, err)
		}
		ok := s.sync.UpdateSyncStatus(ctx, body.WorkflowID, models.SyncStatus(body.Status))
		return c.JSON(http.StatusOK, map[string]bool{"success": ok})

	default:
		return s.respondError(c, models.NewValidationError("unknown sync action: "+body.Action))
	}
}
