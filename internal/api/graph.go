package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"auraforce/backend/internal/auth"
	"auraforce/backend/internal/services"
	"auraforce/backend/pkg/models"
)

func graphEnvelope(analysis *services.GraphAnalysis) map[string]any {
	return map[string]any{
		"success":      true,
		"graph":        analysis.Graph,
		"validation":   analysis.Validation,
		"dependencies": analysis.Resolution,
		"report":       analysis.Report,
	}
}

func (s *Server) handleGraphAnalyze(c echo.Context) error {
	analysis, err := s.workflows.AnalyzeGraph(c.Request().Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, graphEnvelope(analysis))
}

// handleGraphAction runs one of the named graph operations. "analyze" is the
// default and matches the GET endpoint.
func (s *Server) handleGraphAction(c echo.Context) error {
	var body struct {
		Action string `json:"action"`
		Format string `json:"format"`
		Pretty bool   `json:"pretty"`
	}
	if err := c.Bind(&body); err != nil {
		return s.respondError(c, models.NewValidationError("invalid request body"))
	}

	ctx := c.Request().Context()
	id, userID := c.Param("id"), auth.UserID(c)

	switch body.Action {
	case "", "analyze":
		analysis, err := s.workflows.AnalyzeGraph(ctx, id, userID)
		if err != nil {
			return s.respondError(c, err)
		}
		return c.JSON(http.StatusOK, graphEnvelope(analysis))

	case "validate":
		analysis, err := s.workflows.AnalyzeGraph(ctx, id, userID)
		if err != nil {
			return s.respondError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"success":    true,
			"validation": analysis.Validation,
			"report":     analysis.Report,
		})

	case "export":
		out, err := s.workflows.ExportGraph(ctx, id, userID, body.Format, body.Pretty)
		if err != nil {
			return s.respondError(c, err)
		}
		format := body.Format
		if format == "" {
			format = "json"
		}
		return c.JSON(http.StatusOK, map[string]any{
			"success": true,
			"format":  format,
			"data":    out,
		})

	default:
		return s.respondError(c, models.NewValidationError("unknown graph action: "+body.Action))
	}
}
