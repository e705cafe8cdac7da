package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"auraforce/backend/internal/auth"
	"auraforce/backend/internal/services"
	"auraforce/backend/pkg/models"
)

// maxUploadBytes caps a single uploaded workflow definition.
const maxUploadBytes = 5 << 20

func (s *Server) handleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return s.respondError(c, models.NewValidationError("multipart form required"))
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return s.respondError(c, models.NewValidationError("no files in upload"))
	}

	files := make([]services.UploadFile, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return s.respondError(c, models.NewInternalError(err))
		}
		data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
		f.Close()
		if err != nil {
			return s.respondError(c, models.NewInternalError(err))
		}
		if len(data) > maxUploadBytes {
			return s.respondError(c, models.NewValidationError("file too large: "+h.Filename))
		}
		files = append(files, services.UploadFile{Name: h.Filename, Content: string(data)})
	}

	results := s.workflows.UploadWorkflows(c.Request().Context(), auth.UserID(c), files)
	deployed := 0
	for _, r := range results {
		if r.Success {
			deployed++
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": deployed == len(results),
		"message": fmt.Sprintf("%d of %d workflows deployed", deployed, len(results)),
		"results": results,
	})
}

func (s *Server) handleSearch(c echo.Context) error {
	opts := models.SearchOptions{
		Query:     c.QueryParam("q"),
		Tag:       c.QueryParam("tag"),
		UserID:    auth.UserID(c),
		OwnerOnly: c.QueryParam("owner") == "true",
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return s.respondError(c, models.NewValidationError("limit must be a non-negative integer"))
		}
		opts.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return s.respondError(c, models.NewValidationError("offset must be a non-negative integer"))
		}
		opts.Offset = n
	}

	resp, err := s.workflows.Search(c.Request().Context(), opts)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetWorkflow(c echo.Context) error {
	w, err := s.workflows.GetWorkflow(c.Request().Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, w)
}

func (s *Server) handleDeleteWorkflow(c echo.Context) error {
	if err := s.workflows.DeleteWorkflow(c.Request().Context(), c.Param("id"), auth.UserID(c)); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleLoadWorkflow(c echo.Context) error {
	w, files, err := s.workflows.LoadWorkflow(c.Request().Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"workflow":    w,
			"configFiles": files,
		},
	})
}

func (s *Server) handleStats(c echo.Context) error {
	st, err := s.workflows.GetStats(c.Request().Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleRate(c echo.Context) error {
	var body struct {
		Rating float64 `json:"rating"`
	}
	if err := c.Bind(&body); err != nil {
		return s.respondError(c, models.NewValidationError("invalid request body"))
	}
	if err := s.workflows.Rate(c.Request().Context(), auth.UserID(c), c.Param("id"), body.Rating); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleFavorite(c echo.Context) error {
	fav, err := s.workflows.Favorite(c.Request().Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	return favoriteResponse(c, fav)
}

func (s *Server) handleUnfavorite(c echo.Context) error {
	fav, err := s.workflows.Unfavorite(c.Request().Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	return favoriteResponse(c, fav)
}

func (s *Server) handleIsFavorited(c echo.Context) error {
	fav, err := s.workflows.IsFavorited(c.Request().Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	return favoriteResponse(c, fav)
}

func favoriteResponse(c echo.Context, isFavorited bool) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"isFavorited": isFavorited,
	})
}

func (s *Server) handleLoadTemplate(c echo.Context) error {
	var body struct {
		WorkflowID  string `json:"workflowId"`
		ProjectName string `json:"projectName"`
	}
	if err := c.Bind(&body); err != nil {
		return s.respondError(c, models.NewValidationError("invalid request body"))
	}
	if body.WorkflowID == "" {
		return s.respondError(c, models.NewValidationError("workflowId is required"))
	}

	project, extracted, err := s.workflows.LoadTemplate(c.Request().Context(), auth.UserID(c), body.WorkflowID, body.ProjectName)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":            true,
		"message":            "Template loaded into workspace",
		"projectName":        project.Name,
		"workspacePath":      project.Path,
		"extractedTemplates": extracted,
	})
}
