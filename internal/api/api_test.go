package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auraforce/backend/internal/auth"
	"auraforce/backend/internal/config"
	"auraforce/backend/internal/deploy"
	"auraforce/backend/internal/fssync"
	"auraforce/backend/internal/logging"
	"auraforce/backend/internal/metrics"
	"auraforce/backend/internal/repository"
	"auraforce/backend/internal/services"
	"auraforce/backend/pkg/models"
)

const testDocument = `---
name: Review Flow
description: Code review pipeline
version: 0.1.0
author: qa
tags: [review]
---
Start with @agent/reviewer.
`

type testApp struct {
	e     *echo.Echo
	store *repository.MemoryWorkflowStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store := repository.NewMemoryWorkflowStore()
	logger := logging.NewNop()
	deployer := deploy.NewDeployer(t.TempDir(), logger)
	workflows := services.NewWorkflowService(store, deployer, metrics.NewNop(), logger,
		t.TempDir(), 64, time.Minute)
	syncSvc := fssync.NewService(store, deployer, logger)

	require.NoError(t, store.CreateSession(context.Background(), &models.Session{
		Token:     "tok-u1",
		UserID:    "u1",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	e := echo.New()
	cfg := &config.Config{Environment: "test"}
	NewServer(cfg, workflows, syncSvc, store, logger).RegisterRoutes(e)
	return &testApp{e: e, store: store}
}

func (a *testApp) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "tok-u1"})
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return a.do(t, method, path, data, echo.MIMEApplicationJSON)
}

func (a *testApp) upload(t *testing.T, content string) models.UploadResult {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "workflow.md")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := a.do(t, http.MethodPost, "/api/workflows/upload", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Results []models.UploadResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	return resp.Results[0]
}

func TestHealthNoAuth(t *testing.T) {
	a := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresSession(t *testing.T) {
	a := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/api/workflows", nil)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), models.CodeUnauthorized)
}

func TestUploadAndLoad(t *testing.T) {
	a := newTestApp(t)
	res := a.upload(t, testDocument)
	require.True(t, res.Success, res.Error)

	rec := a.do(t, http.MethodPost, "/api/workflows/"+res.WorkflowID+"/load", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Workflow    *models.WorkflowSpec `json:"workflow"`
			ConfigFiles map[string]string    `json:"configFiles"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Review Flow", resp.Data.Workflow.Name)
	assert.Equal(t, testDocument, resp.Data.ConfigFiles[deploy.BundleEntrypoint])

	rec = a.do(t, http.MethodGet, "/api/workflows/"+res.WorkflowID+"/stats", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.WorkflowStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalLoads)
}

func TestUploadInvalidFileReportsPerFile(t *testing.T) {
	a := newTestApp(t)
	res := a.upload(t, "no front matter")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Missing required workflow name")
}

func TestLoadUnknownWorkflowEnvelope(t *testing.T) {
	a := newTestApp(t)
	rec := a.do(t, http.MethodPost, "/api/workflows/nope/load", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, models.CodeWorkflowNotFound, env.Error)
	assert.Equal(t, "Workflow not found", env.Message)
}

func TestLoadDeletedBundleEnvelope(t *testing.T) {
	a := newTestApp(t)
	res := a.upload(t, testDocument)
	require.NoError(t, os.Remove(res.CCPath))

	rec := a.do(t, http.MethodPost, "/api/workflows/"+res.WorkflowID+"/load", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), models.CodeWorkflowFileNotFound)
}

func TestFavoriteEndpoints(t *testing.T) {
	a := newTestApp(t)
	res := a.upload(t, testDocument)
	path := "/api/workflows/" + res.WorkflowID + "/favorite"

	rec := a.do(t, http.MethodPost, path, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"isFavorited":true}`, rec.Body.String())

	rec = a.do(t, http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"isFavorited":true}`, rec.Body.String())

	rec = a.do(t, http.MethodDelete, path, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"isFavorited":false}`, rec.Body.String())

	rec = a.do(t, http.MethodDelete, path, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), models.CodeFavoriteNotFound)
}

func TestSearchEndpoint(t *testing.T) {
	a := newTestApp(t)
	a.upload(t, testDocument)

	rec := a.do(t, http.MethodGet, "/api/workflows/search?q=review&limit=10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.False(t, resp.CacheHit)

	rec = a.do(t, http.MethodGet, "/api/workflows/search?q=review&limit=10", nil, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.CacheHit)

	rec = a.do(t, http.MethodGet, "/api/workflows/search?limit=banana", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateEndpoint(t *testing.T) {
	a := newTestApp(t)
	res := a.upload(t, testDocument)
	path := "/api/workflows/" + res.WorkflowID + "/rate"

	rec := a.doJSON(t, http.MethodPost, path, map[string]float64{"rating": 5})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.doJSON(t, http.MethodPost, path, map[string]float64{"rating": 11})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), models.CodeValidation)
}

func TestGraphEndpoints(t *testing.T) {
	a := newTestApp(t)
	res := a.upload(t, testDocument)
	path := "/api/workflows/graph/" + res.WorkflowID

	rec := a.do(t, http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var analysis struct {
		Success      bool                          `json:"success"`
		Graph        *models.WorkflowGraph         `json:"graph"`
		Dependencies []models.DependencyResolution `json:"dependencies"`
		Report       *models.GraphReport           `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
	assert.True(t, analysis.Success)
	assert.Equal(t, 2, analysis.Report.NodeCount)
	assert.Len(t, analysis.Dependencies, 1)

	rec = a.doJSON(t, http.MethodPost, path, map[string]any{"action": "export", "format": "yaml"})
	require.Equal(t, http.StatusOK, rec.Code)
	var exported struct {
		Format string `json:"format"`
		Data   string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	assert.Equal(t, "yaml", exported.Format)
	assert.Contains(t, exported.Data, "nodes:")

	rec = a.doJSON(t, http.MethodPost, path, map[string]any{"action": "shuffle"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncEndpoints(t *testing.T) {
	a := newTestApp(t)
	res := a.upload(t, testDocument)

	rec := a.do(t, http.MethodGet, "/api/workflows/sync", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var diag models.SyncDiagnostics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diag))
	assert.Equal(t, 1, diag.Total)
	assert.Equal(t, 1, diag.Synced)

	require.NoError(t, os.Remove(res.CCPath))

	rec = a.doJSON(t, http.MethodPost, "/api/workflows/sync", map[string]string{
		"action": "verify", "workflowId": res.WorkflowID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var report models.SyncReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, models.SyncStatusMissing, report.Status)

	rec = a.doJSON(t, http.MethodPost, "/api/workflows/sync", map[string]string{
		"action": "recover", "workflowId": res.WorkflowID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, models.SyncStatusSynced, report.Status)
	assert.True(t, report.Recovered)
	assert.FileExists(t, res.CCPath)

	rec = a.doJSON(t, http.MethodPost, "/api/workflows/sync", map[string]string{"action": "warp"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.doJSON(t, http.MethodPost, "/api/workflows/sync", map[string]string{"action": "verify"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadTemplateEndpoint(t *testing.T) {
	a := newTestApp(t)
	res := a.upload(t, testDocument)

	rec := a.doJSON(t, http.MethodPost, "/api/workflows/load-template", map[string]string{
		"workflowId": res.WorkflowID, "projectName": "Demo Project",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success            bool     `json:"success"`
		ProjectName        string   `json:"projectName"`
		WorkspacePath      string   `json:"workspacePath"`
		ExtractedTemplates []string `json:"extractedTemplates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Demo Project", resp.ProjectName)
	assert.Contains(t, resp.ExtractedTemplates, deploy.BundleEntrypoint)

	// duplicate project name
	rec = a.doJSON(t, http.MethodPost, "/api/workflows/load-template", map[string]string{
		"workflowId": res.WorkflowID, "projectName": "Demo Project",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), models.CodeDuplicateProject)
}

func TestDeleteWorkflowEndpoint(t *testing.T) {
	a := newTestApp(t)
	res := a.upload(t, testDocument)

	rec := a.do(t, http.MethodDelete, "/api/workflows/"+res.WorkflowID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NoFileExists(t, res.CCPath)

	rec = a.do(t, http.MethodGet, "/api/workflows/"+res.WorkflowID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
