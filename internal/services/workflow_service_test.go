package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auraforce/backend/internal/deploy"
	"auraforce/backend/internal/logging"
	"auraforce/backend/internal/metrics"
	"auraforce/backend/internal/repository"
	"auraforce/backend/pkg/models"
)

const validDocument = `---
name: Release Pipeline
description: Ship it
version: 1.0.0
author: ops
tags: [release, ci]
---
Run @agent/reviewer before shipping.
`

func newService(t *testing.T) (*WorkflowService, *repository.MemoryWorkflowStore) {
	t.Helper()
	store := repository.NewMemoryWorkflowStore()
	d := deploy.NewDeployer(t.TempDir(), logging.NewNop())
	svc := NewWorkflowService(store, d, metrics.NewNop(), logging.NewNop(),
		t.TempDir(), 128, time.Minute)
	return svc, store
}

func mustUpload(t *testing.T, svc *WorkflowService, userID, content string) models.UploadResult {
	t.Helper()
	results := svc.UploadWorkflows(context.Background(), userID, []UploadFile{
		{Name: "workflow.md", Content: content},
	})
	require.Len(t, results, 1)
	require.True(t, results[0].Success, results[0].Error)
	return results[0]
}

func TestUploadThenLoadRoundTrip(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	res := mustUpload(t, svc, "u1", validDocument)
	assert.NotEmpty(t, res.WorkflowID)
	assert.FileExists(t, res.CCPath)

	w, files, err := svc.LoadWorkflow(ctx, res.WorkflowID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Release Pipeline", w.Name)
	assert.Equal(t, validDocument, files[deploy.BundleEntrypoint])
}

func TestUploadMissingNameFailsThatFileOnly(t *testing.T) {
	svc, _ := newService(t)

	results := svc.UploadWorkflows(context.Background(), "u1", []UploadFile{
		{Name: "bad.md", Content: "no front matter here"},
		{Name: "good.md", Content: validDocument},
	})
	require.Len(t, results, 2)

	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "Missing required workflow name")
	assert.Empty(t, results[0].WorkflowID)

	assert.True(t, results[1].Success)
}

func TestUploadDuplicateName(t *testing.T) {
	svc, _ := newService(t)
	mustUpload(t, svc, "u1", validDocument)

	results := svc.UploadWorkflows(context.Background(), "u2", []UploadFile{
		{Name: "again.md", Content: validDocument},
	})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "already exists")
}

func TestDoubleLoadIncrementsStats(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	res := mustUpload(t, svc, "u1", validDocument)

	_, _, err := svc.LoadWorkflow(ctx, res.WorkflowID, "u1")
	require.NoError(t, err)
	first, err := svc.GetStats(ctx, res.WorkflowID, "u1")
	require.NoError(t, err)
	require.NotNil(t, first.LastUsedAt)

	time.Sleep(5 * time.Millisecond)
	_, _, err = svc.LoadWorkflow(ctx, res.WorkflowID, "u1")
	require.NoError(t, err)

	second, err := svc.GetStats(ctx, res.WorkflowID, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.TotalLoads)
	assert.True(t, second.LastUsedAt.After(*first.LastUsedAt))
}

func TestLoadDeletedBundleIs404(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	res := mustUpload(t, svc, "u1", validDocument)
	require.NoError(t, os.Remove(res.CCPath))

	_, _, err := svc.LoadWorkflow(ctx, res.WorkflowID, "u1")
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeWorkflowFileNotFound, appErr.Code)
	assert.Equal(t, 404, appErr.Status)

	// the failed load flags the record as missing
	w, err := store.GetWorkflow(ctx, res.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusMissing, w.SyncStatus)
}

func TestPrivateWorkflowForbiddenToOthers(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	res := mustUpload(t, svc, "owner", validDocument)

	w, err := store.GetWorkflow(ctx, res.WorkflowID)
	require.NoError(t, err)
	require.NoError(t, store.DeleteWorkflow(ctx, w.ID))
	w.Visibility = models.VisibilityPrivate
	require.NoError(t, store.CreateWorkflow(ctx, w))

	_, _, err = svc.LoadWorkflow(ctx, w.ID, "stranger")
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeForbidden, appErr.Code)

	// the owner still loads it fine
	_, _, err = svc.LoadWorkflow(ctx, w.ID, "owner")
	require.NoError(t, err)
}

func TestFavoriteRoundTrip(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	res := mustUpload(t, svc, "u1", validDocument)

	fav, err := svc.Favorite(ctx, "u1", res.WorkflowID)
	require.NoError(t, err)
	assert.True(t, fav)

	// favoriting twice is a no-op
	fav, err = svc.Favorite(ctx, "u1", res.WorkflowID)
	require.NoError(t, err)
	assert.True(t, fav)

	st, err := svc.GetStats(ctx, res.WorkflowID, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.FavoriteCount)

	fav, err = svc.Unfavorite(ctx, "u1", res.WorkflowID)
	require.NoError(t, err)
	assert.False(t, fav)

	st, err = svc.GetStats(ctx, res.WorkflowID, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.FavoriteCount)

	_, err = svc.Unfavorite(ctx, "u1", res.WorkflowID)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeFavoriteNotFound, appErr.Code)
}

func TestRateBounds(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	res := mustUpload(t, svc, "u1", validDocument)

	require.NoError(t, svc.Rate(ctx, "u1", res.WorkflowID, 4))
	require.NoError(t, svc.Rate(ctx, "u1", res.WorkflowID, 5))

	err := svc.Rate(ctx, "u1", res.WorkflowID, 0)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeValidation, appErr.Code)

	st, err := svc.GetStats(ctx, res.WorkflowID, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.RatingCount)
	assert.Equal(t, float64(9), st.RatingSum)
}

func TestDeleteWorkflowOwnerOnly(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	res := mustUpload(t, svc, "u1", validDocument)

	err := svc.DeleteWorkflow(ctx, res.WorkflowID, "u2")
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeForbidden, appErr.Code)

	require.NoError(t, svc.DeleteWorkflow(ctx, res.WorkflowID, "u1"))
	assert.NoFileExists(t, res.CCPath)

	err = svc.DeleteWorkflow(ctx, res.WorkflowID, "u1")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeWorkflowNotFound, appErr.Code)
}

func TestSearchCacheHitAndInvalidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	mustUpload(t, svc, "u1", validDocument)

	opts := models.SearchOptions{UserID: "u1", Query: "release"}
	first, err := svc.Search(ctx, opts)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, 1, first.Total)

	second, err := svc.Search(ctx, opts)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Total, second.Total)

	// an upload purges cached pages
	mustUpload(t, svc, "u1", `---
name: Release Hotfix
---
body
`)
	third, err := svc.Search(ctx, opts)
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
	assert.Equal(t, 2, third.Total)
}

func TestSearchByTag(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	mustUpload(t, svc, "u1", validDocument)

	resp, err := svc.Search(ctx, models.SearchOptions{UserID: "u1", Tag: "ci"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	resp, err = svc.Search(ctx, models.SearchOptions{UserID: "u1", Tag: "nope"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestAnalyzeGraph(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	res := mustUpload(t, svc, "u1", validDocument)

	analysis, err := svc.AnalyzeGraph(ctx, res.WorkflowID, "u1")
	require.NoError(t, err)
	require.NotNil(t, analysis.Graph)

	// root workflow node plus the reviewer agent
	assert.Equal(t, 2, analysis.Report.NodeCount)
	assert.Equal(t, 1, analysis.Report.EdgeCount)
	// the reviewer agent file does not exist in the bundle
	assert.Equal(t, models.ValidationStatusInvalid, analysis.Validation.Status)
	require.Len(t, analysis.Resolution, 1)
	assert.False(t, analysis.Resolution[0].Resolved)

	out, err := svc.ExportGraph(ctx, res.WorkflowID, "u1", "json", true)
	require.NoError(t, err)
	assert.Contains(t, out, `"nodes"`)

	_, err = svc.ExportGraph(ctx, res.WorkflowID, "u1", "toml", false)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeValidation, appErr.Code)
}

func TestLoadTemplate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	res := mustUpload(t, svc, "u1", validDocument)

	project, extracted, err := svc.LoadTemplate(ctx, "u1", res.WorkflowID, "My App")
	require.NoError(t, err)
	assert.Equal(t, "My App", project.Name)
	require.NotNil(t, project.TemplateID)
	assert.Equal(t, res.WorkflowID, *project.TemplateID)
	assert.Contains(t, extracted, deploy.BundleEntrypoint)
	assert.FileExists(t, project.Path+"/"+deploy.BundleEntrypoint)

	got, err := svc.GetProject(ctx, "u1", "My App")
	require.NoError(t, err)
	assert.Equal(t, project.ID, got.ID)

	// same project name again conflicts
	_, _, err = svc.LoadTemplate(ctx, "u1", res.WorkflowID, "My App")
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeDuplicateProject, appErr.Code)

	_, err = svc.GetProject(ctx, "u1", "Unknown")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeProjectNotFound, appErr.Code)
}
