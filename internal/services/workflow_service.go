// Package services implements the workflow lifecycle behind the HTTP and MCP
// surfaces: upload, load, search, favorites, ratings, templates and graph
// analysis.
package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"auraforce/backend/internal/deploy"
	"auraforce/backend/internal/graph"
	"auraforce/backend/internal/logging"
	"auraforce/backend/internal/metrics"
	"auraforce/backend/internal/repository"
	"auraforce/backend/internal/spec"
	"auraforce/backend/pkg/models"
)

// UploadFile is one file from a multipart upload request.
type UploadFile struct {
	Name    string
	Content string
}

// GraphAnalysis is the full output of one graph pipeline run.
type GraphAnalysis struct {
	Graph      *models.WorkflowGraph         `json:"graph"`
	Validation *models.ValidationResult      `json:"validation"`
	Resolution []models.DependencyResolution `json:"resolution"`
	Report     *models.GraphReport           `json:"report"`
}

// WorkflowService orchestrates the store, the deployer and the graph
// pipeline. All methods return *models.AppError for client-visible failures.
type WorkflowService struct {
	store         repository.Store
	deployer      *deploy.Deployer
	resolver      *graph.Resolver
	metrics       *metrics.Metrics
	logger        *logging.Logger
	workspaceRoot string
	searchCache   *expirable.LRU[string, *models.SearchResponse]
}

// NewWorkflowService wires the service. cacheTTL bounds how stale a search
// page may be served; writes additionally purge the cache.
func NewWorkflowService(store repository.Store, deployer *deploy.Deployer, m *metrics.Metrics,
	logger *logging.Logger, workspaceRoot string, cacheSize int, cacheTTL time.Duration) *WorkflowService {
	return &WorkflowService{
		store:         store,
		deployer:      deployer,
		resolver:      graph.NewResolver(store),
		metrics:       m,
		logger:        logger,
		workspaceRoot: workspaceRoot,
		searchCache:   expirable.NewLRU[string, *models.SearchResponse](cacheSize, nil, cacheTTL),
	}
}

// UploadWorkflows validates, deploys and registers a batch of uploaded
// workflow definitions. One bad file never fails the batch; every file gets
// its own result entry, in input order.
func (s *WorkflowService) UploadWorkflows(ctx context.Context, userID string, files []UploadFile) []models.UploadResult {
	results := make([]models.UploadResult, 0, len(files))
	for _, f := range files {
		results = append(results, s.uploadOne(ctx, userID, f))
	}
	return results
}

func (s *WorkflowService) uploadOne(ctx context.Context, userID string, f UploadFile) models.UploadResult {
	res := spec.Validate(f.Content)
	if !res.Valid {
		return models.UploadResult{FileName: f.Name, Error: strings.Join(res.Errors, "; ")}
	}
	name := res.Metadata.Name
	if deploy.Slug(name) == "" {
		return models.UploadResult{FileName: f.Name, Error: fmt.Sprintf("workflow name %q normalizes to an empty path", name)}
	}

	now := time.Now().UTC()
	w := &models.WorkflowSpec{
		ID:          uuid.New().String(),
		Name:        name,
		Description: res.Metadata.Description,
		Version:     res.Metadata.Version,
		Author:      res.Metadata.Author,
		CCPath:      s.deployer.CanonicalPath(name),
		Status:      models.WorkflowStatusDeployed,
		Visibility:  models.VisibilityPublic,
		UserID:      userID,
		Metadata:    res.Metadata.Model(),
		Content:     f.Content,
		ContentHash: deploy.HashContent(f.Content),
		SyncStatus:  models.SyncStatusSynced,
		DeployedAt:  now,
		UpdatedAt:   now,
	}

	// Insert before writing the bundle: the unique name constraint is the
	// arbiter of slug collisions, so a duplicate never overwrites an
	// existing bundle on disk.
	if err := s.store.CreateWorkflow(ctx, w); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return models.UploadResult{FileName: f.Name, Error: fmt.Sprintf("workflow %q already exists", name)}
		}
		s.logger.Error("workflow insert failed", "name", name, "error", err)
		return models.UploadResult{FileName: f.Name, Error: "failed to register workflow"}
	}

	dep := s.deployer.Deploy(ctx, f.Content, name, w.Metadata)
	if !dep.Success {
		if derr := s.store.DeleteWorkflow(ctx, w.ID); derr != nil {
			s.logger.Warn("rollback of failed deploy left a record behind", "workflow_id", w.ID, "error", derr)
		}
		return models.UploadResult{FileName: f.Name, Error: dep.Err}
	}

	metrics.Add(ctx, s.metrics.WorkflowUploads, 1)
	s.searchCache.Purge()
	if len(res.Warnings) > 0 {
		s.logger.Debug("workflow uploaded with warnings", "name", name, "warnings", res.Warnings)
	}
	return models.UploadResult{FileName: f.Name, Success: true, WorkflowID: w.ID, CCPath: dep.CCPath}
}

// getReadable fetches a workflow and enforces visibility for userID.
func (s *WorkflowService) getReadable(ctx context.Context, id, userID string) (*models.WorkflowSpec, error) {
	w, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError(models.CodeWorkflowNotFound, "Workflow not found")
		}
		return nil, models.NewInternalError(err)
	}
	if !w.ReadableBy(userID) {
		return nil, models.NewForbiddenError("You do not have access to this workflow")
	}
	return w, nil
}

// GetWorkflow returns a workflow the user may read.
func (s *WorkflowService) GetWorkflow(ctx context.Context, id, userID string) (*models.WorkflowSpec, error) {
	return s.getReadable(ctx, id, userID)
}

// LoadWorkflow returns the workflow record plus every file in its bundle and
// records the load in the usage stats. A bundle missing from disk is a
// distinct not-found from a missing database row.
func (s *WorkflowService) LoadWorkflow(ctx context.Context, id, userID string) (*models.WorkflowSpec, map[string]string, error) {
	w, err := s.getReadable(ctx, id, userID)
	if err != nil {
		return nil, nil, err
	}

	files, err := s.deployer.ReadConfigFiles(w.CCPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if serr := s.store.UpdateSyncStatus(ctx, id, models.SyncStatusMissing, time.Now().UTC()); serr != nil {
				s.logger.Warn("could not flag missing bundle", "workflow_id", id, "error", serr)
			}
			return nil, nil, models.NewNotFoundError(models.CodeWorkflowFileNotFound, "Workflow files not found on disk")
		}
		return nil, nil, models.NewInternalError(err)
	}

	if err := s.store.IncrementLoadStats(ctx, id, time.Now().UTC()); err != nil {
		// the load itself succeeded; dropping one counter tick is acceptable
		s.logger.Warn("load stats update failed", "workflow_id", id, "error", err)
	}
	metrics.Add(ctx, s.metrics.WorkflowLoads, 1)
	return w, files, nil
}

// GetStats returns usage counters for a workflow. A workflow that was never
// loaded or favorited has a zero-valued row.
func (s *WorkflowService) GetStats(ctx context.Context, workflowID, userID string) (*models.WorkflowStats, error) {
	if _, err := s.getReadable(ctx, workflowID, userID); err != nil {
		return nil, err
	}
	st, err := s.store.GetStats(ctx, workflowID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &models.WorkflowStats{WorkflowID: workflowID}, nil
		}
		return nil, models.NewInternalError(err)
	}
	return st, nil
}

// Favorite marks a workflow as a favorite of the user. Favoriting twice is a
// no-op, not an error.
func (s *WorkflowService) Favorite(ctx context.Context, userID, workflowID string) (bool, error) {
	if _, err := s.getReadable(ctx, workflowID, userID); err != nil {
		return false, err
	}
	if err := s.store.SetFavorite(ctx, userID, workflowID); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return true, nil
		}
		return false, models.NewInternalError(err)
	}
	metrics.Add(ctx, s.metrics.FavoriteToggles, 1)
	return true, nil
}

// Unfavorite removes the user's favorite mark.
func (s *WorkflowService) Unfavorite(ctx context.Context, userID, workflowID string) (bool, error) {
	if _, err := s.getReadable(ctx, workflowID, userID); err != nil {
		return false, err
	}
	if err := s.store.UnsetFavorite(ctx, userID, workflowID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, models.NewNotFoundError(models.CodeFavoriteNotFound, "Favorite not found")
		}
		return false, models.NewInternalError(err)
	}
	metrics.Add(ctx, s.metrics.FavoriteToggles, 1)
	return false, nil
}

// IsFavorited reports whether the user has favorited the workflow.
func (s *WorkflowService) IsFavorited(ctx context.Context, userID, workflowID string) (bool, error) {
	if _, err := s.getReadable(ctx, workflowID, userID); err != nil {
		return false, err
	}
	fav, err := s.store.IsFavorited(ctx, userID, workflowID)
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return fav, nil
}

// Rate folds one rating in the range 1..5 into the workflow's aggregates.
func (s *WorkflowService) Rate(ctx context.Context, userID, workflowID string, rating float64) error {
	if rating < 1 || rating > 5 {
		return models.NewValidationError("rating must be between 1 and 5")
	}
	if _, err := s.getReadable(ctx, workflowID, userID); err != nil {
		return err
	}
	if err := s.store.AddRating(ctx, workflowID, rating); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// DeleteWorkflow removes the database record and, best-effort, the on-disk
// bundle. Only the owner may delete.
func (s *WorkflowService) DeleteWorkflow(ctx context.Context, id, userID string) error {
	w, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.NewNotFoundError(models.CodeWorkflowNotFound, "Workflow not found")
		}
		return models.NewInternalError(err)
	}
	if w.UserID != userID {
		return models.NewForbiddenError("Only the owner can delete a workflow")
	}
	if err := s.store.DeleteWorkflow(ctx, id); err != nil {
		return models.NewInternalError(err)
	}
	if err := s.deployer.Remove(ctx, w.Name); err != nil {
		s.logger.Warn("bundle removal failed after delete", "workflow_id", id, "error", err)
	}
	s.searchCache.Purge()
	return nil
}

// Search lists workflows visible to the requesting user. Pages are served
// from a TTL cache; uploads and deletes purge it.
func (s *WorkflowService) Search(ctx context.Context, opts models.SearchOptions) (*models.SearchResponse, error) {
	if opts.Limit == 0 {
		opts.Limit = 50
	}
	key := searchCacheKey(opts)
	if cached, ok := s.searchCache.Get(key); ok {
		hit := *cached
		hit.CacheHit = true
		return &hit, nil
	}

	results, total, err := s.store.ListWorkflows(ctx, opts)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	resp := &models.SearchResponse{
		Results: results,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}
	s.searchCache.Add(key, resp)
	return resp, nil
}

func searchCacheKey(opts models.SearchOptions) string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%t\x00%d\x00%d",
		opts.UserID, opts.Query, opts.Tag, opts.OwnerOnly, opts.Limit, opts.Offset)
}

// AnalyzeGraph runs the full graph pipeline for a workflow: parse the bundle
// entrypoint, build the graph, validate paths and cycles, resolve
// dependencies against disk and the store, and summarize.
func (s *WorkflowService) AnalyzeGraph(ctx context.Context, workflowID, userID string) (*GraphAnalysis, error) {
	w, err := s.getReadable(ctx, workflowID, userID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(w.CCPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.NewNotFoundError(models.CodeWorkflowFileNotFound, "Workflow files not found on disk")
		}
		return nil, models.NewInternalError(err)
	}

	parsed, err := graph.Parse(string(data), graph.FormatMarkdown)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	bundleDir := filepath.Dir(w.CCPath)
	g := graph.BuildGraph(parsed, w.ID)
	validation := graph.ValidateGraph(g, bundleDir)
	resolution := s.resolver.Resolve(ctx, parsed, bundleDir)
	graph.MergeResolution(g, resolution)

	return &GraphAnalysis{
		Graph:      g,
		Validation: validation,
		Resolution: resolution,
		Report:     graph.Report(g, validation),
	}, nil
}

// ExportGraph serializes the analyzed graph in the requested format.
func (s *WorkflowService) ExportGraph(ctx context.Context, workflowID, userID, format string, pretty bool) (string, error) {
	analysis, err := s.AnalyzeGraph(ctx, workflowID, userID)
	if err != nil {
		return "", err
	}
	out, err := graph.Export(analysis.Graph, format, pretty)
	if err != nil {
		return "", models.NewValidationError(err.Error())
	}
	return out, nil
}

// LoadTemplate instantiates a workflow bundle as a new workspace project for
// the user and records the project. Returns the project and the extracted
// file list.
func (s *WorkflowService) LoadTemplate(ctx context.Context, userID, workflowID, projectName string) (*models.UserWorkspaceProject, []string, error) {
	w, err := s.getReadable(ctx, workflowID, userID)
	if err != nil {
		return nil, nil, err
	}
	slug := deploy.Slug(projectName)
	if slug == "" {
		return nil, nil, models.NewValidationError("A project name is required")
	}
	if _, err := s.store.GetWorkspaceProject(ctx, userID, projectName); err == nil {
		return nil, nil, models.NewConflictError(models.CodeDuplicateProject,
			fmt.Sprintf("Project %q already exists", projectName))
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, models.NewInternalError(err)
	}

	dest := filepath.Join(s.workspaceRoot, userID, slug)
	extracted, err := s.deployer.ExtractBundle(ctx, w.Name, dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, models.NewNotFoundError(models.CodeWorkflowFileNotFound, "Workflow files not found on disk")
		}
		return nil, nil, models.NewInternalError(err)
	}

	templateID := w.ID
	project := &models.UserWorkspaceProject{
		ID:         uuid.New().String(),
		UserID:     userID,
		Name:       projectName,
		Path:       dest,
		TemplateID: &templateID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateWorkspaceProject(ctx, project); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, nil, models.NewConflictError(models.CodeDuplicateProject,
				fmt.Sprintf("Project %q already exists", projectName))
		}
		return nil, nil, models.NewInternalError(err)
	}
	s.logger.Info("template instantiated", "workflow_id", workflowID, "project", projectName, "files", len(extracted))
	return project, extracted, nil
}

// GetProject returns one of the user's workspace projects by name.
func (s *WorkflowService) GetProject(ctx context.Context, userID, name string) (*models.UserWorkspaceProject, error) {
	p, err := s.store.GetWorkspaceProject(ctx, userID, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewNotFoundError(models.CodeProjectNotFound, "Project not found")
		}
		return nil, models.NewInternalError(err)
	}
	return p, nil
}
