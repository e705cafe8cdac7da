// Package fssync reconciles the database's view of deployed workflows with
// what physically exists on disk.
package fssync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"auraforce/backend/internal/deploy"
	"auraforce/backend/internal/logging"
	"auraforce/backend/internal/repository"
	"auraforce/backend/pkg/models"
)

// Conflict resolution sources accepted by ResolveConflict.
const (
	SourceDisk     = "disk"
	SourceDatabase = "database"
)

// conflictScanWorkers bounds the fan-out of DetectConflicts.
const conflictScanWorkers = 4

// Service detects and repairs drift between workflow records and their
// on-disk bundles. Batch operations record per-workflow failures and never
// abort the whole pass.
type Service struct {
	store    repository.Store
	deployer *deploy.Deployer
	logger   *logging.Logger
}

// NewService creates a sync service.
func NewService(store repository.Store, deployer *deploy.Deployer, logger *logging.Logger) *Service {
	return &Service{store: store, deployer: deployer, logger: logger}
}

// Verify compares the on-disk bundle with the stored record and persists the
// resulting sync status. Re-running verify without filesystem changes leaves
// the status unchanged.
func (s *Service) Verify(ctx context.Context, workflowID string) (*models.SyncReport, error) {
	w, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	report := s.verifyWorkflow(ctx, w)
	if err := s.store.UpdateSyncStatus(ctx, w.ID, report.Status, time.Now().UTC()); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Service) verifyWorkflow(_ context.Context, w *models.WorkflowSpec) *models.SyncReport {
	report := &models.SyncReport{WorkflowID: w.ID, Name: w.Name}

	data, err := os.ReadFile(w.CCPath)
	switch {
	case os.IsNotExist(err):
		report.Status = models.SyncStatusMissing
		report.Details = fmt.Sprintf("bundle missing at %s", w.CCPath)
	case err != nil:
		report.Status = models.SyncStatusError
		report.Details = err.Error()
	case deploy.HashContent(string(data)) != w.ContentHash:
		report.Status = models.SyncStatusConflict
		report.Details = "on-disk content differs from the stored document"
	default:
		report.Status = models.SyncStatusSynced
	}
	return report
}

// Recover rebuilds a missing bundle from the record's retained content.
// Conflicts are left for manual resolution. Idempotent: recovering a synced
// workflow is a no-op reporting synced.
func (s *Service) Recover(ctx context.Context, workflowID string) (*models.SyncReport, error) {
	w, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	report := s.verifyWorkflow(ctx, w)
	if report.Status != models.SyncStatusMissing {
		if err := s.store.UpdateSyncStatus(ctx, w.ID, report.Status, time.Now().UTC()); err != nil {
			return nil, err
		}
		return report, nil
	}

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(50*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		res := s.deployer.Deploy(ctx, w.Content, w.Name, w.Metadata)
		if !res.Success {
			return retry.RetryableError(errors.New(res.Err))
		}
		return nil
	})
	if err != nil {
		report.Status = models.SyncStatusError
		report.Details = fmt.Sprintf("recovery failed: %v", err)
		s.logger.Error("bundle recovery failed", "workflow_id", w.ID, "error", err)
	} else {
		report.Status = models.SyncStatusSynced
		report.Details = "bundle rewritten from stored content"
		report.Recovered = true
		s.logger.Info("bundle recovered", "workflow_id", w.ID, "path", w.CCPath)
	}

	if err := s.store.UpdateSyncStatus(ctx, w.ID, report.Status, time.Now().UTC()); err != nil {
		return nil, err
	}
	return report, nil
}

// Diagnostics verifies every workflow owned by userID and aggregates the
// outcomes. A failing workflow contributes an error report instead of
// aborting the batch.
func (s *Service) Diagnostics(ctx context.Context, userID string) (*models.SyncDiagnostics, error) {
	return s.sweep(ctx, userID, false)
}

// TriggerSync verifies every workflow owned by userID and recovers the ones
// whose bundles are missing.
func (s *Service) TriggerSync(ctx context.Context, userID string) (*models.SyncDiagnostics, error) {
	return s.sweep(ctx, userID, true)
}

func (s *Service) sweep(ctx context.Context, userID string, repair bool) (*models.SyncDiagnostics, error) {
	workflows, _, err := s.store.ListWorkflows(ctx, models.SearchOptions{
		UserID: userID, OwnerOnly: true, Limit: -1,
	})
	if err != nil {
		return nil, err
	}

	diag := &models.SyncDiagnostics{CheckedAt: time.Now().UTC()}
	for _, w := range workflows {
		var report *models.SyncReport
		var opErr error
		if repair {
			report, opErr = s.Recover(ctx, w.ID)
		} else {
			report, opErr = s.Verify(ctx, w.ID)
		}
		if opErr != nil {
			report = &models.SyncReport{
				WorkflowID: w.ID, Name: w.Name,
				Status: models.SyncStatusError, Details: opErr.Error(),
			}
		}
		diag.Reports = append(diag.Reports, report)
		diag.Total++
		switch report.Status {
		case models.SyncStatusSynced:
			diag.Synced++
		case models.SyncStatusMissing:
			diag.Missing++
		case models.SyncStatusConflict:
			diag.Conflicts++
		default:
			diag.Errors++
		}
	}
	return diag, nil
}

// DetectConflicts hashes every bundle owned by userID against its record,
// fanning out with bounded concurrency. Only drifted workflows are returned.
func (s *Service) DetectConflicts(ctx context.Context, userID string) ([]*models.SyncReport, error) {
	workflows, _, err := s.store.ListWorkflows(ctx, models.SearchOptions{
		UserID: userID, OwnerOnly: true, Limit: -1,
	})
	if err != nil {
		return nil, err
	}

	reports := make([]*models.SyncReport, len(workflows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conflictScanWorkers)
	for i, w := range workflows {
		g.Go(func() error {
			reports[i] = s.verifyWorkflow(gctx, w)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var conflicts []*models.SyncReport
	for _, r := range reports {
		if r.Status == models.SyncStatusConflict || r.Status == models.SyncStatusMissing {
			conflicts = append(conflicts, r)
		}
	}
	return conflicts, nil
}

// ResolveConflict settles a drifted workflow from the chosen source: "disk"
// adopts the on-disk content into the record, "database" rewrites the bundle
// from the retained document.
func (s *Service) ResolveConflict(ctx context.Context, workflowID, source string) (*models.SyncReport, error) {
	w, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	report := &models.SyncReport{WorkflowID: w.ID, Name: w.Name}

	switch source {
	case SourceDisk:
		data, err := os.ReadFile(w.CCPath)
		if err != nil {
			return nil, fmt.Errorf("read bundle: %w", err)
		}
		content := string(data)
		if err := s.store.UpdateContent(ctx, w.ID, content, deploy.HashContent(content), now); err != nil {
			return nil, err
		}
		report.Details = "record updated from on-disk bundle"
	case SourceDatabase:
		res := s.deployer.Deploy(ctx, w.Content, w.Name, w.Metadata)
		if !res.Success {
			return nil, fmt.Errorf("rewrite bundle: %s", res.Err)
		}
		report.Details = "bundle rewritten from stored document"
	default:
		return nil, fmt.Errorf("unknown conflict source %q", source)
	}

	report.Status = models.SyncStatusSynced
	if err := s.store.UpdateSyncStatus(ctx, w.ID, models.SyncStatusSynced, now); err != nil {
		return nil, err
	}
	return report, nil
}

// UpdateSyncStatus records a manually chosen status. Returns false when the
// status is unknown or the workflow does not exist.
func (s *Service) UpdateSyncStatus(ctx context.Context, workflowID string, status models.SyncStatus) bool {
	if !status.Valid() {
		return false
	}
	if err := s.store.UpdateSyncStatus(ctx, workflowID, status, time.Now().UTC()); err != nil {
		s.logger.Warn("sync status update failed", "workflow_id", workflowID, "error", err)
		return false
	}
	return true
}
