// Package repository provides persistence for workflow records.
package repository

import (
	"context"
	"errors"
	"time"

	"auraforce/backend/pkg/models"
)

// Sentinel errors returned by every Store implementation. Callers branch on
// these with errors.Is; error message text is never inspected.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// Store is the persistence interface for the workflow service.
type Store interface {
	// CreateWorkflow inserts a new workflow record. Returns
	// ErrAlreadyExists when the name is taken.
	CreateWorkflow(ctx context.Context, w *models.WorkflowSpec) error
	// GetWorkflow retrieves a workflow by id.
	GetWorkflow(ctx context.Context, id string) (*models.WorkflowSpec, error)
	// GetWorkflowByName retrieves a workflow by its unique name.
	GetWorkflowByName(ctx context.Context, name string) (*models.WorkflowSpec, error)
	// ListWorkflows returns a page of workflows visible to opts.UserID,
	// plus the total match count.
	ListWorkflows(ctx context.Context, opts models.SearchOptions) ([]*models.WorkflowSpec, int, error)
	// DeleteWorkflow removes the workflow row together with its stats and
	// favorites.
	DeleteWorkflow(ctx context.Context, id string) error
	// ListAllWorkflows returns every workflow record; used by sync scans.
	ListAllWorkflows(ctx context.Context) ([]*models.WorkflowSpec, error)
	// UpdateSyncStatus records the outcome of a sync pass.
	UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus, at time.Time) error
	// UpdateContent replaces the retained document and its hash, used when a
	// conflict is resolved in favor of the on-disk bundle.
	UpdateContent(ctx context.Context, id, content, hash string, at time.Time) error

	// GetStats retrieves the stats row, ErrNotFound when absent.
	GetStats(ctx context.Context, workflowID string) (*models.WorkflowStats, error)
	// IncrementLoadStats bumps all load counters and last_used_at,
	// creating the row when absent. Safe under concurrent first loads.
	IncrementLoadStats(ctx context.Context, workflowID string, at time.Time) error
	// AddRating folds one rating into the aggregates.
	AddRating(ctx context.Context, workflowID string, rating float64) error

	// SetFavorite creates the favorite join row and increments
	// favorite_count in one transaction. ErrAlreadyExists when present.
	SetFavorite(ctx context.Context, userID, workflowID string) error
	// UnsetFavorite deletes the join row and decrements favorite_count in
	// one transaction. ErrNotFound when absent.
	UnsetFavorite(ctx context.Context, userID, workflowID string) error
	// IsFavorited reports whether the join row exists.
	IsFavorited(ctx context.Context, userID, workflowID string) (bool, error)

	// CreateWorkspaceProject records a user's project directory.
	CreateWorkspaceProject(ctx context.Context, p *models.UserWorkspaceProject) error
	// GetWorkspaceProject retrieves a project by user and name.
	GetWorkspaceProject(ctx context.Context, userID, name string) (*models.UserWorkspaceProject, error)

	// CreateUser inserts a user record.
	CreateUser(ctx context.Context, u *models.User) error
	// GetUserByEmail retrieves a user by email, ErrNotFound when absent.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// CreateSession inserts or refreshes a session record.
	CreateSession(ctx context.Context, s *models.Session) error
	// GetSession resolves a session cookie token, ErrNotFound when absent.
	GetSession(ctx context.Context, token string) (*models.Session, error)
}
