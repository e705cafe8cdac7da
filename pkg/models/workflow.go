// Package models defines the domain models for the workflow service.
package models

import (
	"time"
)

// WorkflowStatus represents the lifecycle state of a deployed workflow.
type WorkflowStatus string

const (
	WorkflowStatusDeployed WorkflowStatus = "deployed"
	WorkflowStatusArchived WorkflowStatus = "archived"
)

// Visibility controls who may read a workflow.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// SyncStatus describes the agreement between the database record and the
// on-disk bundle.
type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusMissing  SyncStatus = "missing"
	SyncStatusConflict SyncStatus = "conflict"
	SyncStatusError    SyncStatus = "error"
)

// Valid reports whether s is one of the known sync statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusSynced, SyncStatusMissing, SyncStatusConflict, SyncStatusError:
		return true
	}
	return false
}

// WorkflowMetadata is the closed metadata schema carried by every workflow.
// It is serialized as JSONB; unknown keys are dropped on ingest.
type WorkflowMetadata struct {
	Tags         []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Resources    []string `json:"resources,omitempty" yaml:"resources,omitempty"`
	Agents       []string `json:"agents,omitempty" yaml:"agents,omitempty"`
	SubWorkflows []string `json:"sub_workflows,omitempty" yaml:"subWorkflows,omitempty"`
}

// WorkflowSpec is a deployed workflow package. The CCPath must point to an
// extant bundle while Status is "deployed". Content retains the raw uploaded
// document so a missing bundle can be rebuilt during recovery.
type WorkflowSpec struct {
	ID          string           `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	Description string           `json:"description,omitempty" db:"description"`
	Version     string           `json:"version,omitempty" db:"version"`
	Author      string           `json:"author,omitempty" db:"author"`
	CCPath      string           `json:"cc_path" db:"cc_path"`
	Status      WorkflowStatus   `json:"status" db:"status"`
	Visibility  Visibility       `json:"visibility" db:"visibility"`
	UserID      string           `json:"user_id" db:"user_id"`
	Metadata    WorkflowMetadata `json:"metadata" db:"metadata"`
	Content     string           `json:"-" db:"content"`
	ContentHash string           `json:"-" db:"content_hash"`
	SyncStatus  SyncStatus       `json:"sync_status" db:"sync_status"`
	DeployedAt  time.Time        `json:"deployed_at" db:"deployed_at"`
	LastSyncAt  *time.Time       `json:"last_sync_at,omitempty" db:"last_sync_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// ReadableBy reports whether the given user may read this workflow.
// Private workflows are readable only by their owner.
func (w *WorkflowSpec) ReadableBy(userID string) bool {
	return w.Visibility == VisibilityPublic || w.UserID == userID
}

// WorkflowStats holds per-workflow usage counters, 1:1 with WorkflowSpec.
// Counters are monotonically increasing except for FavoriteCount.
type WorkflowStats struct {
	WorkflowID    string     `json:"workflow_id" db:"workflow_id"`
	TotalLoads    int64      `json:"total_loads" db:"total_loads"`
	TodayLoads    int64      `json:"today_loads" db:"today_loads"`
	WeekLoads     int64      `json:"week_loads" db:"week_loads"`
	MonthLoads    int64      `json:"month_loads" db:"month_loads"`
	FavoriteCount int64      `json:"favorite_count" db:"favorite_count"`
	RatingSum     float64    `json:"rating_sum" db:"rating_sum"`
	RatingCount   int64      `json:"rating_count" db:"rating_count"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// WorkflowFavorite is the (user, workflow) join entity; existence means
// "favorited".
type WorkflowFavorite struct {
	UserID     string    `json:"user_id" db:"user_id"`
	WorkflowID string    `json:"workflow_id" db:"workflow_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// UserWorkspaceProject is a user's named project directory, optionally
// linked to the workflow it was instantiated from.
type UserWorkspaceProject struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	Name       string    `json:"name" db:"name"`
	Path       string    `json:"path" db:"path"`
	TemplateID *string   `json:"template_id,omitempty" db:"template_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// User is the minimal account record needed to attribute workflows and
// resolve sessions.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Session maps the auraforce-session cookie value to a user.
type Session struct {
	Token     string    `json:"-" db:"token"`
	UserID    string    `json:"user_id" db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SearchOptions contains parameters for listing/searching workflows.
type SearchOptions struct {
	Query     string
	Tag       string
	UserID    string // requesting user, for visibility filtering
	OwnerOnly bool
	Limit     int
	Offset    int
}

// SearchResponse contains a page of search results.
type SearchResponse struct {
	Results  []*WorkflowSpec `json:"results"`
	Total    int             `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
	CacheHit bool            `json:"cache_hit"`
}

// UploadResult is the per-file outcome of an upload request.
type UploadResult struct {
	FileName   string `json:"fileName"`
	Success    bool   `json:"success"`
	WorkflowID string `json:"workflowId,omitempty"`
	CCPath     string `json:"ccPath,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SyncReport is the per-workflow outcome of a batch sync pass.
type SyncReport struct {
	WorkflowID string     `json:"workflow_id"`
	Name       string     `json:"name"`
	Status     SyncStatus `json:"status"`
	Details    string     `json:"details,omitempty"`
	Recovered  bool       `json:"recovered,omitempty"`
}

// SyncDiagnostics summarizes the sync state of a user's workflows.
type SyncDiagnostics struct {
	Total     int           `json:"total"`
	Synced    int           `json:"synced"`
	Missing   int           `json:"missing"`
	Conflicts int           `json:"conflicts"`
	Errors    int           `json:"errors"`
	Reports   []*SyncReport `json:"reports"`
	CheckedAt time.Time     `json:"checked_at"`
}
