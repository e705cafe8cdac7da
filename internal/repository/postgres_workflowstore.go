package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"auraforce/backend/pkg/models"
)

//go:embed schema.sql
var schemaSQL string

// PostgresWorkflowStore is the PostgreSQL implementation of Store.
type PostgresWorkflowStore struct {
	db *pgxpool.Pool
}

// NewPostgresWorkflowStore creates a new PostgresWorkflowStore.
func NewPostgresWorkflowStore(db *pgxpool.Pool) *PostgresWorkflowStore {
	return &PostgresWorkflowStore{db: db}
}

// Migrate applies the embedded schema. All statements are idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schemaSQL)
	return err
}

const workflowColumns = `id, name, description, version, author, cc_path, status, visibility,
	user_id, metadata, content, content_hash, sync_status, deployed_at, last_sync_at, updated_at`

func scanWorkflow(row pgx.Row) (*models.WorkflowSpec, error) {
	var w models.WorkflowSpec
	var meta []byte
	err := row.Scan(&w.ID, &w.Name, &w.Description, &w.Version, &w.Author, &w.CCPath,
		&w.Status, &w.Visibility, &w.UserID, &meta, &w.Content, &w.ContentHash,
		&w.SyncStatus, &w.DeployedAt, &w.LastSyncAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &w.Metadata); err != nil {
			return nil, fmt.Errorf("decode workflow metadata: %w", err)
		}
	}
	return &w, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateWorkflow inserts a new workflow record.
func (s *PostgresWorkflowStore) CreateWorkflow(ctx context.Context, w *models.WorkflowSpec) error {
	meta, err := json.Marshal(w.Metadata)
	if err != nil {
		return fmt.Errorf("encode workflow metadata: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO workflows (`+workflowColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		w.ID, w.Name, w.Description, w.Version, w.Author, w.CCPath, w.Status, w.Visibility,
		w.UserID, meta, w.Content, w.ContentHash, w.SyncStatus, w.DeployedAt, w.LastSyncAt, w.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// GetWorkflow retrieves a workflow by id.
func (s *PostgresWorkflowStore) GetWorkflow(ctx context.Context, id string) (*models.WorkflowSpec, error) {
	return scanWorkflow(s.db.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id))
}

// GetWorkflowByName retrieves a workflow by its unique name.
func (s *PostgresWorkflowStore) GetWorkflowByName(ctx context.Context, name string) (*models.WorkflowSpec, error) {
	return scanWorkflow(s.db.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE name = $1`, name))
}

// ListWorkflows returns a page of workflows visible to opts.UserID.
func (s *PostgresWorkflowStore) ListWorkflows(ctx context.Context, opts models.SearchOptions) ([]*models.WorkflowSpec, int, error) {
	where := `WHERE (visibility = 'public' OR user_id = $1)`
	args := []any{opts.UserID}
	if opts.OwnerOnly {
		where = `WHERE user_id = $1`
	}
	if opts.Query != "" {
		args = append(args, "%"+opts.Query+"%")
		where += fmt.Sprintf(` AND (name ILIKE $%d OR description ILIKE $%d)`, len(args), len(args))
	}
	if opts.Tag != "" {
		tag, err := json.Marshal([]string{opts.Tag})
		if err != nil {
			return nil, 0, err
		}
		args = append(args, tag)
		where += fmt.Sprintf(` AND metadata->'tags' @> $%d`, len(args))
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM workflows `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	// Limit 0 falls back to the default page size; negative means no cap
	// (sync sweeps list everything a user owns).
	limit := opts.Limit
	if limit == 0 {
		limit = 50
	} else if limit < 0 {
		limit = 1 << 30
	}
	args = append(args, limit, opts.Offset)
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT `+workflowColumns+` FROM workflows %s
		ORDER BY deployed_at DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var workflows []*models.WorkflowSpec
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, 0, err
		}
		workflows = append(workflows, w)
	}
	return workflows, total, rows.Err()
}

// ListAllWorkflows returns every workflow record.
func (s *PostgresWorkflowStore) ListAllWorkflows(ctx context.Context) ([]*models.WorkflowSpec, error) {
	rows, err := s.db.Query(ctx, `SELECT `+workflowColumns+` FROM workflows ORDER BY deployed_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var workflows []*models.WorkflowSpec
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	return workflows, rows.Err()
}

// UpdateContent replaces the retained document and its hash.
func (s *PostgresWorkflowStore) UpdateContent(ctx context.Context, id, content, hash string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflows SET content = $1, content_hash = $2, updated_at = $3 WHERE id = $4`,
		content, hash, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWorkflow removes the workflow row; stats and favorites cascade.
func (s *PostgresWorkflowStore) DeleteWorkflow(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSyncStatus records the outcome of a sync pass.
func (s *PostgresWorkflowStore) UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflows SET sync_status = $1, last_sync_at = $2, updated_at = $2 WHERE id = $3`,
		status, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetStats retrieves the stats row.
func (s *PostgresWorkflowStore) GetStats(ctx context.Context, workflowID string) (*models.WorkflowStats, error) {
	var st models.WorkflowStats
	err := s.db.QueryRow(ctx, `SELECT workflow_id, total_loads, today_loads, week_loads, month_loads,
		favorite_count, rating_sum, rating_count, last_used_at
		FROM workflow_stats WHERE workflow_id = $1`, workflowID).
		Scan(&st.WorkflowID, &st.TotalLoads, &st.TodayLoads, &st.WeekLoads, &st.MonthLoads,
			&st.FavoriteCount, &st.RatingSum, &st.RatingCount, &st.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// IncrementLoadStats bumps all load counters, creating the row when absent.
// The upsert makes concurrent first loads converge on one row counting both.
func (s *PostgresWorkflowStore) IncrementLoadStats(ctx context.Context, workflowID string, at time.Time) error {
	_, err := s.db.Exec(ctx, `INSERT INTO workflow_stats
		(workflow_id, total_loads, today_loads, week_loads, month_loads, last_used_at)
		VALUES ($1, 1, 1, 1, 1, $2)
		ON CONFLICT (workflow_id) DO UPDATE SET
			total_loads = workflow_stats.total_loads + 1,
			today_loads = workflow_stats.today_loads + 1,
			week_loads = workflow_stats.week_loads + 1,
			month_loads = workflow_stats.month_loads + 1,
			last_used_at = EXCLUDED.last_used_at`,
		workflowID, at)
	return err
}

// AddRating folds one rating into the aggregates.
func (s *PostgresWorkflowStore) AddRating(ctx context.Context, workflowID string, rating float64) error {
	_, err := s.db.Exec(ctx, `INSERT INTO workflow_stats (workflow_id, rating_sum, rating_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (workflow_id) DO UPDATE SET
			rating_sum = workflow_stats.rating_sum + EXCLUDED.rating_sum,
			rating_count = workflow_stats.rating_count + 1`,
		workflowID, rating)
	return err
}

// SetFavorite creates the join row and increments favorite_count in one
// transaction.
func (s *PostgresWorkflowStore) SetFavorite(ctx context.Context, userID, workflowID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO workflow_favorites (user_id, workflow_id) VALUES ($1, $2)`,
		userID, workflowID)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `INSERT INTO workflow_stats (workflow_id, favorite_count) VALUES ($1, 1)
		ON CONFLICT (workflow_id) DO UPDATE SET
			favorite_count = workflow_stats.favorite_count + 1`, workflowID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UnsetFavorite deletes the join row and decrements favorite_count in one
// transaction.
func (s *PostgresWorkflowStore) UnsetFavorite(ctx context.Context, userID, workflowID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM workflow_favorites WHERE user_id = $1 AND workflow_id = $2`,
		userID, workflowID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx, `UPDATE workflow_stats
		SET favorite_count = GREATEST(favorite_count - 1, 0)
		WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// IsFavorited reports whether the join row exists.
func (s *PostgresWorkflowStore) IsFavorited(ctx context.Context, userID, workflowID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM workflow_favorites WHERE user_id = $1 AND workflow_id = $2)`,
		userID, workflowID).Scan(&exists)
	return exists, err
}

// CreateWorkspaceProject records a user's project directory.
func (s *PostgresWorkflowStore) CreateWorkspaceProject(ctx context.Context, p *models.UserWorkspaceProject) error {
	_, err := s.db.Exec(ctx, `INSERT INTO workspace_projects (id, user_id, name, path, template_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.UserID, p.Name, p.Path, p.TemplateID, p.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// GetWorkspaceProject retrieves a project by user and name.
func (s *PostgresWorkflowStore) GetWorkspaceProject(ctx context.Context, userID, name string) (*models.UserWorkspaceProject, error) {
	var p models.UserWorkspaceProject
	err := s.db.QueryRow(ctx, `SELECT id, user_id, name, path, template_id, created_at
		FROM workspace_projects WHERE user_id = $1 AND name = $2`, userID, name).
		Scan(&p.ID, &p.UserID, &p.Name, &p.Path, &p.TemplateID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateUser inserts a user record.
func (s *PostgresWorkflowStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.Exec(ctx, `INSERT INTO users (id, email, name, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, u.Name, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresWorkflowStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, `SELECT id, email, name, created_at FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateSession inserts or refreshes a session record.
func (s *PostgresWorkflowStore) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.db.Exec(ctx, `INSERT INTO sessions (token, user_id, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at`,
		sess.Token, sess.UserID, sess.ExpiresAt)
	return err
}

// GetSession resolves a session cookie token.
func (s *PostgresWorkflowStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	var sess models.Session
	err := s.db.QueryRow(ctx, `SELECT token, user_id, expires_at FROM sessions WHERE token = $1`, token).
		Scan(&sess.Token, &sess.UserID, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
