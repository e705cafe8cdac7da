package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"auraforce/backend/pkg/models"
)

// MemoryWorkflowStore is an in-memory Store used by tests and by the serve
// command's --in-memory mode. All methods are safe for concurrent use.
type MemoryWorkflowStore struct {
	mu        sync.Mutex
	workflows map[string]*models.WorkflowSpec
	stats     map[string]*models.WorkflowStats
	favorites map[string]map[string]time.Time // userID -> workflowID -> createdAt
	projects  map[string]*models.UserWorkspaceProject
	users     map[string]*models.User
	sessions  map[string]*models.Session
}

// NewMemoryWorkflowStore creates an empty in-memory store.
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{
		workflows: make(map[string]*models.WorkflowSpec),
		stats:     make(map[string]*models.WorkflowStats),
		favorites: make(map[string]map[string]time.Time),
		projects:  make(map[string]*models.UserWorkspaceProject),
		users:     make(map[string]*models.User),
		sessions:  make(map[string]*models.Session),
	}
}

func copyWorkflow(w *models.WorkflowSpec) *models.WorkflowSpec {
	cp := *w
	return &cp
}

// CreateWorkflow inserts a new workflow record.
func (s *MemoryWorkflowStore) CreateWorkflow(_ context.Context, w *models.WorkflowSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.workflows {
		if existing.Name == w.Name {
			return ErrAlreadyExists
		}
	}
	s.workflows[w.ID] = copyWorkflow(w)
	return nil
}

// GetWorkflow retrieves a workflow by id.
func (s *MemoryWorkflowStore) GetWorkflow(_ context.Context, id string) (*models.WorkflowSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyWorkflow(w), nil
}

// GetWorkflowByName retrieves a workflow by its unique name.
func (s *MemoryWorkflowStore) GetWorkflowByName(_ context.Context, name string) (*models.WorkflowSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workflows {
		if w.Name == name {
			return copyWorkflow(w), nil
		}
	}
	return nil, ErrNotFound
}

// ListWorkflows returns a page of workflows visible to opts.UserID.
func (s *MemoryWorkflowStore) ListWorkflows(_ context.Context, opts models.SearchOptions) ([]*models.WorkflowSpec, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.WorkflowSpec
	for _, w := range s.workflows {
		if opts.OwnerOnly {
			if w.UserID != opts.UserID {
				continue
			}
		} else if !w.ReadableBy(opts.UserID) {
			continue
		}
		if opts.Query != "" {
			q := strings.ToLower(opts.Query)
			if !strings.Contains(strings.ToLower(w.Name), q) &&
				!strings.Contains(strings.ToLower(w.Description), q) {
				continue
			}
		}
		if opts.Tag != "" {
			found := false
			for _, t := range w.Metadata.Tags {
				if t == opts.Tag {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		matched = append(matched, copyWorkflow(w))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].DeployedAt.After(matched[j].DeployedAt)
	})

	total := len(matched)
	limit := opts.Limit
	if limit == 0 {
		limit = 50
	} else if limit < 0 {
		limit = len(matched)
	}
	if opts.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[opts.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// ListAllWorkflows returns every workflow record.
func (s *MemoryWorkflowStore) ListAllWorkflows(_ context.Context) ([]*models.WorkflowSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.WorkflowSpec
	for _, w := range s.workflows {
		out = append(out, copyWorkflow(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeployedAt.Before(out[j].DeployedAt) })
	return out, nil
}

// UpdateContent replaces the retained document and its hash.
func (s *MemoryWorkflowStore) UpdateContent(_ context.Context, id, content, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return ErrNotFound
	}
	w.Content = content
	w.ContentHash = hash
	w.UpdatedAt = at
	return nil
}

// DeleteWorkflow removes the workflow, its stats and favorite rows.
func (s *MemoryWorkflowStore) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(s.workflows, id)
	delete(s.stats, id)
	for _, byWorkflow := range s.favorites {
		delete(byWorkflow, id)
	}
	return nil
}

// UpdateSyncStatus records the outcome of a sync pass.
func (s *MemoryWorkflowStore) UpdateSyncStatus(_ context.Context, id string, status models.SyncStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return ErrNotFound
	}
	w.SyncStatus = status
	w.LastSyncAt = &at
	w.UpdatedAt = at
	return nil
}

// GetStats retrieves the stats row.
func (s *MemoryWorkflowStore) GetStats(_ context.Context, workflowID string) (*models.WorkflowStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[workflowID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryWorkflowStore) statsLocked(workflowID string) *models.WorkflowStats {
	st, ok := s.stats[workflowID]
	if !ok {
		st = &models.WorkflowStats{WorkflowID: workflowID}
		s.stats[workflowID] = st
	}
	return st
}

// IncrementLoadStats bumps all load counters, creating the row when absent.
func (s *MemoryWorkflowStore) IncrementLoadStats(_ context.Context, workflowID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statsLocked(workflowID)
	st.TotalLoads++
	st.TodayLoads++
	st.WeekLoads++
	st.MonthLoads++
	t := at
	st.LastUsedAt = &t
	return nil
}

// AddRating folds one rating into the aggregates.
func (s *MemoryWorkflowStore) AddRating(_ context.Context, workflowID string, rating float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statsLocked(workflowID)
	st.RatingSum += rating
	st.RatingCount++
	return nil
}

// SetFavorite creates the join entry and increments favorite_count.
func (s *MemoryWorkflowStore) SetFavorite(_ context.Context, userID, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byWorkflow, ok := s.favorites[userID]
	if !ok {
		byWorkflow = make(map[string]time.Time)
		s.favorites[userID] = byWorkflow
	}
	if _, ok := byWorkflow[workflowID]; ok {
		return ErrAlreadyExists
	}
	byWorkflow[workflowID] = time.Now()
	s.statsLocked(workflowID).FavoriteCount++
	return nil
}

// UnsetFavorite deletes the join entry and decrements favorite_count.
func (s *MemoryWorkflowStore) UnsetFavorite(_ context.Context, userID, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byWorkflow := s.favorites[userID]
	if _, ok := byWorkflow[workflowID]; !ok {
		return ErrNotFound
	}
	delete(byWorkflow, workflowID)
	st := s.statsLocked(workflowID)
	if st.FavoriteCount > 0 {
		st.FavoriteCount--
	}
	return nil
}

// IsFavorited reports whether the join entry exists.
func (s *MemoryWorkflowStore) IsFavorited(_ context.Context, userID, workflowID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.favorites[userID][workflowID]
	return ok, nil
}

// CreateWorkspaceProject records a user's project directory.
func (s *MemoryWorkflowStore) CreateWorkspaceProject(_ context.Context, p *models.UserWorkspaceProject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.projects {
		if existing.UserID == p.UserID && existing.Name == p.Name {
			return ErrAlreadyExists
		}
	}
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

// GetWorkspaceProject retrieves a project by user and name.
func (s *MemoryWorkflowStore) GetWorkspaceProject(_ context.Context, userID, name string) (*models.UserWorkspaceProject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.UserID == userID && p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// CreateUser inserts a user record.
func (s *MemoryWorkflowStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrAlreadyExists
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

// GetUserByEmail retrieves a user by email.
func (s *MemoryWorkflowStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// CreateSession inserts or refreshes a session record.
func (s *MemoryWorkflowStore) CreateSession(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.Token] = &cp
	return nil
}

// GetSession resolves a session cookie token.
func (s *MemoryWorkflowStore) GetSession(_ context.Context, token string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}
