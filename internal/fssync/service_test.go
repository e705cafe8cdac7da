package fssync

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auraforce/backend/internal/deploy"
	"auraforce/backend/internal/logging"
	"auraforce/backend/internal/repository"
	"auraforce/backend/pkg/models"
)

type fixture struct {
	store    *repository.MemoryWorkflowStore
	deployer *deploy.Deployer
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryWorkflowStore()
	d := deploy.NewDeployer(t.TempDir(), logging.NewNop())
	return &fixture{
		store:    store,
		deployer: d,
		service:  NewService(store, d, logging.NewNop()),
	}
}

func (f *fixture) deployWorkflow(t *testing.T, name, content string) *models.WorkflowSpec {
	t.Helper()
	ctx := context.Background()
	res := f.deployer.Deploy(ctx, content, name, models.WorkflowMetadata{})
	require.True(t, res.Success, res.Err)
	w := &models.WorkflowSpec{
		ID:          uuid.New().String(),
		Name:        name,
		CCPath:      res.CCPath,
		Status:      models.WorkflowStatusDeployed,
		Visibility:  models.VisibilityPublic,
		UserID:      "u1",
		Content:     content,
		ContentHash: deploy.HashContent(content),
		SyncStatus:  models.SyncStatusSynced,
		DeployedAt:  time.Now().UTC(),
	}
	require.NoError(t, f.store.CreateWorkflow(ctx, w))
	return w
}

func TestVerifySynced(t *testing.T) {
	f := newFixture(t)
	w := f.deployWorkflow(t, "Stable Flow", "content v1")

	report, err := f.service.Verify(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, report.Status)

	// verify is idempotent: the second pass reports the same status
	again, err := f.service.Verify(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, report.Status, again.Status)
}

func TestVerifyMissingAndRecover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.deployWorkflow(t, "Fragile Flow", "content v1")

	require.NoError(t, os.Remove(w.CCPath))

	report, err := f.service.Verify(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusMissing, report.Status)

	recovered, err := f.service.Recover(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, recovered.Status)
	assert.True(t, recovered.Recovered)

	data, err := os.ReadFile(w.CCPath)
	require.NoError(t, err)
	assert.Equal(t, "content v1", string(data))

	// recover again: nothing to do
	again, err := f.service.Recover(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, again.Status)
	assert.False(t, again.Recovered)
}

func TestVerifyConflictAndResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.deployWorkflow(t, "Contested Flow", "content v1")

	require.NoError(t, os.WriteFile(w.CCPath, []byte("edited on disk"), 0o644))

	report, err := f.service.Verify(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusConflict, report.Status)

	// adopt the disk version
	resolved, err := f.service.ResolveConflict(ctx, w.ID, SourceDisk)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, resolved.Status)

	stored, err := f.store.GetWorkflow(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited on disk", stored.Content)

	verify, err := f.service.Verify(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, verify.Status)
}

func TestResolveConflictFromDatabase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.deployWorkflow(t, "Authoritative Flow", "db content")
	require.NoError(t, os.WriteFile(w.CCPath, []byte("stray edit"), 0o644))

	_, err := f.service.ResolveConflict(ctx, w.ID, SourceDatabase)
	require.NoError(t, err)

	data, err := os.ReadFile(w.CCPath)
	require.NoError(t, err)
	assert.Equal(t, "db content", string(data))
}

func TestResolveConflictUnknownSource(t *testing.T) {
	f := newFixture(t)
	w := f.deployWorkflow(t, "Flow", "x")
	_, err := f.service.ResolveConflict(context.Background(), w.ID, "coin-flip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown conflict source")
}

func TestSweepDoesNotAbortOnFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ok := f.deployWorkflow(t, "Healthy", "fine")
	broken := f.deployWorkflow(t, "Broken", "gone")
	require.NoError(t, os.Remove(broken.CCPath))

	diag, err := f.service.Diagnostics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, diag.Total)
	assert.Equal(t, 1, diag.Synced)
	assert.Equal(t, 1, diag.Missing)

	// trigger sync repairs the missing bundle
	diag, err = f.service.TriggerSync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, diag.Synced)
	assert.Equal(t, 0, diag.Missing)

	_ = ok
}

func TestDetectConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deployWorkflow(t, "Clean A", "a")
	drifted := f.deployWorkflow(t, "Drifted", "original")
	require.NoError(t, os.WriteFile(drifted.CCPath, []byte("changed"), 0o644))

	conflicts, err := f.service.DetectConflicts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, drifted.ID, conflicts[0].WorkflowID)
	assert.Equal(t, models.SyncStatusConflict, conflicts[0].Status)
}

func TestUpdateSyncStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.deployWorkflow(t, "Manual", "x")

	assert.True(t, f.service.UpdateSyncStatus(ctx, w.ID, models.SyncStatusConflict))
	stored, err := f.store.GetWorkflow(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusConflict, stored.SyncStatus)

	assert.False(t, f.service.UpdateSyncStatus(ctx, w.ID, models.SyncStatus("sideways")))
	assert.False(t, f.service.UpdateSyncStatus(ctx, uuid.New().String(), models.SyncStatusSynced))
}
