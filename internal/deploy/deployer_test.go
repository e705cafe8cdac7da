package deploy

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auraforce/backend/internal/logging"
	"auraforce/backend/pkg/models"
)

func newTestDeployer(t *testing.T) *Deployer {
	t.Helper()
	return NewDeployer(t.TempDir(), logging.NewNop())
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Code Review Pipeline": "code-review-pipeline",
		"  Spaced  Out  ":      "spaced-out",
		"UPPER_case.v2":        "upper-case-v2",
		"dashes---inside":      "dashes-inside",
		"trailing!!!":          "trailing",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slug(in), "input %q", in)
	}
}

func TestDeployAndRead(t *testing.T) {
	d := newTestDeployer(t)
	ctx := context.Background()

	res := d.Deploy(ctx, "---\nname: X\n---\nbody", "My Flow", models.WorkflowMetadata{})
	require.True(t, res.Success, res.Err)
	assert.Equal(t, d.CanonicalPath("My Flow"), res.CCPath)

	files, err := d.ReadConfigFiles(res.CCPath)
	require.NoError(t, err)
	assert.Equal(t, "---\nname: X\n---\nbody", files[BundleEntrypoint])
}

func TestDeployEmptySlug(t *testing.T) {
	d := newTestDeployer(t)
	res := d.Deploy(context.Background(), "x", "!!!", models.WorkflowMetadata{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "empty path")
}

func TestRemove(t *testing.T) {
	d := newTestDeployer(t)
	ctx := context.Background()

	res := d.Deploy(ctx, "content", "Doomed", models.WorkflowMetadata{})
	require.True(t, res.Success)

	require.NoError(t, d.Remove(ctx, "Doomed"))
	_, err := os.Stat(res.CCPath)
	assert.True(t, os.IsNotExist(err))

	// removing again is not an error
	assert.NoError(t, d.Remove(ctx, "Doomed"))
}

func TestReadConfigFilesMissingBundle(t *testing.T) {
	d := newTestDeployer(t)
	_, err := d.ReadConfigFiles(d.CanonicalPath("never-deployed"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractBundleWithZip(t *testing.T) {
	d := newTestDeployer(t)
	ctx := context.Background()

	res := d.Deploy(ctx, "readme body", "Template Flow", models.WorkflowMetadata{})
	require.True(t, res.Success)

	// drop a zip next to the entrypoint
	zipPath := filepath.Join(filepath.Dir(res.CCPath), "templates.zip")
	writeZip(t, zipPath, map[string]string{
		"prompts/review.md": "review prompt",
		"settings.json":     "{}",
	})

	dest := t.TempDir()
	extracted, err := d.ExtractBundle(ctx, "Template Flow", dest)
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "prompts/review.md", "settings.json"}, extracted)

	data, err := os.ReadFile(filepath.Join(dest, "prompts", "review.md"))
	require.NoError(t, err)
	assert.Equal(t, "review prompt", string(data))
}

func TestExtractZipSlipRejected(t *testing.T) {
	d := newTestDeployer(t)
	ctx := context.Background()

	res := d.Deploy(ctx, "body", "Evil", models.WorkflowMetadata{})
	require.True(t, res.Success)
	writeZip(t, filepath.Join(filepath.Dir(res.CCPath), "evil.zip"), map[string]string{
		"../outside.txt": "nope",
	})

	_, err := d.ExtractBundle(ctx, "Evil", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes destination")
}

func TestKeyedLockExclusive(t *testing.T) {
	l := NewKeyedLock()
	var counter, max int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("same-key")
			defer unlock()
			mu.Lock()
			counter++
			if counter > max {
				max = counter
			}
			mu.Unlock()
			mu.Lock()
			counter--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, max, "lock admitted more than one holder")
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}
