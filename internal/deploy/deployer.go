// Package deploy writes validated workflow content to canonical on-disk
// bundles and manages their lifecycle.
package deploy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"auraforce/backend/internal/logging"
	"auraforce/backend/pkg/models"
)

// BundleEntrypoint is the file a bundle's content is written to; the graph
// endpoints parse this file.
const BundleEntrypoint = "README.md"

// Result reports a deploy outcome. Success=false means no usable artifact
// exists at CCPath.
type Result struct {
	Success bool   `json:"success"`
	CCPath  string `json:"cc_path,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Deployer writes workflow bundles under a fixed root directory.
type Deployer struct {
	root   string
	locks  *KeyedLock
	logger *logging.Logger
}

// NewDeployer creates a Deployer rooted at dir.
func NewDeployer(dir string, logger *logging.Logger) *Deployer {
	return &Deployer{root: dir, locks: NewKeyedLock(), logger: logger}
}

// Root returns the bundle root directory.
func (d *Deployer) Root() string { return d.root }

// Slug normalizes a workflow name into a path segment: lowercase, runs of
// non-alphanumerics collapse to a single dash. Two names that normalize
// identically collide; the caller's duplicate-name check is the guard.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
		} else if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// HashContent returns the hex sha256 of a document. Stored at deploy time and
// compared by the sync service to detect drift.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// CanonicalPath computes the deterministic bundle entrypoint for a name.
func (d *Deployer) CanonicalPath(name string) string {
	return filepath.Join(d.root, Slug(name), BundleEntrypoint)
}

// WithLock runs fn while holding the bundle lock for the given name.
func (d *Deployer) WithLock(name string, fn func() error) error {
	unlock := d.locks.Lock(Slug(name))
	defer unlock()
	return fn()
}

// Deploy writes content to the canonical path for name. The write goes
// through a temp file and rename under the bundle lock.
func (d *Deployer) Deploy(ctx context.Context, content, name string, _ models.WorkflowMetadata) Result {
	if err := ctx.Err(); err != nil {
		return Result{Err: err.Error()}
	}
	slug := Slug(name)
	if slug == "" {
		return Result{Err: fmt.Sprintf("workflow name %q normalizes to an empty path", name)}
	}
	ccPath := d.CanonicalPath(name)

	err := d.WithLock(name, func() error {
		return writeFileAtomic(ccPath, []byte(content))
	})
	if err != nil {
		d.logger.Error("bundle deploy failed", "name", name, "path", ccPath, "error", err)
		return Result{Err: err.Error()}
	}

	d.logger.Info("bundle deployed", "name", name, "path", ccPath)
	return Result{Success: true, CCPath: ccPath}
}

// Remove deletes the bundle tree for name. Best-effort: a missing tree is
// not an error.
func (d *Deployer) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(d.root, Slug(name))
	return d.WithLock(name, func() error {
		if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}

// ReadConfigFiles reads every regular file in the bundle directory containing
// ccPath, keyed by path relative to the bundle dir. Returns fs.ErrNotExist
// when the entrypoint itself is gone.
func (d *Deployer) ReadConfigFiles(ccPath string) (map[string]string, error) {
	if _, err := os.Stat(ccPath); err != nil {
		return nil, err
	}
	dir := filepath.Dir(ccPath)
	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".deploy-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
