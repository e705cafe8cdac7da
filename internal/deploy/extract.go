package deploy

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ExtractBundle materializes a deployed bundle into destDir: plain files are
// copied, zip archives inside the bundle are unpacked in place. Returns the
// destination-relative paths that were written, sorted.
func (d *Deployer) ExtractBundle(ctx context.Context, name, destDir string) ([]string, error) {
	var extracted []string
	srcDir := filepath.Join(d.root, Slug(name))

	err := d.WithLock(name, func() error {
		if _, err := os.Stat(srcDir); err != nil {
			return err
		}
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return err
		}
		return filepath.WalkDir(srcDir, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if entry.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(srcDir, path)
			if err != nil {
				return err
			}
			if strings.EqualFold(filepath.Ext(path), ".zip") {
				names, err := extractZip(path, destDir)
				if err != nil {
					return fmt.Errorf("extract %s: %w", rel, err)
				}
				extracted = append(extracted, names...)
				return nil
			}
			target := filepath.Join(destDir, rel)
			if err := copyFile(path, target); err != nil {
				return err
			}
			extracted = append(extracted, filepath.ToSlash(rel))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(extracted)
	return extracted, nil
}

// extractZip unpacks archive into destDir, rejecting entries whose resolved
// path escapes destDir.
func extractZip(archive, destDir string) ([]string, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		target := filepath.Join(destDir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return nil, fmt.Errorf("archive entry %q escapes destination", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, err
		}
		src, err := f.Open()
		if err != nil {
			return nil, err
		}
		dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			src.Close()
			return nil, err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, err
		}
		names = append(names, f.Name)
	}
	return names, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
