package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"audiograb/internal/logging"
)

// SweepResult contains the outcome of a stale workspace sweep.
type SweepResult struct {
	Removed []string
	Errors  []SweepError
}

// SweepError pairs a directory with the error that kept it on disk.
type SweepError struct {
	Path string
	Err  error
}

// Sweep removes job workspaces whose last modification is older than maxAge.
// The directory mtime only moves when entries are created or removed, so a
// live job is not refreshed by its own writes. Callers must pass a maxAge
// longer than the job timeout; config validation enforces this for
// jobs.stale_workspace_minutes. Entries without the job prefix are never
// touched.
func (m *Manager) Sweep(ctx context.Context, maxAge time.Duration) SweepResult {
	result := SweepResult{}
	if maxAge <= 0 {
		return result
	}

	entries, err := os.ReadDir(m.root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, SweepError{Path: m.root, Err: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		dirPath := filepath.Join(m.root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, SweepError{Path: dirPath, Err: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, SweepError{Path: dirPath, Err: err})
			logging.WarnWithContext(m.logger, "failed to remove stale workspace", "workspace_sweep_failed",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check workspace_root permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		m.logger.Info("removed stale workspace",
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "workspace_sweep"),
		)
	}
	return result
}

// List returns the job workspaces currently on disk.
func (m *Manager) List() ([]DirInfo, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirPath := filepath.Join(m.root, entry.Name())
		size, _ := dirSize(dirPath)
		dirs = append(dirs, DirInfo{
			JobID:   strings.TrimPrefix(entry.Name(), dirPrefix),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
		})
	}
	return dirs, nil
}

// DirInfo describes one workspace on disk.
type DirInfo struct {
	JobID   string
	Path    string
	ModTime time.Time
	Size    int64
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size, err
}
