package spool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Dir describes a job-scoped spool directory holding the image a worker reads.
type Dir struct {
	JobID string
	Path  string
}

// CleanupReport summarizes a cleanup run.
type CleanupReport struct {
	DeletedDirs int
}

// Manager governs per-job spool directories on local disk.
type Manager struct {
	baseDir string
	now     func() time.Time
}

// NewManager creates a spool manager rooted at baseDir.
func NewManager(baseDir string) (*Manager, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("spool base directory is empty")
	}

	return &Manager{
		baseDir: filepath.Clean(trimmed),
		now:     time.Now,
	}, nil
}

// BaseDir returns the spool root.
func (m *Manager) BaseDir() string { return m.baseDir }

// Create initializes a spool directory for jobID.
func (m *Manager) Create(ctx context.Context, jobID string) (Dir, error) {
	if err := ctx.Err(); err != nil {
		return Dir{}, err
	}

	path, err := m.jobPath(jobID)
	if err != nil {
		return Dir{}, err
	}

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return Dir{}, fmt.Errorf("create spool base directory: %w", err)
	}

	if err := os.Mkdir(path, 0o700); err != nil {
		return Dir{}, fmt.Errorf("create spool for job %q: %w", jobID, err)
	}

	return Dir{JobID: jobID, Path: path}, nil
}

// Materialize creates the spool directory for jobID and writes data into it
// as name. It returns the absolute path of the written file. On failure
// nothing is left behind.
func (m *Manager) Materialize(ctx context.Context, jobID, name string, data []byte) (Dir, string, error) {
	if name == "" || filepath.Base(name) != name {
		return Dir{}, "", fmt.Errorf("spool file name %q is invalid", name)
	}

	dir, err := m.Create(ctx, jobID)
	if err != nil {
		return Dir{}, "", err
	}

	path := filepath.Join(dir.Path, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = os.RemoveAll(dir.Path)
		return Dir{}, "", fmt.Errorf("write spool file for job %q: %w", jobID, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return dir, abs, nil
}

// Remove deletes the spool directory for jobID. A directory that is already
// gone is not an error.
func (m *Manager) Remove(jobID string) error {
	path, err := m.jobPath(jobID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove spool for job %q: %w", jobID, err)
	}
	return nil
}

// Cleanup removes spool directories older than olderThan based on directory
// modification time. Directories survive only if a dispatch crashed mid-job.
func (m *Manager) Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error) {
	if err := ctx.Err(); err != nil {
		return CleanupReport{}, err
	}
	if olderThan <= 0 {
		return CleanupReport{}, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return CleanupReport{}, nil
	}
	if err != nil {
		return CleanupReport{}, fmt.Errorf("read spool base directory: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	report := CleanupReport{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return report, fmt.Errorf("read spool entry info %q: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(m.baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return report, fmt.Errorf("remove spool %q: %w", entry.Name(), err)
		}
		report.DeletedDirs++
	}

	return report, nil
}

func (m *Manager) jobPath(jobID string) (string, error) {
	if err := validateJobID(jobID); err != nil {
		return "", err
	}
	return filepath.Join(m.baseDir, jobID), nil
}

func validateJobID(jobID string) error {
	trimmed := strings.TrimSpace(jobID)
	if trimmed == "" {
		return fmt.Errorf("jobID is empty")
	}
	if trimmed == "." || trimmed == ".." {
		return fmt.Errorf("jobID %q is invalid", jobID)
	}
	if strings.Contains(trimmed, "/") || strings.Contains(trimmed, `\`) {
		return fmt.Errorf("jobID %q must not contain path separators", jobID)
	}
	if filepath.Clean(trimmed) != trimmed {
		return fmt.Errorf("jobID %q is invalid", jobID)
	}
	return nil
}
