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

// maxNameAttempts bounds the suffix search when names collide.
const maxNameAttempts = 10000

// OutputStore persists dry-run labels as PNG files.
type OutputStore struct {
	dir string
	now func() time.Time
}

// NewOutputStore creates a store writing under dir. The directory is created
// on first Save.
func NewOutputStore(dir string) (*OutputStore, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("output directory is empty")
	}
	return &OutputStore{dir: filepath.Clean(trimmed), now: time.Now}, nil
}

// Dir returns the output directory.
func (s *OutputStore) Dir() string { return s.dir }

// Save writes data to a new file named label_<label>_<YYYYMMDD_HHMMSS_ffffff>.png
// and returns its path. Names are claimed exclusively; when two saves land in
// the same microsecond the later one gets a numeric suffix.
func (s *OutputStore) Save(ctx context.Context, label string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if label == "" || filepath.Base(label) != label {
		return "", fmt.Errorf("label %q is not a valid file name component", label)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	base := outputBaseName(label, s.now())
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := base + ".png"
		if attempt > 0 {
			name = fmt.Sprintf("%s_%d.png", base, attempt)
		}
		path := filepath.Join(s.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create output file: %w", err)
		}

		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("write output file: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("close output file: %w", err)
		}
		return path, nil
	}

	return "", fmt.Errorf("no free output file name for %s after %d attempts", base, maxNameAttempts)
}

func outputBaseName(label string, t time.Time) string {
	return fmt.Sprintf("label_%s_%s_%06d", label, t.Format("20060102_150405"), t.Nanosecond()/1000)
}
