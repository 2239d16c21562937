package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxStderrBytes = 64 * 1024

	defaultListLimit = 50
	maxListLimit     = 500

	// timeLayout is fixed-width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Journal records one row per print job in SQLite.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Record inserts a queued row for a job about to be dispatched.
func (j *Journal) Record(ctx context.Context, req RecordRequest) error {
	if req.ID == "" {
		return fmt.Errorf("job id is empty")
	}
	if req.Label == "" {
		return fmt.Errorf("label is empty")
	}

	now := j.now().UTC().Format(timeLayout)
	_, err := j.db.ExecContext(ctx, `
INSERT INTO print_jobs(
  id, label, model, printer_uri, driver, dry_run, digest, size_bytes, status, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, req.ID, req.Label, req.Model, req.PrinterURI, req.Driver, req.DryRun, req.Digest, req.SizeBytes, StatusQueued, now)
	if err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	return nil
}

// Complete moves a queued job to its terminal status. Completing a job twice
// is refused so the first outcome stands.
func (j *Journal) Complete(ctx context.Context, id string, c Completion) error {
	if !c.Status.Terminal() {
		return fmt.Errorf("status %q is not terminal", c.Status)
	}

	var stderr any
	if c.Stderr != "" {
		s := c.Stderr
		if len(s) > maxStderrBytes {
			s = s[len(s)-maxStderrBytes:]
		}
		stderr = s
	}

	res, err := j.db.ExecContext(ctx, `
UPDATE print_jobs
SET status = ?, filename = ?, error = ?, exit_code = ?, stderr = ?, duration_ms = ?, completed_at = ?
WHERE id = ? AND status = ?;
`, c.Status, nullString(c.Filename), nullString(c.Error), c.ExitCode, stderr, c.Duration.Milliseconds(),
		j.now().UTC().Format(timeLayout), id, StatusQueued)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if n == 0 {
		if _, err := j.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("job %s already completed", id)
	}
	return nil
}

// Get returns a single job or ErrJobNotFound.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM print_jobs WHERE id = ?;`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return e, nil
}

// List returns jobs newest first.
func (j *Journal) List(ctx context.Context, f ListFilter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Label != "" {
		where = append(where, "label = ?")
		args = append(args, f.Label)
	}

	q := `SELECT ` + entryColumns + ` FROM print_jobs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, rowid DESC LIMIT ?;"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return entries, nil
}

// Prune deletes completed jobs older than olderThan and returns how many went.
func (j *Journal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	cutoff := j.now().Add(-olderThan).UTC().Format(timeLayout)
	res, err := j.db.ExecContext(ctx, `DELETE FROM print_jobs WHERE status != ? AND created_at < ?;`, StatusQueued, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

const entryColumns = `id, label, model, printer_uri, driver, dry_run, digest, size_bytes, status,
  filename, error, exit_code, stderr, duration_ms, created_at, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e            Entry
		statusS      string
		filename     sql.NullString
		lastError    sql.NullString
		exitCode     sql.NullInt64
		stderr       sql.NullString
		durationMS   sql.NullInt64
		createdAtS   string
		completedAtS sql.NullString
	)
	if err := s.Scan(
		&e.ID, &e.Label, &e.Model, &e.PrinterURI, &e.Driver, &e.DryRun, &e.Digest, &e.SizeBytes, &statusS,
		&filename, &lastError, &exitCode, &stderr, &durationMS, &createdAtS, &completedAtS,
	); err != nil {
		return nil, err
	}

	e.Status = Status(statusS)
	if filename.Valid {
		e.Filename = &filename.String
	}
	if lastError.Valid {
		e.Error = &lastError.String
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		e.ExitCode = &code
	}
	if stderr.Valid {
		e.Stderr = &stderr.String
	}
	if durationMS.Valid {
		d := time.Duration(durationMS.Int64) * time.Millisecond
		e.Duration = &d
	}
	if t, err := time.Parse(timeLayout, createdAtS); err == nil {
		e.CreatedAt = t
	}
	if completedAtS.Valid {
		if t, err := time.Parse(timeLayout, completedAtS.String); err == nil {
			e.CompletedAt = &t
		}
	}
	return &e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
