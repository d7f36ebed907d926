package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLStore persists job records through database/sql. It works against
// SQLite and Postgres; both drivers accept $n placeholders. Timestamps are
// stored as RFC 3339 text so the schema is portable across the two.
type SQLStore struct {
	db *sql.DB
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS conversion_jobs (
	id                 TEXT PRIMARY KEY,
	session_id         TEXT NOT NULL,
	original_file_name TEXT NOT NULL,
	original_format    TEXT NOT NULL,
	target_format      TEXT NOT NULL,
	file_size_bytes    BIGINT NOT NULL,
	status             TEXT NOT NULL,
	download_path      TEXT,
	warnings           TEXT NOT NULL DEFAULT '[]',
	error_message      TEXT,
	created_at         TEXT NOT NULL,
	completed_at       TEXT,
	metadata           TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_conversion_jobs_session
	ON conversion_jobs (session_id, created_at);
`

// NewSQLStore wraps an open database handle and ensures the schema exists.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if _, err := db.Exec(sqlSchema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Create inserts a new job record.
func (s *SQLStore) Create(ctx context.Context, j *Job) error {
	warnings, err := json.Marshal(warningsOrEmpty(j.Warnings))
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	metadata, err := json.Marshal(metadataOrEmpty(j.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversion_jobs
			(id, session_id, original_file_name, original_format, target_format,
			 file_size_bytes, status, download_path, warnings, error_message,
			 created_at, completed_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		j.ID, j.SessionID, j.OriginalFileName, j.OriginalFormat, j.TargetFormat,
		j.FileSizeBytes, string(j.Status), j.DownloadPath, string(warnings),
		j.ErrorMessage, j.CreatedAt.Format(time.RFC3339Nano), nullableTime(j.CompletedAt),
		string(metadata),
	)
	return err
}

// Get retrieves a job record by id.
func (s *SQLStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, original_file_name, original_format, target_format,
		       file_size_bytes, status, download_path, warnings, error_message,
		       created_at, completed_at, metadata
		FROM conversion_jobs WHERE id = $1`, id)
	return scanJob(row)
}

// Complete transitions a processing job to completed. The status guard
// lives in the WHERE clause so two racing writers cannot both win.
func (s *SQLStore) Complete(ctx context.Context, id, downloadPath string, warnings []string) (*Job, error) {
	return s.finish(ctx, id, string(StatusCompleted), &downloadPath, nil, warnings)
}

// Fail transitions a processing job to failed.
func (s *SQLStore) Fail(ctx context.Context, id, errorMessage string, warnings []string) (*Job, error) {
	return s.finish(ctx, id, string(StatusFailed), nil, &errorMessage, warnings)
}

func (s *SQLStore) finish(ctx context.Context, id, status string, downloadPath, errorMessage *string, warnings []string) (*Job, error) {
	encoded, err := json.Marshal(warningsOrEmpty(warnings))
	if err != nil {
		return nil, fmt.Errorf("marshal warnings: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE conversion_jobs
		SET status = $1, download_path = $2, error_message = $3,
		    warnings = $4, completed_at = $5
		WHERE id = $6 AND status = $7`,
		status, downloadPath, errorMessage, string(encoded),
		time.Now().UTC().Format(time.RFC3339Nano), id, string(StatusProcessing),
	)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Either the job does not exist or it already finished.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrTerminal
	}

	return s.Get(ctx, id)
}

// ClearDownloadPath nulls the artifact location after reaping.
func (s *SQLStore) ClearDownloadPath(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversion_jobs SET download_path = NULL WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBySession returns the most recent jobs for a session, newest first.
func (s *SQLStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, original_file_name, original_format, target_format,
		       file_size_bytes, status, download_path, warnings, error_message,
		       created_at, completed_at, metadata
		FROM conversion_jobs
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j            Job
		status       string
		warnings     string
		metadata     string
		createdAt    string
		completedAt  sql.NullString
		downloadPath sql.NullString
		errorMessage sql.NullString
	)

	err := row.Scan(&j.ID, &j.SessionID, &j.OriginalFileName, &j.OriginalFormat,
		&j.TargetFormat, &j.FileSizeBytes, &status, &downloadPath, &warnings,
		&errorMessage, &createdAt, &completedAt, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	j.Status = Status(status)
	if downloadPath.Valid {
		j.DownloadPath = &downloadPath.String
	}
	if errorMessage.Valid {
		j.ErrorMessage = &errorMessage.String
	}
	if err := json.Unmarshal([]byte(warnings), &j.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &j.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	if j.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("decode completed_at: %w", err)
		}
		j.CompletedAt = &t
	}

	return &j, nil
}

func nullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

func warningsOrEmpty(w []string) []string {
	if w == nil {
		return []string{}
	}
	return w
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
