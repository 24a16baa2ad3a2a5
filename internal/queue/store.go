// Package queue implements the persistent job queue for play-script parsing.
//
// Jobs live in SQLite. Mutual exclusion across worker processes is achieved
// purely through the database: claiming runs in a single transaction and
// ownership is a time-bounded lease (worker_id + lock_expiry) renewed by
// heartbeat. Every status write is validated against the state machine in
// statemachine.go.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle so the playbook library can share the
// database file and connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Enqueue inserts a new job with status queued and returns its id.
func (s *Store) Enqueue(ctx context.Context, input EnqueueInput) (string, error) {
	if input.RawText == "" {
		return "", ErrEmptyScript
	}

	maxRetries := input.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	configJSON, err := json.Marshal(input.Config)
	if err != nil {
		return "", fmt.Errorf("marshal job config: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            id, job_type, priority, raw_text, filename, config_json,
            status, max_retries, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		JobTypeParsePlay,
		input.Priority,
		input.RawText,
		nullableString(input.Filename),
		string(configJSON),
		StatusQueued,
		maxRetries,
		timestamp,
		timestamp,
	)
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}

	return id, nil
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), newest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at DESC`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// jobColumns is the canonical column list matching scanJob.
const jobColumns = `id, job_type, priority, raw_text, filename, config_json,
    status, retry_count, max_retries, total_chunks, completed_chunks, progress,
    last_error, failure_reason, current_state, worker_id, locked_at, lock_expiry,
    next_retry_at, playbook_id, created_at, started_at, completed_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job        Job
		filename   sql.NullString
		configJSON sql.NullString
		lastError  sql.NullString
		failure    sql.NullString
		state      sql.NullString
		workerID   sql.NullString
		lockedAt   sql.NullString
		lockExpiry sql.NullString
		nextRetry  sql.NullString
		playbookID sql.NullString
		createdAt  string
		startedAt  sql.NullString
		complAt    sql.NullString
		updatedAt  string
	)

	err := row.Scan(
		&job.ID, &job.Type, &job.Priority, &job.RawText, &filename, &configJSON,
		&job.Status, &job.RetryCount, &job.MaxRetries, &job.TotalChunks,
		&job.CompletedChunks, &job.Progress, &lastError, &failure, &state,
		&workerID, &lockedAt, &lockExpiry, &nextRetry, &playbookID,
		&createdAt, &startedAt, &complAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Filename = filename.String
	job.LastError = lastError.String
	job.FailureReason = failure.String
	job.CurrentState = state.String
	job.WorkerID = workerID.String
	job.PlaybookID = playbookID.String

	if configJSON.Valid && configJSON.String != "" {
		if err := json.Unmarshal([]byte(configJSON.String), &job.Config); err != nil {
			return nil, fmt.Errorf("unmarshal job config: %w", err)
		}
	}

	if job.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	if job.LockedAt, err = parseNullableTimestamp(lockedAt); err != nil {
		return nil, err
	}
	if job.LockExpiry, err = parseNullableTimestamp(lockExpiry); err != nil {
		return nil, err
	}
	if job.NextRetryAt, err = parseNullableTimestamp(nextRetry); err != nil {
		return nil, err
	}
	if job.StartedAt, err = parseNullableTimestamp(startedAt); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = parseNullableTimestamp(complAt); err != nil {
		return nil, err
	}

	return &job, nil
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func parseNullableTimestamp(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTimestamp(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	placeholders := "?"
	for i := 1; i < n; i++ {
		placeholders += ", ?"
	}
	return placeholders
}
