package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ClaimNext atomically claims the best candidate job for a worker.
//
// Candidates are jobs with status queued, plus running jobs whose lease has
// expired (treated as abandoned by a crashed or stalled worker). Selection is
// highest priority first, then oldest created_at. Returns (nil, nil) when no
// candidate exists; that is not an error.
//
// The whole operation runs in one transaction: the sweep that returns due
// retrying jobs to the claimable pool, the candidate select, and the
// conditional claim update. The claim update re-states the candidate
// conditions in its WHERE clause, so a concurrent claimer loses cleanly
// (zero rows affected) rather than double-claiming a live lease.
func (s *Store) ClaimNext(ctx context.Context, workerID string) (*Job, error) {
	if workerID == "" {
		return nil, errors.New("worker id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	// Backoff elapsed: retrying jobs re-enter the claimable pool.
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, next_retry_at = NULL, updated_at = ?
         WHERE status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?`,
		StatusQueued, timestamp, StatusRetrying, timestamp,
	); err != nil {
		return nil, fmt.Errorf("release due retries: %w", err)
	}

	var (
		candidateID     string
		candidateStatus Status
	)
	err = tx.QueryRowContext(
		ctx,
		`SELECT id, status FROM jobs
         WHERE status = ?
            OR (status = ? AND lock_expiry IS NOT NULL AND lock_expiry <= ?)
         ORDER BY priority DESC, created_at ASC
         LIMIT 1`,
		StatusQueued, StatusRunning, timestamp,
	).Scan(&candidateID, &candidateStatus)
	if errors.Is(err, sql.ErrNoRows) {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit empty claim: %w", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select claim candidate: %w", err)
	}

	// A queued job genuinely changes state; reclaiming an expired running
	// lease is an ownership change, not a status transition.
	if candidateStatus == StatusQueued {
		if err := AssertTransition(candidateStatus, StatusRunning); err != nil {
			return nil, err
		}
	}

	lockExpiry := now.Add(LeaseDuration).Format(time.RFC3339Nano)
	res, err := tx.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, worker_id = ?, locked_at = ?, lock_expiry = ?,
             started_at = COALESCE(started_at, ?), updated_at = ?
         WHERE id = ?
           AND (status = ? OR (status = ? AND lock_expiry IS NOT NULL AND lock_expiry <= ?))`,
		StatusRunning, workerID, timestamp, lockExpiry, timestamp, timestamp,
		candidateID,
		StatusQueued, StatusRunning, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the race to another worker between select and update.
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit lost claim: %w", err)
		}
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	return s.GetByID(ctx, candidateID)
}

// RenewLock extends the lease for a job the worker still owns. Returns false
// when the job is no longer running or no longer owned by workerID; the caller
// has lost ownership and must stop processing.
func (s *Store) RenewLock(ctx context.Context, jobID, workerID string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET lock_expiry = ?, updated_at = ?
         WHERE id = ? AND worker_id = ? AND status = ?`,
		now.Add(LeaseDuration).Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		jobID, workerID, StatusRunning,
	)
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("renew lock rows affected: %w", err)
	}
	return affected == 1, nil
}

// UpdateProgress applies a partial update of progress-tracking fields.
func (s *Store) UpdateProgress(ctx context.Context, jobID string, update ProgressUpdate) error {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 7)

	if update.CurrentState != nil {
		sets = append(sets, "current_state = ?")
		args = append(args, *update.CurrentState)
	}
	if update.TotalChunks != nil {
		sets = append(sets, "total_chunks = ?")
		args = append(args, *update.TotalChunks)
	}
	if update.CompletedChunks != nil {
		sets = append(sets, "completed_chunks = ?")
		args = append(args, *update.CompletedChunks)
	}
	if update.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *update.Progress)
	}
	if update.LastError != nil {
		sets = append(sets, "last_error = ?")
		args = append(args, *update.LastError)
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, jobID)

	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update progress rows affected: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Complete writes a terminal result for a job the worker owns and releases the
// lease. Progress is forced to 100 only on success; preserved otherwise.
func (s *Store) Complete(ctx context.Context, jobID, workerID string, result CompletionResult) error {
	if !IsFinalState(result.Status) {
		return fmt.Errorf("completion status %s is not terminal", result.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := getJobTx(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if err := AssertTransition(job.Status, result.Status); err != nil {
		return err
	}
	if job.WorkerID != workerID {
		return fmt.Errorf("%w: job %s owned by %q, not %q", ErrLeaseLost, jobID, job.WorkerID, workerID)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := `UPDATE jobs
        SET status = ?, playbook_id = ?, failure_reason = ?,
            worker_id = NULL, locked_at = NULL, lock_expiry = NULL,
            completed_at = ?, updated_at = ?`
	args := []any{
		result.Status,
		nullableString(result.PlaybookID),
		nullableString(result.FailureReason),
		now, now,
	}
	if result.Status == StatusCompleted {
		query += `, progress = 100`
	}
	query += ` WHERE id = ?`
	args = append(args, jobID)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return tx.Commit()
}

// Pause suspends a running job. The lease is retained so the same or another
// worker can resume it later via Resume.
func (s *Store) Pause(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, StatusPaused, false)
}

// Cancel terminates a job and releases its lease. An in-flight model call for
// the current chunk is not interrupted; the pipeline checks status between
// chunks and stops promptly.
func (s *Store) Cancel(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, StatusCancelled, true)
}

// Resume returns a paused job to the claimable pool. The transition is
// validated as paused -> running, but resumption re-enters the queue rather
// than resuming in place: the persisted checkpoint is what lets the next
// claimer continue from the correct chunk.
func (s *Store) Resume(ctx context.Context, jobID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resume tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := getJobTx(ctx, tx, jobID)
	if err != nil {
		return err
	}
	// Only paused is a legal resume source. queued and retrying jobs reach
	// running through the claim path, never through Resume: a resumed
	// retrying job would skip its backoff.
	if job.Status != StatusPaused {
		return fmt.Errorf("resume requires a paused job: %w",
			&TransitionError{From: job.Status, To: StatusRunning, Allowed: AllowedTransitions(job.Status)})
	}
	if err := AssertTransition(StatusPaused, StatusRunning); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, worker_id = NULL, locked_at = NULL, lock_expiry = NULL, updated_at = ?
         WHERE id = ?`,
		StatusQueued, now, jobID,
	); err != nil {
		return fmt.Errorf("resume job: %w", err)
	}
	return tx.Commit()
}

// HandleFailure routes a pipeline error to retry or permanent failure.
//
// Below the retry budget: status becomes retrying with capped exponential
// backoff (1s, 2s, 4s, ... max 60s) recorded in next_retry_at; the claim
// sweep returns the job to queued once the backoff elapses. Budget exhausted:
// status becomes failed permanently. Either way the lease is released.
func (s *Store) HandleFailure(ctx context.Context, jobID string, cause error) error {
	if cause == nil {
		return errors.New("failure cause is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin failure tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := getJobTx(ctx, tx, jobID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	if job.RetryCount < job.MaxRetries {
		if err := AssertTransition(job.Status, StatusRetrying); err != nil {
			return err
		}
		backoff := RetryBackoff(job.RetryCount)
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, retry_count = retry_count + 1, last_error = ?,
                 next_retry_at = ?, worker_id = NULL, locked_at = NULL,
                 lock_expiry = NULL, updated_at = ?
             WHERE id = ?`,
			StatusRetrying,
			cause.Error(),
			now.Add(backoff).Format(time.RFC3339Nano),
			timestamp,
			jobID,
		); err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}
		return tx.Commit()
	}

	if err := AssertTransition(job.Status, StatusFailed); err != nil {
		return err
	}
	reason := fmt.Sprintf("failed after %d attempts: %v", job.RetryCount+1, cause)
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, last_error = ?, failure_reason = ?,
             worker_id = NULL, locked_at = NULL, lock_expiry = NULL,
             next_retry_at = NULL, completed_at = ?, updated_at = ?
         WHERE id = ?`,
		StatusFailed,
		cause.Error(),
		reason,
		timestamp,
		timestamp,
		jobID,
	); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return tx.Commit()
}

// transition validates and applies a status change, optionally releasing the lease.
func (s *Store) transition(ctx context.Context, jobID string, to Status, releaseLease bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := getJobTx(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if err := AssertTransition(job.Status, to); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := `UPDATE jobs SET status = ?, updated_at = ?`
	args := []any{to, now}
	if releaseLease {
		query += `, worker_id = NULL, locked_at = NULL, lock_expiry = NULL`
	}
	if IsFinalState(to) {
		query += `, completed_at = ?`
		args = append(args, now)
	}
	query += ` WHERE id = ?`
	args = append(args, jobID)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("transition to %s: %w", to, err)
	}
	return tx.Commit()
}

func getJobTx(ctx context.Context, tx *sql.Tx, jobID string) (*Job, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job in tx: %w", err)
	}
	return job, nil
}
