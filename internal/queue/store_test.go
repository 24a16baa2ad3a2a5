package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func enqueueTestJob(t *testing.T, s *Store, input EnqueueInput) string {
	t.Helper()
	if input.RawText == "" {
		input.RawText = "ROMEO: But soft!"
	}
	id, err := s.Enqueue(context.Background(), input)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return id
}

// forceLockExpiry backdates a running job's lease for reclaim tests.
func forceLockExpiry(t *testing.T, s *Store, jobID string, expiry time.Time) {
	t.Helper()
	_, err := s.db.Exec(
		`UPDATE jobs SET lock_expiry = ? WHERE id = ?`,
		expiry.UTC().Format(time.RFC3339Nano), jobID,
	)
	if err != nil {
		t.Fatalf("force lock expiry: %v", err)
	}
}

// forceRetryDue backdates a retrying job's next_retry_at.
func forceRetryDue(t *testing.T, s *Store, jobID string) {
	t.Helper()
	_, err := s.db.Exec(
		`UPDATE jobs SET next_retry_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Second).Format(time.RFC3339Nano), jobID,
	)
	if err != nil {
		t.Fatalf("force retry due: %v", err)
	}
}

func TestEnqueueDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := enqueueTestJob(t, s, EnqueueInput{Filename: "romeo.txt"})

	job, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusQueued {
		t.Errorf("status = %s, want queued", job.Status)
	}
	if job.Priority != 0 {
		t.Errorf("priority = %d, want 0", job.Priority)
	}
	if job.MaxRetries != DefaultMaxRetries {
		t.Errorf("max retries = %d, want %d", job.MaxRetries, DefaultMaxRetries)
	}
	if job.Type != JobTypeParsePlay {
		t.Errorf("type = %s, want %s", job.Type, JobTypeParsePlay)
	}
	if job.StartedAt != nil || job.CompletedAt != nil {
		t.Error("expected nil started/completed timestamps")
	}
}

func TestEnqueueRejectsEmptyScript(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Enqueue(context.Background(), EnqueueInput{})
	if !errors.Is(err, ErrEmptyScript) {
		t.Fatalf("expected ErrEmptyScript, got %v", err)
	}
}

func TestEnqueuePersistsConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := enqueueTestJob(t, s, EnqueueInput{
		Config: ParseConfig{ChunkSize: 2500, Provider: "mock", Display: map[string]string{"uploadedBy": "stage-manager"}},
	})

	job, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Config.ChunkSize != 2500 || job.Config.Provider != "mock" {
		t.Errorf("config not round-tripped: %+v", job.Config)
	}
	if job.Config.Display["uploadedBy"] != "stage-manager" {
		t.Error("display metadata not round-tripped")
	}
}

func TestGetByIDNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestListByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueueTestJob(t, s, EnqueueInput{})
	id2 := enqueueTestJob(t, s, EnqueueInput{})
	if err := s.Cancel(ctx, id2); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	queued, err := s.List(ctx, StatusQueued)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(queued) != 1 {
		t.Errorf("expected 1 queued job, got %d", len(queued))
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 jobs, got %d", len(all))
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueueTestJob(t, s, EnqueueInput{})
	enqueueTestJob(t, s, EnqueueInput{})
	id := enqueueTestJob(t, s, EnqueueInput{})
	if err := s.Cancel(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[StatusQueued] != 2 || stats[StatusCancelled] != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}
}

func TestUpdateProgressPartial(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := enqueueTestJob(t, s, EnqueueInput{})

	state := `{"lastLineNumber":7}`
	completed := 2
	total := 5
	progress := 40
	err := s.UpdateProgress(ctx, id, ProgressUpdate{
		CurrentState:    &state,
		CompletedChunks: &completed,
		TotalChunks:     &total,
		Progress:        &progress,
	})
	if err != nil {
		t.Fatalf("update progress: %v", err)
	}

	job, _ := s.GetByID(ctx, id)
	if job.CurrentState != state {
		t.Errorf("current state not persisted: %q", job.CurrentState)
	}
	if job.CompletedChunks != 2 || job.TotalChunks != 5 || job.Progress != 40 {
		t.Errorf("progress fields wrong: %+v", job)
	}
	// Status untouched: progress updates are not transitions.
	if job.Status != StatusQueued {
		t.Errorf("status changed by progress update: %s", job.Status)
	}
}
