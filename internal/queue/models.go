package queue

import (
	"strings"
	"time"
)

// JobTypeParsePlay is the only job type the pipeline currently executes.
const JobTypeParsePlay = "parse_play"

// Lease and retry tuning. Workers renew well inside the lease window so a
// single missed heartbeat does not forfeit ownership.
const (
	LeaseDuration     = 10 * time.Minute
	DefaultMaxRetries = 3

	retryBaseDelay = time.Second
	retryMaxDelay  = 60 * time.Second
)

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusRetrying  Status = "retrying"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusPaused,
	StatusRetrying,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ParseConfig carries the execution-relevant settings for a parse job.
// Display holds UI-only metadata; nothing in the pipeline reads it.
type ParseConfig struct {
	ChunkSize int               `json:"chunkSize,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	Model     string            `json:"model,omitempty"`
	Display   map[string]string `json:"display,omitempty"`
}

// Job is the unit of work persisted in SQLite.
type Job struct {
	ID       string
	Type     string
	Priority int

	RawText  string
	Filename string
	Config   ParseConfig

	Status Status

	RetryCount      int
	MaxRetries      int
	TotalChunks     int
	CompletedChunks int
	Progress        int
	LastError       string
	FailureReason   string

	// CurrentState is the serialized parsing checkpoint taken after the most
	// recently completed chunk. Empty means the job starts from scratch.
	CurrentState string

	// Distributed lock. A lease, not a permanent assignment: once LockExpiry
	// passes the lease is void and any worker may reclaim the job.
	WorkerID   string
	LockedAt   *time.Time
	LockExpiry *time.Time

	NextRetryAt *time.Time

	PlaybookID string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// LeaseExpired reports whether the job's lease has lapsed as of now.
func (j *Job) LeaseExpired(now time.Time) bool {
	return j.LockExpiry == nil || !j.LockExpiry.After(now)
}

// EnqueueInput describes a new job to insert.
type EnqueueInput struct {
	RawText    string
	Filename   string
	Priority   int
	MaxRetries int // 0 means DefaultMaxRetries
	Config     ParseConfig
}

// CompletionResult is the terminal outcome a worker reports for a job.
type CompletionResult struct {
	Status        Status // completed, failed, or cancelled
	PlaybookID    string
	FailureReason string
}

// ProgressUpdate is a partial update of progress-tracking fields.
// Nil fields are left untouched. These are not status changes, so no
// transition validation applies.
type ProgressUpdate struct {
	CurrentState    *string
	TotalChunks     *int
	CompletedChunks *int
	Progress        *int
	LastError       *string
}

// RetryBackoff returns the delay before a job's nth retry (0-indexed):
// 1s, 2s, 4s, ... capped at 60s.
func RetryBackoff(retryCount int) time.Duration {
	delay := retryBaseDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	if delay > retryMaxDelay {
		return retryMaxDelay
	}
	return delay
}
