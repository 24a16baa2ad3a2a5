package server

import (
	"time"

	"offbook/internal/queue"
)

// JobView is the API projection of a job. RawText and the checkpoint blob
// are omitted; they can be large and are internal to execution.
type JobView struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Priority int    `json:"priority"`
	Filename string `json:"filename,omitempty"`

	Status queue.Status `json:"status"`

	RetryCount      int    `json:"retryCount"`
	MaxRetries      int    `json:"maxRetries"`
	TotalChunks     int    `json:"totalChunks"`
	CompletedChunks int    `json:"completedChunks"`
	Progress        int    `json:"progress"`
	LastError       string `json:"lastError,omitempty"`
	FailureReason   string `json:"failureReason,omitempty"`

	WorkerID   string     `json:"workerId,omitempty"`
	LockExpiry *time.Time `json:"lockExpiry,omitempty"`

	PlaybookID string `json:"playbookId,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func jobView(job *queue.Job) JobView {
	return JobView{
		ID:              job.ID,
		Type:            job.Type,
		Priority:        job.Priority,
		Filename:        job.Filename,
		Status:          job.Status,
		RetryCount:      job.RetryCount,
		MaxRetries:      job.MaxRetries,
		TotalChunks:     job.TotalChunks,
		CompletedChunks: job.CompletedChunks,
		Progress:        job.Progress,
		LastError:       job.LastError,
		FailureReason:   job.FailureReason,
		WorkerID:        job.WorkerID,
		LockExpiry:      job.LockExpiry,
		PlaybookID:      job.PlaybookID,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

func jobViews(jobs []*queue.Job) []JobView {
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, jobView(job))
	}
	return views
}
