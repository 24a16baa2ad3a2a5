// Package pipeline orchestrates one job's execution: context restore, the
// incremental chunk loop with checkpointing, post-parse cleanup and
// validation, and final persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"offbook/internal/parser"
	"offbook/internal/playbook"
	"offbook/internal/providers"
	"offbook/internal/queue"
)

// Outcome describes how a pipeline run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePaused    Outcome = "paused"
	OutcomeCancelled Outcome = "cancelled"
)

// Result is the pipeline's report to the worker.
type Result struct {
	Outcome    Outcome
	PlaybookID string
	Playbook   *playbook.Playbook
}

// Progress is reported to the caller after each checkpointed chunk.
type Progress struct {
	ChunksCompleted int     `json:"chunksCompleted"`
	TotalChunks     int     `json:"totalChunks"`
	LinesCompleted  int     `json:"linesCompleted"`
	ProgressPercent float64 `json:"progressPercent"`
}

// PlaybookSaver persists a finished playbook and returns its id.
type PlaybookSaver interface {
	SavePlaybook(ctx context.Context, p *playbook.Playbook) (string, error)
}

// Sentinels for cooperative stops observed between chunks.
var (
	errStopCancelled = errors.New("job cancelled")
	errStopPaused    = errors.New("job paused")
)

// Pipeline runs parse jobs. One Pipeline instance is shared by all jobs a
// worker processes; per-run state lives on the stack of Run.
type Pipeline struct {
	Queue    *queue.Store
	Registry *providers.Registry
	Library  PlaybookSaver
	Logger   *slog.Logger

	// Clock injection for tests. Nil means time.Now.
	Now func() time.Time
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Run executes one claimed job to a terminal or suspended state. A non-nil
// error means the job failed this attempt; the worker routes it to retry
// accounting. Paused and cancelled stops return a Result, not an error.
func (p *Pipeline) Run(ctx context.Context, job *queue.Job, onProgress func(Progress)) (*Result, error) {
	logger := p.logger().With("job_id", job.ID)

	if job.RawText == "" {
		return nil, queue.ErrEmptyScript
	}

	pc, err := p.restoreContext(job, logger)
	if err != nil {
		return nil, err
	}

	client, err := p.Registry.Get(job.Config.Provider)
	if err != nil {
		return nil, fmt.Errorf("no provider for job: %w", err)
	}
	limiter, _ := p.Registry.Limiter(job.Config.Provider)

	chunkParser := &parser.Parser{
		Client:    client,
		Limiter:   limiter,
		Model:     job.Config.Model,
		ChunkSize: job.Config.ChunkSize,
		Logger:    logger,
	}

	err = chunkParser.Parse(ctx, job.RawText, pc, job.CompletedChunks, parser.Callbacks{
		BeforeChunk: func(ctx context.Context, chunkIndex int) error {
			return p.checkJobStatus(ctx, job.ID)
		},
		OnChunk: func(ctx context.Context, chunk parser.ChunkProgress) error {
			return p.checkpoint(ctx, job.ID, chunk, onProgress)
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, errStopCancelled):
			logger.Info("stopping: job cancelled")
			return &Result{Outcome: OutcomeCancelled}, nil
		case errors.Is(err, errStopPaused):
			logger.Info("stopping: job paused")
			return &Result{Outcome: OutcomePaused}, nil
		}
		p.checkpointOnError(ctx, job.ID, pc, err, logger)
		return nil, err
	}

	if pc == nil {
		return nil, errors.New("parsing produced no result")
	}

	book := pc.ToPlaybook(p.now())
	repairCharacterCase(book, logger)
	cleanupOrphans(book, logger)

	if err := playbook.Validate(book); err != nil {
		return nil, fmt.Errorf("playbook validation failed: %w", err)
	}

	playbookID, err := p.Library.SavePlaybook(ctx, book)
	if err != nil {
		return nil, fmt.Errorf("failed to save playbook: %w", err)
	}
	book.ID = playbookID

	logger.Info("parse complete",
		"playbook_id", playbookID,
		"acts", len(book.Acts),
		"characters", len(book.Characters),
		"lines", book.LineCount())

	return &Result{Outcome: OutcomeCompleted, PlaybookID: playbookID, Playbook: book}, nil
}

// restoreContext rehydrates the parsing context from the job's checkpoint,
// or creates a fresh one.
func (p *Pipeline) restoreContext(job *queue.Job, logger *slog.Logger) (*parser.ParsingContext, error) {
	if job.CurrentState == "" {
		return parser.NewParsingContext(), nil
	}
	pc, err := parser.RestoreContext([]byte(job.CurrentState))
	if err != nil {
		return nil, fmt.Errorf("corrupt checkpoint: %w", err)
	}
	logger.Info("resuming from checkpoint",
		"completed_chunks", job.CompletedChunks,
		"total_chunks", job.TotalChunks,
		"acts", len(pc.Acts),
		"characters", len(pc.Characters),
		"lines", pc.LineCount())
	return pc, nil
}

// checkJobStatus reads the job row before each chunk so pause/cancel take
// effect between chunks instead of after the whole text is parsed.
func (p *Pipeline) checkJobStatus(ctx context.Context, jobID string) error {
	job, err := p.Queue.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}
	switch job.Status {
	case queue.StatusCancelled:
		return errStopCancelled
	case queue.StatusPaused:
		return errStopPaused
	}
	return nil
}

// checkpoint persists the context snapshot and progress counters, then
// notifies the caller. The write is retried on transient failures.
func (p *Pipeline) checkpoint(ctx context.Context, jobID string, chunk parser.ChunkProgress, onProgress func(Progress)) error {
	state, err := chunk.Context.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	completed := chunk.ChunkIndex + 1
	progress := int(chunk.Progress)
	stateStr := string(state)

	err = retry.Do(
		func() error {
			return p.Queue.UpdateProgress(ctx, jobID, queue.ProgressUpdate{
				CurrentState:    &stateStr,
				TotalChunks:     &chunk.TotalChunks,
				CompletedChunks: &completed,
				Progress:        &progress,
			})
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("checkpoint write failed: %w", err)
	}

	if onProgress != nil {
		onProgress(Progress{
			ChunksCompleted: completed,
			TotalChunks:     chunk.TotalChunks,
			LinesCompleted:  chunk.Context.LineCount(),
			ProgressPercent: chunk.Progress,
		})
	}
	return nil
}

// checkpointOnError makes a best-effort attempt to persist the context and
// error before the failure propagates. If the write is lost, the retry
// replays chunks through the idempotent merge.
func (p *Pipeline) checkpointOnError(ctx context.Context, jobID string, pc *parser.ParsingContext, cause error, logger *slog.Logger) {
	if pc == nil {
		return
	}
	state, err := pc.Serialize()
	if err != nil {
		logger.Warn("could not serialize checkpoint after failure", "error", err)
		return
	}
	stateStr := string(state)
	lastError := cause.Error()
	if err := p.Queue.UpdateProgress(ctx, jobID, queue.ProgressUpdate{
		CurrentState: &stateStr,
		LastError:    &lastError,
	}); err != nil {
		logger.Warn("best-effort checkpoint failed", "error", err)
	}
}
