// Package parser implements the incremental play-script parser: text
// chunking, the per-chunk model call, and the idempotent merge of chunk
// results into an accumulating ParsingContext.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"offbook/internal/providers"
)

// Timing is a running estimate over completed chunk durations.
type Timing struct {
	AvgChunkTime       time.Duration `json:"avgChunkTime"`
	EstimatedRemaining time.Duration `json:"estimatedRemaining"`
}

// ChunkProgress is reported after each completed chunk.
type ChunkProgress struct {
	Context     *ParsingContext
	Progress    float64
	ChunkIndex  int
	TotalChunks int
	Timing      Timing
}

// ChunkError annotates a failure with the chunk it occurred on.
type ChunkError struct {
	ChunkIndex  int
	TotalChunks int
	Err         error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d/%d: %v", e.ChunkIndex+1, e.TotalChunks, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Callbacks hook into the chunk loop. BeforeChunk runs before each model
// call; returning an error stops the loop without treating it as a chunk
// failure. OnChunk runs after each successful merge.
type Callbacks struct {
	BeforeChunk func(ctx context.Context, chunkIndex int) error
	OnChunk     func(ctx context.Context, progress ChunkProgress) error
}

// Parser drives chunk-at-a-time parsing through an LLM client. Chunks are
// processed strictly sequentially: each prompt depends on the context mutated
// by all prior chunks.
type Parser struct {
	Client    providers.LLMClient
	Limiter   *providers.RateLimiter
	Model     string
	ChunkSize int
	Logger    *slog.Logger
}

// responseFormat returns the structured-output format for chunk calls.
func responseFormat() (*providers.ResponseFormat, error) {
	raw, err := json.Marshal(ResultSchema["json_schema"])
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chunk schema: %w", err)
	}
	return &providers.ResponseFormat{Type: "json_schema", JSONSchema: raw}, nil
}

// Parse runs the chunk loop over text, resuming from completedChunks.
// The same text must be supplied on resume so chunk boundaries line up.
func (p *Parser) Parse(ctx context.Context, text string, pc *ParsingContext, completedChunks int, cb Callbacks) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	chunks := SplitIntoChunks(text, p.ChunkSize)
	total := len(chunks)
	if total == 0 {
		return fmt.Errorf("no chunks to parse")
	}
	if completedChunks < 0 || completedChunks > total {
		return fmt.Errorf("invalid resume point: %d of %d chunks", completedChunks, total)
	}

	rf, err := responseFormat()
	if err != nil {
		return err
	}

	var totalElapsed time.Duration
	processed := 0

	for i := completedChunks; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cb.BeforeChunk != nil {
			if err := cb.BeforeChunk(ctx, i); err != nil {
				return err
			}
		}
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return err
			}
		}

		start := time.Now()
		result, err := p.parseChunk(ctx, chunks[i], pc, i, total, rf)
		if err != nil {
			return &ChunkError{ChunkIndex: i, TotalChunks: total, Err: err}
		}

		MergeIntoContext(pc, result, logger)

		elapsed := time.Since(start)
		totalElapsed += elapsed
		processed++
		avg := totalElapsed / time.Duration(processed)
		remaining := avg * time.Duration(total-i-1)

		logger.Info("chunk parsed",
			"chunk", i+1,
			"total_chunks", total,
			"lines", pc.LineCount(),
			"elapsed", elapsed.Round(time.Millisecond),
			"estimated_remaining", remaining.Round(time.Second))

		if cb.OnChunk != nil {
			progress := ChunkProgress{
				Context:     pc,
				Progress:    float64(i+1) / float64(total) * 100,
				ChunkIndex:  i,
				TotalChunks: total,
				Timing:      Timing{AvgChunkTime: avg, EstimatedRemaining: remaining},
			}
			if err := cb.OnChunk(ctx, progress); err != nil {
				return err
			}
		}
	}
	return nil
}

// parseChunk makes one model call for one chunk and decodes the validated
// result.
func (p *Parser) parseChunk(ctx context.Context, chunk string, pc *ParsingContext, index, total int, rf *providers.ResponseFormat) (*ChunkResult, error) {
	req := &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: SystemPrompt()},
			{Role: "user", Content: UserPrompt(chunk, pc, index, total)},
		},
		Model:          p.Model,
		ResponseFormat: rf,
	}

	chatResult, err := p.Client.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	var result ChunkResult
	if err := json.Unmarshal(chatResult.ParsedJSON, &result); err != nil {
		return nil, fmt.Errorf("failed to decode chunk result: %w", err)
	}
	return &result, nil
}
