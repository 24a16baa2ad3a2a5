package parser

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"offbook/internal/playbook"
	"offbook/internal/providers"
)

func chunkResponse(t *testing.T, result ChunkResult) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal chunk response: %v", err)
	}
	return data
}

func twoChunkText() string {
	// Two chunks at size 60: each line is well under the cap, and the total
	// forces a flush partway through.
	return strings.Join([]string{
		"ACT I",
		"SCENE 1. A desert place. Thunder and lightning.",
		"FIRST WITCH: When shall we three meet again?",
		"SECOND WITCH: When the hurlyburly's done.",
	}, "\n")
}

func TestParseMergesSequentialChunks(t *testing.T) {
	client := providers.NewMockClient(
		chunkResponse(t, ChunkResult{
			Metadata:      &ChunkMetadata{Title: "Macbeth"},
			NewCharacters: []playbook.Character{{ID: "first-witch", Name: "First Witch"}},
			Acts: []ChunkAct{{
				ID: "act-1", Title: "Act I", IsNew: true,
				Scenes: []ChunkScene{{
					ID: "scene-1", IsNew: true,
					Lines: []playbook.Line{
						{ID: "line-1", Type: playbook.LineTypeDialogue, Text: "When shall we three meet again?", CharacterID: "first-witch"},
					},
				}},
			}},
		}),
		chunkResponse(t, ChunkResult{
			NewCharacters: []playbook.Character{{ID: "second-witch", Name: "Second Witch"}},
			Acts: []ChunkAct{{
				ID: "act-1", IsNew: false,
				Scenes: []ChunkScene{{
					ID: "scene-1", IsNew: false,
					Lines: []playbook.Line{
						{ID: "line-2", Type: playbook.LineTypeDialogue, Text: "When the hurlyburly's done.", CharacterID: "second-witch"},
					},
				}},
			}},
		}),
	)

	p := &Parser{Client: client, ChunkSize: 100}
	pc := NewParsingContext()

	var progressLog []ChunkProgress
	err := p.Parse(context.Background(), twoChunkText(), pc, 0, Callbacks{
		OnChunk: func(_ context.Context, progress ChunkProgress) error {
			progressLog = append(progressLog, progress)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if client.RequestCount() != 2 {
		t.Errorf("RequestCount = %d, want 2", client.RequestCount())
	}
	if pc.Title != "Macbeth" {
		t.Errorf("Title = %q", pc.Title)
	}
	if len(pc.Acts) != 1 || len(pc.Acts[0].Scenes) != 1 {
		t.Fatalf("structure: %d acts", len(pc.Acts))
	}
	if pc.LineCount() != 2 {
		t.Errorf("LineCount = %d, want 2", pc.LineCount())
	}
	if pc.LastLineNumber != 2 {
		t.Errorf("LastLineNumber = %d, want 2", pc.LastLineNumber)
	}

	if len(progressLog) != 2 {
		t.Fatalf("got %d progress reports, want 2", len(progressLog))
	}
	if progressLog[0].Progress != 50 || progressLog[1].Progress != 100 {
		t.Errorf("progress = %.0f, %.0f; want 50, 100", progressLog[0].Progress, progressLog[1].Progress)
	}
	if progressLog[1].Timing.AvgChunkTime < 0 {
		t.Error("negative average chunk time")
	}
	if progressLog[1].Timing.EstimatedRemaining != 0 {
		t.Errorf("final EstimatedRemaining = %v, want 0", progressLog[1].Timing.EstimatedRemaining)
	}
}

func TestParseResumeSkipsCompletedChunks(t *testing.T) {
	client := providers.NewMockClient(
		chunkResponse(t, ChunkResult{
			Acts: []ChunkAct{{
				ID: "act-1", IsNew: false,
				Scenes: []ChunkScene{{
					ID: "scene-1", IsNew: false,
					Lines: []playbook.Line{
						{ID: "line-2", Type: playbook.LineTypeDialogue, Text: "resumed line", CharacterID: "first-witch"},
					},
				}},
			}},
		}),
	)

	pc := NewParsingContext()
	MergeIntoContext(pc, &ChunkResult{
		Acts: []ChunkAct{{
			ID: "act-1", IsNew: true,
			Scenes: []ChunkScene{{
				ID: "scene-1", IsNew: true,
				Lines: []playbook.Line{
					{ID: "line-1", Type: playbook.LineTypeDialogue, Text: "first line", CharacterID: "first-witch"},
				},
			}},
		}},
	}, nil)

	p := &Parser{Client: client, ChunkSize: 100}

	var indices []int
	err := p.Parse(context.Background(), twoChunkText(), pc, 1, Callbacks{
		OnChunk: func(_ context.Context, progress ChunkProgress) error {
			indices = append(indices, progress.ChunkIndex)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if client.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1 (first chunk already done)", client.RequestCount())
	}
	if len(indices) != 1 || indices[0] != 1 {
		t.Errorf("processed chunks %v, want [1]", indices)
	}
	if pc.LineCount() != 2 {
		t.Errorf("LineCount = %d, want 2", pc.LineCount())
	}
}

func TestParseChunkFailureAnnotated(t *testing.T) {
	client := providers.NewMockClient(chunkResponse(t, ChunkResult{Acts: []ChunkAct{}}))
	client.FailAfter = 1

	p := &Parser{Client: client, ChunkSize: 100}
	err := p.Parse(context.Background(), twoChunkText(), NewParsingContext(), 0, Callbacks{})
	if err == nil {
		t.Fatal("expected chunk failure")
	}

	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("error not a ChunkError: %v", err)
	}
	if chunkErr.ChunkIndex != 1 || chunkErr.TotalChunks != 2 {
		t.Errorf("ChunkError = %d/%d, want 1/2", chunkErr.ChunkIndex, chunkErr.TotalChunks)
	}
	if !strings.Contains(err.Error(), "chunk 2/2") {
		t.Errorf("error message missing chunk position: %v", err)
	}
}

func TestParseBeforeChunkStops(t *testing.T) {
	client := providers.NewMockClient(chunkResponse(t, ChunkResult{Acts: []ChunkAct{}}))

	stop := errors.New("stop requested")
	p := &Parser{Client: client, ChunkSize: 100}
	err := p.Parse(context.Background(), twoChunkText(), NewParsingContext(), 0, Callbacks{
		BeforeChunk: func(_ context.Context, chunkIndex int) error {
			if chunkIndex == 1 {
				return stop
			}
			return nil
		},
	})
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want stop sentinel", err)
	}
	if client.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1 (second chunk must not run)", client.RequestCount())
	}
}

func TestParseEmptyText(t *testing.T) {
	p := &Parser{Client: providers.NewMockClient(), ChunkSize: 100}
	if err := p.Parse(context.Background(), "", NewParsingContext(), 0, Callbacks{}); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestParseInvalidResumePoint(t *testing.T) {
	p := &Parser{Client: providers.NewMockClient(), ChunkSize: 100}
	err := p.Parse(context.Background(), twoChunkText(), NewParsingContext(), 10, Callbacks{})
	if err == nil {
		t.Error("expected error for resume point past total chunks")
	}
}
