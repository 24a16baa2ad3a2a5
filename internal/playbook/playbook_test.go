package playbook

import (
	"testing"
	"time"
)

func validPlaybook() *Playbook {
	return &Playbook{
		Title:  "Romeo and Juliet",
		Author: "William Shakespeare",
		Year:   1597,
		Genre:  "Tragedy",
		Characters: []Character{
			{ID: "romeo", Name: "Romeo"},
			{ID: "juliet", Name: "Juliet"},
		},
		Acts: []Act{
			{
				ID:    "act-1",
				Title: "Act I",
				Scenes: []Scene{
					{
						ID:    "scene-1",
						Title: "Scene 1",
						Lines: []Line{
							{ID: "line-1", Type: LineTypeDialogue, Text: "But soft!", CharacterID: "romeo"},
							{ID: "line-2", Type: LineTypeStageDirection, Text: "Juliet appears above at a window."},
						},
					},
				},
			},
		},
	}
}

func TestValidateAcceptsCompletePlaybook(t *testing.T) {
	if err := Validate(validPlaybook()); err != nil {
		t.Fatalf("expected valid playbook, got: %v", err)
	}
}

func TestValidateRejectsMissingTitle(t *testing.T) {
	p := validPlaybook()
	p.Title = ""
	if err := Validate(p); err == nil {
		t.Fatal("expected validation error for empty title")
	}
}

func TestValidateRejectsEmptyLineText(t *testing.T) {
	p := validPlaybook()
	p.Acts[0].Scenes[0].Lines[0].Text = ""
	if err := Validate(p); err == nil {
		t.Fatal("expected validation error for empty line text")
	}
}

func TestValidateRejectsUnknownLineType(t *testing.T) {
	p := validPlaybook()
	p.Acts[0].Scenes[0].Lines[0].Type = "soliloquy"
	if err := Validate(p); err == nil {
		t.Fatal("expected validation error for unknown line type")
	}
}

func TestFillDefaults(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	p := &Playbook{}
	p.FillDefaults(now)

	if p.Title != DefaultTitle {
		t.Errorf("expected default title, got %q", p.Title)
	}
	if p.Author != DefaultAuthor {
		t.Errorf("expected default author, got %q", p.Author)
	}
	if p.Year != 2026 {
		t.Errorf("expected current year, got %d", p.Year)
	}
	if p.Genre != DefaultGenre {
		t.Errorf("expected default genre, got %q", p.Genre)
	}
	if p.Characters == nil || p.Acts == nil {
		t.Error("expected empty slices, got nil")
	}

	// Supplied metadata is not overwritten.
	p2 := &Playbook{Title: "Hamlet", Author: "Shakespeare", Year: 1601, Genre: "Tragedy"}
	p2.FillDefaults(now)
	if p2.Title != "Hamlet" || p2.Year != 1601 {
		t.Error("FillDefaults overwrote supplied metadata")
	}
}

func TestLineCount(t *testing.T) {
	p := validPlaybook()
	if got := p.LineCount(); got != 2 {
		t.Errorf("expected 2 lines, got %d", got)
	}
}
