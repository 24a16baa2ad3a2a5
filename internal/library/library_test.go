package library

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"offbook/internal/playbook"
	"offbook/internal/queue"
)

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	store, err := queue.Open(filepath.Join(t.TempDir(), "offbook.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	lib, err := New(store.DB(), nil)
	if err != nil {
		t.Fatalf("new library: %v", err)
	}
	return lib
}

func samplePlaybook(title string) *playbook.Playbook {
	p := &playbook.Playbook{
		Title:  title,
		Author: "William Shakespeare",
		Characters: []playbook.Character{
			{ID: "hamlet", Name: "Hamlet"},
		},
		Acts: []playbook.Act{{
			ID: "act-1", Title: "Act I",
			Scenes: []playbook.Scene{{
				ID: "scene-1", Title: "Scene 1",
				Lines: []playbook.Line{
					{ID: "line-1", Type: playbook.LineTypeDialogue, Text: "Who's there?", CharacterID: "hamlet"},
				},
			}},
		}},
	}
	p.FillDefaults(time.Now())
	return p
}

func TestSaveAndGetPlaybook(t *testing.T) {
	lib := newTestLibrary(t)

	id, err := lib.SavePlaybook(context.Background(), samplePlaybook("Hamlet"))
	if err != nil {
		t.Fatalf("SavePlaybook: %v", err)
	}
	if id == "" {
		t.Fatal("empty playbook id")
	}

	got, err := lib.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Hamlet" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.ID != id {
		t.Errorf("ID = %q, want %q", got.ID, id)
	}
	if got.LineCount() != 1 {
		t.Errorf("LineCount = %d", got.LineCount())
	}
}

func TestGetMissingPlaybook(t *testing.T) {
	lib := newTestLibrary(t)
	_, err := lib.Get(context.Background(), "nope")
	if !errors.Is(err, ErrPlaybookNotFound) {
		t.Errorf("err = %v, want ErrPlaybookNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	lib := newTestLibrary(t)

	first := samplePlaybook("First")
	first.CreatedAt = time.Now().Add(-time.Hour)
	if _, err := lib.SavePlaybook(context.Background(), first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if _, err := lib.SavePlaybook(context.Background(), samplePlaybook("Second")); err != nil {
		t.Fatalf("save second: %v", err)
	}

	summaries, err := lib.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	if summaries[0].Title != "Second" {
		t.Errorf("order wrong: %q first", summaries[0].Title)
	}
	if summaries[0].Lines != 1 || summaries[0].Acts != 1 || summaries[0].Characters != 1 {
		t.Errorf("counts wrong: %+v", summaries[0])
	}
}

func TestDeletePlaybook(t *testing.T) {
	lib := newTestLibrary(t)

	id, err := lib.SavePlaybook(context.Background(), samplePlaybook("Hamlet"))
	if err != nil {
		t.Fatalf("SavePlaybook: %v", err)
	}

	if err := lib.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := lib.Get(context.Background(), id); !errors.Is(err, ErrPlaybookNotFound) {
		t.Errorf("playbook still readable after delete")
	}
	if err := lib.Delete(context.Background(), id); !errors.Is(err, ErrPlaybookNotFound) {
		t.Errorf("second delete err = %v, want ErrPlaybookNotFound", err)
	}
}
