// Package playbook defines the structured document produced by parsing a play
// script, plus schema validation for finished documents.
// This package has no dependencies on other offbook packages to avoid import cycles.
package playbook

import "time"

// LineType distinguishes spoken dialogue from stage directions.
type LineType string

const (
	LineTypeDialogue       LineType = "dialogue"
	LineTypeStageDirection LineType = "stage_direction"
)

// Line is a single unit of script text within a scene.
// Dialogue lines carry a character attribution; shared lines (spoken in
// unison) use CharacterIDs instead of CharacterID.
type Line struct {
	ID           string   `json:"id"`
	Type         LineType `json:"type"`
	Text         string   `json:"text"`
	CharacterID  string   `json:"characterId,omitempty"`
	CharacterIDs []string `json:"characterIds,omitempty"`
}

// Scene is an ordered run of lines within an act.
type Scene struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Lines []Line `json:"lines"`
}

// Act groups scenes.
type Act struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Scenes []Scene `json:"scenes"`
}

// Character is a member of the cast.
type Character struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Playbook is the finished structured document for one play script.
type Playbook struct {
	ID          string      `json:"id,omitempty"`
	Title       string      `json:"title"`
	Author      string      `json:"author"`
	Year        int         `json:"year"`
	Genre       string      `json:"genre"`
	Description string      `json:"description"`
	Characters  []Character `json:"characters"`
	Acts        []Act       `json:"acts"`
	CreatedAt   time.Time   `json:"createdAt,omitempty"`
}

// Default metadata used when no chunk supplied a value.
const (
	DefaultTitle  = "Untitled Play"
	DefaultAuthor = "Unknown Author"
	DefaultGenre  = "Drama"
)

// FillDefaults populates missing metadata on a draft playbook.
func (p *Playbook) FillDefaults(now time.Time) {
	if p.Title == "" {
		p.Title = DefaultTitle
	}
	if p.Author == "" {
		p.Author = DefaultAuthor
	}
	if p.Year == 0 {
		p.Year = now.Year()
	}
	if p.Genre == "" {
		p.Genre = DefaultGenre
	}
	if p.Characters == nil {
		p.Characters = []Character{}
	}
	if p.Acts == nil {
		p.Acts = []Act{}
	}
}

// LineCount returns the total number of lines across all acts and scenes.
func (p *Playbook) LineCount() int {
	n := 0
	for _, act := range p.Acts {
		for _, scene := range act.Scenes {
			n += len(scene.Lines)
		}
	}
	return n
}

// CharacterIndex returns a map of character id to character.
func (p *Playbook) CharacterIndex() map[string]Character {
	idx := make(map[string]Character, len(p.Characters))
	for _, c := range p.Characters {
		idx[c.ID] = c
	}
	return idx
}
