package parser

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"offbook/internal/playbook"
)

// ParsingContext is the accumulating parse result, mutated once per chunk by
// the merge step and serialized into the job row as a checkpoint after each
// chunk. It is private to the pipeline execution holding the job's lease.
type ParsingContext struct {
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	Year        int    `json:"year,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Description string `json:"description,omitempty"`

	Characters []playbook.Character `json:"characters"`
	Acts       []playbook.Act       `json:"acts"`

	// Continuity pointers: the act/scene a subsequent chunk continues unless
	// it signals a new one.
	CurrentActID   string `json:"currentActId,omitempty"`
	CurrentSceneID string `json:"currentSceneId,omitempty"`

	// LastLineNumber is fed into the next chunk's prompt so new line ids
	// continue numbering instead of colliding.
	LastLineNumber int `json:"lastLineNumber"`

	usedCharacterIDs map[string]struct{}
	usedActIDs       map[string]struct{}
	usedSceneIDs     map[string]struct{}
	usedLineIDs      map[string]struct{}
}

// NewParsingContext creates an empty context ready for chunk merges.
func NewParsingContext() *ParsingContext {
	return &ParsingContext{
		Characters:       []playbook.Character{},
		Acts:             []playbook.Act{},
		usedCharacterIDs: make(map[string]struct{}),
		usedActIDs:       make(map[string]struct{}),
		usedSceneIDs:     make(map[string]struct{}),
		usedLineIDs:      make(map[string]struct{}),
	}
}

// checkpointState is the serialized form of ParsingContext. The id sets are
// written as sorted arrays and rebuilt into maps on restore.
type checkpointState struct {
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	Year        int    `json:"year,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Description string `json:"description,omitempty"`

	Characters []playbook.Character `json:"characters"`
	Acts       []playbook.Act       `json:"acts"`

	CurrentActID   string `json:"currentActId,omitempty"`
	CurrentSceneID string `json:"currentSceneId,omitempty"`
	LastLineNumber int    `json:"lastLineNumber"`

	UsedCharacterIDs []string `json:"usedCharacterIds"`
	UsedActIDs       []string `json:"usedActIds"`
	UsedSceneIDs     []string `json:"usedSceneIds"`
	UsedLineIDs      []string `json:"usedLineIds"`
}

// Checkpoint pairs a serialized context with chunk-progress counters.
type Checkpoint struct {
	Context         *ParsingContext
	CompletedChunks int
	TotalChunks     int
}

// Serialize writes the context to JSON with id sets flattened into sorted
// arrays, suitable for storage in the job row.
func (c *ParsingContext) Serialize() ([]byte, error) {
	state := checkpointState{
		Title:            c.Title,
		Author:           c.Author,
		Year:             c.Year,
		Genre:            c.Genre,
		Description:      c.Description,
		Characters:       c.Characters,
		Acts:             c.Acts,
		CurrentActID:     c.CurrentActID,
		CurrentSceneID:   c.CurrentSceneID,
		LastLineNumber:   c.LastLineNumber,
		UsedCharacterIDs: sortedKeys(c.usedCharacterIDs),
		UsedActIDs:       sortedKeys(c.usedActIDs),
		UsedSceneIDs:     sortedKeys(c.usedSceneIDs),
		UsedLineIDs:      sortedKeys(c.usedLineIDs),
	}
	if state.Characters == nil {
		state.Characters = []playbook.Character{}
	}
	if state.Acts == nil {
		state.Acts = []playbook.Act{}
	}
	return json.Marshal(state)
}

// RestoreContext rebuilds a ParsingContext from its serialized checkpoint
// form, reconstituting the id arrays into membership sets.
func RestoreContext(data []byte) (*ParsingContext, error) {
	var state checkpointState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to restore parsing context: %w", err)
	}

	ctx := NewParsingContext()
	ctx.Title = state.Title
	ctx.Author = state.Author
	ctx.Year = state.Year
	ctx.Genre = state.Genre
	ctx.Description = state.Description
	if state.Characters != nil {
		ctx.Characters = state.Characters
	}
	if state.Acts != nil {
		ctx.Acts = state.Acts
	}
	ctx.CurrentActID = state.CurrentActID
	ctx.CurrentSceneID = state.CurrentSceneID
	ctx.LastLineNumber = state.LastLineNumber

	for _, id := range state.UsedCharacterIDs {
		ctx.usedCharacterIDs[id] = struct{}{}
	}
	for _, id := range state.UsedActIDs {
		ctx.usedActIDs[id] = struct{}{}
	}
	for _, id := range state.UsedSceneIDs {
		ctx.usedSceneIDs[id] = struct{}{}
	}
	for _, id := range state.UsedLineIDs {
		ctx.usedLineIDs[id] = struct{}{}
	}
	return ctx, nil
}

// LineCount returns the total number of merged lines.
func (c *ParsingContext) LineCount() int {
	n := 0
	for _, act := range c.Acts {
		for _, scene := range act.Scenes {
			n += len(scene.Lines)
		}
	}
	return n
}

// ToPlaybook converts the accumulated context into a final Playbook draft.
// Missing metadata is filled with defaults.
func (c *ParsingContext) ToPlaybook(now time.Time) *playbook.Playbook {
	p := &playbook.Playbook{
		Title:       c.Title,
		Author:      c.Author,
		Year:        c.Year,
		Genre:       c.Genre,
		Description: c.Description,
		Characters:  c.Characters,
		Acts:        c.Acts,
	}
	p.FillDefaults(now)
	return p
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
