package pipeline

import (
	"log/slog"
	"strings"

	"offbook/internal/playbook"
)

// repairCharacterCase rewrites line character references whose case does not
// match the canonical character id. Models occasionally emit the script's
// all-caps speaker labels (JULIET) instead of the registered id (juliet).
func repairCharacterCase(p *playbook.Playbook, logger *slog.Logger) int {
	canonical := make(map[string]string, len(p.Characters))
	for _, ch := range p.Characters {
		canonical[strings.ToLower(ch.ID)] = ch.ID
	}

	repaired := 0
	fix := func(id string) string {
		if id == "" {
			return id
		}
		if _, ok := canonical[id]; ok && canonical[strings.ToLower(id)] == id {
			return id
		}
		if want, ok := canonical[strings.ToLower(id)]; ok && want != id {
			repaired++
			return want
		}
		return id
	}

	for ai := range p.Acts {
		for si := range p.Acts[ai].Scenes {
			for li := range p.Acts[ai].Scenes[si].Lines {
				line := &p.Acts[ai].Scenes[si].Lines[li]
				line.CharacterID = fix(line.CharacterID)
				for ci, id := range line.CharacterIDs {
					line.CharacterIDs[ci] = fix(id)
				}
			}
		}
	}

	if repaired > 0 {
		logger.Info("repaired character id casing", "count", repaired)
	}
	return repaired
}

// cleanupOrphans removes lines with no text and downgrades dialogue lines
// whose character reference cannot be resolved to stage directions, keeping
// the text rather than discarding content.
func cleanupOrphans(p *playbook.Playbook, logger *slog.Logger) (dropped, downgraded int) {
	known := make(map[string]struct{}, len(p.Characters))
	for _, ch := range p.Characters {
		known[ch.ID] = struct{}{}
	}

	// A line stays dialogue when any of its character references resolves.
	// Unresolved references are filtered out; the whole attribution is gone
	// only when nothing resolved.
	resolve := func(line *playbook.Line) bool {
		if line.CharacterID != "" {
			if _, ok := known[line.CharacterID]; !ok {
				line.CharacterID = ""
			}
		}
		if len(line.CharacterIDs) > 0 {
			kept := line.CharacterIDs[:0]
			for _, id := range line.CharacterIDs {
				if _, ok := known[id]; ok {
					kept = append(kept, id)
				}
			}
			if len(kept) == 0 {
				line.CharacterIDs = nil
			} else {
				line.CharacterIDs = kept
			}
		}
		return line.CharacterID != "" || len(line.CharacterIDs) > 0
	}

	for ai := range p.Acts {
		for si := range p.Acts[ai].Scenes {
			scene := &p.Acts[ai].Scenes[si]
			kept := scene.Lines[:0]
			for _, line := range scene.Lines {
				if strings.TrimSpace(line.Text) == "" {
					dropped++
					continue
				}
				if line.Type == playbook.LineTypeDialogue && !resolve(&line) {
					line.Type = playbook.LineTypeStageDirection
					line.CharacterID = ""
					line.CharacterIDs = nil
					downgraded++
				}
				kept = append(kept, line)
			}
			scene.Lines = kept
		}
	}

	if dropped > 0 || downgraded > 0 {
		logger.Info("cleaned up orphan lines", "dropped", dropped, "downgraded", downgraded)
	}
	return dropped, downgraded
}
