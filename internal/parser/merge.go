package parser

import (
	"log/slog"

	"offbook/internal/playbook"
)

// MergeIntoContext applies one chunk's result to the accumulating context.
// The merge is idempotent: re-feeding an already-merged result is a no-op
// because every character, act, scene, and line is guarded by an id set.
func MergeIntoContext(ctx *ParsingContext, result *ChunkResult, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	if result.Metadata != nil {
		mergeMetadata(ctx, result.Metadata)
	}

	for _, ch := range result.NewCharacters {
		if _, exists := ctx.usedCharacterIDs[ch.ID]; exists {
			continue
		}
		ctx.usedCharacterIDs[ch.ID] = struct{}{}
		ctx.Characters = append(ctx.Characters, ch)
	}

	for _, act := range result.Acts {
		actIdx := ctx.findAct(act.ID)
		_, seen := ctx.usedActIDs[act.ID]

		switch {
		case actIdx >= 0 && !act.IsNew:
			// Continuation of the existing act.
		case actIdx >= 0 && act.IsNew:
			// The chunk claims a fresh act under an id that already exists.
			// Replacing would drop every scene merged so far, so treat it as
			// a continuation and flag the conflict.
			logger.Warn("chunk marked existing act as new, merging instead",
				"act_id", act.ID)
		default:
			if seen {
				// Id was used by a replayed chunk but the act is gone; skip.
				continue
			}
			ctx.usedActIDs[act.ID] = struct{}{}
			ctx.Acts = append(ctx.Acts, playbook.Act{ID: act.ID, Title: act.Title, Scenes: []playbook.Scene{}})
			actIdx = len(ctx.Acts) - 1
		}
		ctx.CurrentActID = act.ID
		if act.Title != "" && ctx.Acts[actIdx].Title == "" {
			ctx.Acts[actIdx].Title = act.Title
		}

		for _, scene := range act.Scenes {
			sceneIdx := findScene(ctx.Acts[actIdx].Scenes, scene.ID)
			_, sceneSeen := ctx.usedSceneIDs[scene.ID]

			switch {
			case sceneIdx >= 0 && !scene.IsNew:
				// Continuation.
			case sceneIdx >= 0 && scene.IsNew:
				logger.Warn("chunk marked existing scene as new, merging instead",
					"act_id", act.ID, "scene_id", scene.ID)
			default:
				if sceneSeen {
					continue
				}
				ctx.usedSceneIDs[scene.ID] = struct{}{}
				ctx.Acts[actIdx].Scenes = append(ctx.Acts[actIdx].Scenes,
					playbook.Scene{ID: scene.ID, Title: scene.Title, Lines: []playbook.Line{}})
				sceneIdx = len(ctx.Acts[actIdx].Scenes) - 1
			}
			ctx.CurrentSceneID = scene.ID
			if scene.Title != "" && ctx.Acts[actIdx].Scenes[sceneIdx].Title == "" {
				ctx.Acts[actIdx].Scenes[sceneIdx].Title = scene.Title
			}

			for _, line := range scene.Lines {
				if _, used := ctx.usedLineIDs[line.ID]; used {
					continue
				}
				ctx.usedLineIDs[line.ID] = struct{}{}
				ctx.Acts[actIdx].Scenes[sceneIdx].Lines = append(ctx.Acts[actIdx].Scenes[sceneIdx].Lines, line)
				ctx.LastLineNumber++
			}
		}
	}
}

// mergeMetadata overwrites metadata fields whenever the chunk supplies a
// non-empty value (last non-empty wins).
func mergeMetadata(ctx *ParsingContext, md *ChunkMetadata) {
	if md.Title != "" {
		ctx.Title = md.Title
	}
	if md.Author != "" {
		ctx.Author = md.Author
	}
	if md.Year != 0 {
		ctx.Year = md.Year
	}
	if md.Genre != "" {
		ctx.Genre = md.Genre
	}
	if md.Description != "" {
		ctx.Description = md.Description
	}
}

func (c *ParsingContext) findAct(id string) int {
	for i := range c.Acts {
		if c.Acts[i].ID == id {
			return i
		}
	}
	return -1
}

func findScene(scenes []playbook.Scene, id string) int {
	for i := range scenes {
		if scenes[i].ID == id {
			return i
		}
	}
	return -1
}
