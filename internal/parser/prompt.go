package parser

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPromptTmpl string

var userTemplate = template.Must(template.New("user").Parse(userPromptTmpl))

// SystemPrompt returns the system prompt for chunk parsing.
func SystemPrompt() string {
	return systemPrompt
}

type userPromptData struct {
	ChunkNumber     int
	TotalChunks     int
	Title           string
	Author          string
	KnownCharacters string
	CurrentActID    string
	CurrentSceneID  string
	SeenActIDs      string
	SeenSceneIDs    string
	LastLineNumber  int
	NextLineNumber  int
	ChunkText       string
}

// UserPrompt builds the per-chunk user prompt from the accumulated context.
// chunkIndex is zero-based.
func UserPrompt(chunk string, ctx *ParsingContext, chunkIndex, totalChunks int) string {
	var characters strings.Builder
	for _, ch := range ctx.Characters {
		fmt.Fprintf(&characters, "- %s (%s)\n", ch.ID, ch.Name)
	}

	data := userPromptData{
		ChunkNumber:     chunkIndex + 1,
		TotalChunks:     totalChunks,
		Title:           ctx.Title,
		Author:          ctx.Author,
		KnownCharacters: strings.TrimRight(characters.String(), "\n"),
		CurrentActID:    ctx.CurrentActID,
		CurrentSceneID:  ctx.CurrentSceneID,
		SeenActIDs:      strings.Join(sortedKeys(ctx.usedActIDs), ", "),
		SeenSceneIDs:    strings.Join(sortedKeys(ctx.usedSceneIDs), ", "),
		LastLineNumber:  ctx.LastLineNumber,
		NextLineNumber:  ctx.LastLineNumber + 1,
		ChunkText:       chunk,
	}

	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, data); err != nil {
		return userPromptTmpl
	}
	return buf.String()
}
