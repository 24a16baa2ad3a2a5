package parser

import "offbook/internal/playbook"

// ChunkResult is the schema-validated output of one model call.
type ChunkResult struct {
	Metadata      *ChunkMetadata       `json:"metadata,omitempty"`
	NewCharacters []playbook.Character `json:"newCharacters,omitempty"`
	Acts          []ChunkAct           `json:"acts"`
}

// ChunkMetadata carries play-level metadata supplied by a chunk. Any chunk
// may supply it, though it typically appears only in the first.
type ChunkMetadata struct {
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	Year        int    `json:"year,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Description string `json:"description,omitempty"`
}

// ChunkAct is an act as reported by a chunk. IsNew=false means continue the
// existing act with the same id.
type ChunkAct struct {
	ID     string       `json:"id"`
	Title  string       `json:"title,omitempty"`
	IsNew  bool         `json:"isNew"`
	Scenes []ChunkScene `json:"scenes"`
}

// ChunkScene is a scene as reported by a chunk.
type ChunkScene struct {
	ID    string          `json:"id"`
	Title string          `json:"title,omitempty"`
	IsNew bool            `json:"isNew"`
	Lines []playbook.Line `json:"lines"`
}

// ResultSchema is the JSON schema enforced on every chunk result. The model
// collaborator is a schema-validated RPC, not free text.
var ResultSchema = map[string]any{
	"type": "json_schema",
	"json_schema": map[string]any{
		"name":   "chunk_result",
		"strict": false,
		"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"metadata": map[string]any{
					"type": []string{"object", "null"},
					"properties": map[string]any{
						"title":       map[string]any{"type": "string"},
						"author":      map[string]any{"type": "string"},
						"year":        map[string]any{"type": "integer"},
						"genre":       map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
					},
					"additionalProperties": false,
				},
				"newCharacters": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id":          map[string]any{"type": "string"},
							"name":        map[string]any{"type": "string"},
							"description": map[string]any{"type": "string"},
						},
						"required":             []string{"id", "name"},
						"additionalProperties": false,
					},
				},
				"acts": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id":    map[string]any{"type": "string"},
							"title": map[string]any{"type": "string"},
							"isNew": map[string]any{"type": "boolean"},
							"scenes": map[string]any{
								"type": "array",
								"items": map[string]any{
									"type": "object",
									"properties": map[string]any{
										"id":    map[string]any{"type": "string"},
										"title": map[string]any{"type": "string"},
										"isNew": map[string]any{"type": "boolean"},
										"lines": map[string]any{
											"type": "array",
											"items": map[string]any{
												"type": "object",
												"properties": map[string]any{
													"id":   map[string]any{"type": "string"},
													"type": map[string]any{"type": "string", "enum": []string{"dialogue", "stage_direction"}},
													"text": map[string]any{"type": "string"},
													"characterId": map[string]any{
														"type": "string",
													},
													"characterIds": map[string]any{
														"type":  "array",
														"items": map[string]any{"type": "string"},
													},
												},
												"required":             []string{"id", "type", "text"},
												"additionalProperties": false,
											},
										},
									},
									"required":             []string{"id", "isNew", "lines"},
									"additionalProperties": false,
								},
							},
						},
						"required":             []string{"id", "isNew", "scenes"},
						"additionalProperties": false,
					},
				},
			},
			"required":             []string{"acts"},
			"additionalProperties": false,
		},
	},
}
