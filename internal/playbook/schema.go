package playbook

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is the JSON schema a finished playbook must satisfy before it is
// persisted. Validation failures here are terminal pipeline failures.
var Schema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":       map[string]any{"type": "string", "minLength": 1},
		"author":      map[string]any{"type": "string", "minLength": 1},
		"year":        map[string]any{"type": "integer"},
		"genre":       map[string]any{"type": "string"},
		"description": map[string]any{"type": "string"},
		"characters": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":          map[string]any{"type": "string", "minLength": 1},
					"name":        map[string]any{"type": "string", "minLength": 1},
					"description": map[string]any{"type": "string"},
				},
				"required": []string{"id", "name"},
			},
		},
		"acts": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":    map[string]any{"type": "string", "minLength": 1},
					"title": map[string]any{"type": "string"},
					"scenes": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"id":    map[string]any{"type": "string", "minLength": 1},
								"title": map[string]any{"type": "string"},
								"lines": map[string]any{
									"type": "array",
									"items": map[string]any{
										"type": "object",
										"properties": map[string]any{
											"id":   map[string]any{"type": "string", "minLength": 1},
											"type": map[string]any{"enum": []string{"dialogue", "stage_direction"}},
											"text": map[string]any{"type": "string", "minLength": 1},
											"characterId": map[string]any{
												"type": "string",
											},
											"characterIds": map[string]any{
												"type":  "array",
												"items": map[string]any{"type": "string"},
											},
										},
										"required": []string{"id", "type", "text"},
									},
								},
							},
							"required": []string{"id", "lines"},
						},
					},
				},
				"required": []string{"id", "scenes"},
			},
		},
	},
	"required": []string{"title", "author", "characters", "acts"},
}

var compiledSchema = mustCompile(Schema)

func mustCompile(schema map[string]any) *jsonschema.Schema {
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("marshal playbook schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("playbook.json", bytes.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("load playbook schema: %v", err))
	}
	compiled, err := compiler.Compile("playbook.json")
	if err != nil {
		panic(fmt.Sprintf("compile playbook schema: %v", err))
	}
	return compiled
}

// Validate checks a playbook against the schema.
// The playbook is round-tripped through JSON so validation sees exactly what
// will be persisted.
func Validate(p *Playbook) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to serialize playbook for validation: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode playbook for validation: %w", err)
	}

	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("playbook does not match schema: %w", err)
	}
	return nil
}
