package providers

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseStructuredJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "plain JSON",
			content: `{"title":"Hamlet"}`,
			want:    `{"title":"Hamlet"}`,
		},
		{
			name:    "fenced JSON",
			content: "```json\n{\"title\":\"Hamlet\"}\n```",
			want:    `{"title":"Hamlet"}`,
		},
		{
			name:    "fence without language tag",
			content: "```\n{\"title\":\"Hamlet\"}\n```",
			want:    `{"title":"Hamlet"}`,
		},
		{
			name:    "surrounding prose",
			content: "Here is the result:\n{\"title\":\"Hamlet\"}\nHope that helps!",
			want:    `{"title":"Hamlet"}`,
		},
		{
			name:    "whitespace only",
			content: "   \n\t  ",
			wantErr: true,
		},
		{
			name:    "no JSON at all",
			content: "I could not parse this chunk.",
			wantErr: true,
		},
		{
			name:    "truncated JSON",
			content: `{"title":"Ham`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStructuredJSON(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseStructuredJSON: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateStructuredJSON(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {"type": "string"}
		},
		"required": ["title"]
	}`)

	if err := validateStructuredJSON(schema, json.RawMessage(`{"title":"Hamlet"}`)); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}

	err := validateStructuredJSON(schema, json.RawMessage(`{"title":42}`))
	if err == nil {
		t.Error("expected validation error for wrong type")
	}

	err = validateStructuredJSON(schema, json.RawMessage(`{}`))
	if err == nil {
		t.Error("expected validation error for missing required field")
	}

	// No schema means no validation.
	if err := validateStructuredJSON(nil, json.RawMessage(`{"anything":true}`)); err != nil {
		t.Errorf("nil schema should skip validation: %v", err)
	}
}

func TestExtractValidationSchemaEnvelopes(t *testing.T) {
	core := `{"type":"object"}`

	tests := []struct {
		name string
		raw  string
	}{
		{"bare document", core},
		{"schema envelope", `{"name":"chunk_result","strict":false,"schema":` + core + `}`},
		{"json_schema envelope", `{"type":"json_schema","json_schema":{"name":"chunk_result","schema":` + core + `}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractValidationSchema(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("extractValidationSchema: %v", err)
			}
			var doc map[string]any
			if err := json.Unmarshal(got, &doc); err != nil {
				t.Fatalf("result not valid JSON: %v", err)
			}
			if doc["type"] != "object" {
				t.Errorf("expected core schema document, got %s", got)
			}
		})
	}
}

func TestFinalizeStructuredResultRejectsInvalid(t *testing.T) {
	rf := &ResponseFormat{
		Type: "json_schema",
		JSONSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"count": {"type": "integer"}},
			"required": ["count"]
		}`),
	}

	result := &ChatResult{Content: `{"count":"three"}`}
	err := finalizeStructuredResult(result, rf)
	if err == nil {
		t.Fatal("expected schema violation error")
	}
	if !strings.Contains(err.Error(), "schema") {
		t.Errorf("unexpected error: %v", err)
	}

	result = &ChatResult{Content: "```json\n{\"count\":3}\n```"}
	if err := finalizeStructuredResult(result, rf); err != nil {
		t.Fatalf("finalizeStructuredResult: %v", err)
	}
	if string(result.ParsedJSON) != `{"count":3}` {
		t.Errorf("ParsedJSON = %s", result.ParsedJSON)
	}
}
