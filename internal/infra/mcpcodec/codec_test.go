package mcpcodec

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jentic/internal/domain"
	"jentic/internal/tooladapter"
)

const toolDefinitionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "inputSchema"],
  "properties": {
    "_meta": { "type": "object" },
    "annotations": { "$ref": "#/$defs/toolAnnotations" },
    "description": { "type": "string" },
    "inputSchema": { "type": "object" },
    "name": { "type": "string" },
    "outputSchema": { "type": "object" },
    "title": { "type": "string" }
  },
  "additionalProperties": true,
  "$defs": {
    "toolAnnotations": {
      "type": "object",
      "properties": {
        "idempotentHint": { "type": "boolean" },
        "readOnlyHint": { "type": "boolean" },
        "destructiveHint": { "type": ["boolean", "null"] },
        "openWorldHint": { "type": ["boolean", "null"] },
        "title": { "type": "string" }
      },
      "additionalProperties": true
    }
  }
}`

func validateAgainstSchema(t *testing.T, schemaJSON string, payload []byte) {
	t.Helper()

	var schema jsonschema.Schema
	require.NoError(t, json.Unmarshal([]byte(schemaJSON), &schema))

	resolved, err := schema.Resolve(nil)
	require.NoError(t, err)

	var decoded any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.NoError(t, resolved.Validate(decoded))
}

func restaurantDefinition(t *testing.T) domain.ToolDefinition {
	t.Helper()
	input := &domain.Schema{
		Type: domain.TypeSet{domain.TypeObject},
		Properties: map[string]*domain.Schema{
			"area": {Type: domain.TypeSet{domain.TypeString}},
		},
		Required: []string{"area"},
	}
	tool, err := tooladapter.MCPTool("Search_restaurants", "Find restaurants (API: Yelp)", input)
	require.NoError(t, err)
	return domain.ToolDefinition{
		Name:        "Search_restaurants",
		Description: "Find restaurants (API: Yelp)",
		Format:      domain.ToolFormatMCP,
		ID:          domain.NewOperationID("5b1f3c1e"),
		InputSchema: input,
		Spec:        tool,
	}
}

func TestToolFromDefinition(t *testing.T) {
	def := restaurantDefinition(t)

	tool, err := ToolFromDefinition(def)
	require.NoError(t, err)
	assert.Equal(t, "Search_restaurants", tool.Name)
	assert.True(t, IsObjectSchema(tool.InputSchema))
	require.NotNil(t, tool.Annotations)
	require.NotNil(t, tool.Annotations.OpenWorldHint)
	assert.True(t, *tool.Annotations.OpenWorldHint)

	id, ok := OperationIDFromTool(tool)
	require.True(t, ok)
	assert.Equal(t, def.ID, id)

	raw, err := MarshalTool(tool)
	require.NoError(t, err)
	validateAgainstSchema(t, toolDefinitionSchema, raw)

	// the generated spec is left untouched
	assert.Nil(t, def.Spec.(*mcp.Tool).Meta)
}

func TestToolFromDefinition_RejectsOtherFormats(t *testing.T) {
	_, err := ToolFromDefinition(domain.ToolDefinition{Name: "x", Format: domain.ToolFormatOpenAI, Spec: map[string]any{}})
	require.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestOperationIDFromTool_Missing(t *testing.T) {
	_, ok := OperationIDFromTool(nil)
	assert.False(t, ok)
	_, ok = OperationIDFromTool(&mcp.Tool{Name: "x"})
	assert.False(t, ok)
	_, ok = OperationIDFromTool(&mcp.Tool{Name: "x", Meta: mcp.Meta{MetaOperationID: "bogus"}})
	assert.False(t, ok)
}

func TestHashTool_Deterministic(t *testing.T) {
	tests := []struct {
		name     string
		tool1    *mcp.Tool
		tool2    *mcp.Tool
		sameHash bool
	}{
		{
			name:     "identical tools produce same hash",
			tool1:    &mcp.Tool{Name: "search_apis", Description: "Search", InputSchema: map[string]any{"type": "object"}},
			tool2:    &mcp.Tool{Name: "search_apis", Description: "Search", InputSchema: map[string]any{"type": "object"}},
			sameHash: true,
		},
		{
			name:     "different names produce different hashes",
			tool1:    &mcp.Tool{Name: "tool_a"},
			tool2:    &mcp.Tool{Name: "tool_b"},
			sameHash: false,
		},
		{
			name:     "different schemas produce different hashes",
			tool1:    &mcp.Tool{Name: "t", InputSchema: map[string]any{"type": "object"}},
			tool2:    &mcp.Tool{Name: "t", InputSchema: map[string]any{"type": "object", "required": []any{"area"}}},
			sameHash: false,
		},
		{
			name:     "nil tools produce same hash",
			sameHash: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash1, err1 := HashTool(tt.tool1)
			hash2, err2 := HashTool(tt.tool2)
			require.NoError(t, err1)
			require.NoError(t, err2)
			if tt.sameHash {
				assert.Equal(t, hash1, hash2)
			} else {
				assert.NotEqual(t, hash1, hash2)
			}
		})
	}
}

func TestHashTool_Concurrent(t *testing.T) {
	tool := &mcp.Tool{Name: "concurrent_tool", InputSchema: map[string]any{"type": "object"}}

	const goroutines = 50
	hashes := make([]string, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(idx int) {
			defer wg.Done()
			hash, err := HashTool(tool)
			assert.NoError(t, err)
			hashes[idx] = hash
		}(i)
	}
	wg.Wait()

	for i, hash := range hashes {
		assert.Equal(t, hashes[0], hash, "hash mismatch at index %d", i)
	}
}

func TestHashTools_ListHashing(t *testing.T) {
	a := &mcp.Tool{Name: "a"}
	b := &mcp.Tool{Name: "b"}

	h1, err := HashTools([]*mcp.Tool{a, b})
	require.NoError(t, err)
	h2, err := HashTools([]*mcp.Tool{a, b})
	require.NoError(t, err)
	h3, err := HashTools([]*mcp.Tool{b, a})
	require.NoError(t, err)
	h4, err := HashTools(nil)
	require.NoError(t, err)
	h5, err := HashTools([]*mcp.Tool{})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Equal(t, h4, h5)
}

func TestIsObjectSchema(t *testing.T) {
	tests := []struct {
		name     string
		schema   any
		isObject bool
	}{
		{"object schema detected from map", map[string]any{"type": "object"}, true},
		{"object schema detected case-insensitive", map[string]any{"type": "Object"}, true},
		{"array schema not detected", map[string]any{"type": "array"}, false},
		{"object in type array detected", map[string]any{"type": []any{"null", "object"}}, true},
		{"jsonschema value detected", &jsonschema.Schema{Type: "object"}, true},
		{"nil schema returns false", nil, false},
		{"empty map returns false", map[string]any{}, false},
		{"JSON string with object type", `{"type": "object"}`, true},
		{"JSON RawMessage with object type", json.RawMessage(`{"type": "object"}`), true},
		{"invalid JSON returns false", `{invalid json}`, false},
		{"empty JSON bytes returns false", []byte{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isObject, IsObjectSchema(tt.schema))
		})
	}
}

func TestDecodeArguments(t *testing.T) {
	args, err := DecodeArguments(nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = DecodeArguments(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = DecodeArguments(json.RawMessage(`{"area":"Dublin","limit":3}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"area": "Dublin", "limit": float64(3)}, args)

	_, err = DecodeArguments(json.RawMessage(`["Dublin"]`))
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestEnvelopeResult(t *testing.T) {
	payload := map[string]any{"result": map[string]any{"success": true}}
	res, err := EnvelopeResult(payload, false)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.JSONEq(t, `{"result":{"success":true}}`, text.Text)
	assert.Equal(t, payload, res.StructuredContent)
	assert.False(t, res.IsError)
}

func TestExecutionResultToMCP(t *testing.T) {
	res, err := ExecutionResultToMCP(domain.Succeeded(map[string]any{"temperature": 14.2}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, map[string]any{"temperature": 14.2}, res.StructuredContent)

	res, err = ExecutionResultToMCP(domain.Succeeded("plain"))
	require.NoError(t, err)
	assert.Nil(t, res.StructuredContent)
	assert.Equal(t, `"plain"`, res.Content[0].(*mcp.TextContent).Text)

	res, err = ExecutionResultToMCP(domain.Failed(domain.CodeNotLoaded, "call load first"))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "NOT_LOADED: call load first", res.Content[0].(*mcp.TextContent).Text)
}
