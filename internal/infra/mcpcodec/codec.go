package mcpcodec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"jentic/internal/domain"
)

// MetaOperationID is the _meta key carrying the identifier behind a
// per-operation tool.
const MetaOperationID = "jentic/operation_id"

// ToolFromDefinition converts an MCP-format tool definition into a wire tool
// tagged with its backing identifier.
func ToolFromDefinition(def domain.ToolDefinition) (*mcp.Tool, error) {
	spec, ok := def.Spec.(*mcp.Tool)
	if !ok || spec == nil {
		return nil, domain.E(domain.CodeUnsupportedFormat, "encode mcp tool", fmt.Sprintf("tool %s was generated in format %q", def.Name, def.Format), nil)
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal tool %s: %w", def.Name, err)
	}
	var tool mcp.Tool
	if err := json.Unmarshal(raw, &tool); err != nil {
		return nil, fmt.Errorf("unmarshal tool %s: %w", def.Name, err)
	}
	if tool.Name == "" {
		tool.Name = def.Name
	}
	if !def.ID.IsZero() {
		if tool.Meta == nil {
			tool.Meta = mcp.Meta{}
		}
		tool.Meta[MetaOperationID] = def.ID.String()
	}
	openWorld := true
	tool.Annotations = &mcp.ToolAnnotations{
		Title:         def.Name,
		OpenWorldHint: &openWorld,
	}
	return &tool, nil
}

// OperationIDFromTool returns the identifier recorded by ToolFromDefinition.
func OperationIDFromTool(tool *mcp.Tool) (domain.OperationID, bool) {
	if tool == nil || tool.Meta == nil {
		return domain.OperationID{}, false
	}
	raw, ok := tool.Meta[MetaOperationID].(string)
	if !ok {
		return domain.OperationID{}, false
	}
	id, err := domain.ParseOperationID(raw)
	if err != nil {
		return domain.OperationID{}, false
	}
	return id, true
}

// MarshalTool encodes a tool as MCP JSON.
func MarshalTool(tool *mcp.Tool) ([]byte, error) {
	if tool == nil {
		return []byte("null"), nil
	}
	return json.Marshal(tool)
}

// HashTool returns a deterministic hash for a tool or an error.
func HashTool(tool *mcp.Tool) (string, error) {
	raw, err := MarshalTool(tool)
	if err != nil {
		return "", fmt.Errorf("marshal tool: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// HashTools returns a deterministic hash for a tool list or an error.
func HashTools(tools []*mcp.Tool) (string, error) {
	hasher := sha256.New()
	for i, tool := range tools {
		raw, err := MarshalTool(tool)
		if err != nil {
			return "", fmt.Errorf("marshal tool %d: %w", i, err)
		}
		_, _ = hasher.Write(raw)
		_, _ = hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// IsObjectSchema reports whether a schema value, in any of its JSON forms,
// declares type object.
func IsObjectSchema(schema any) bool {
	if schema == nil {
		return false
	}

	var raw []byte
	switch v := schema.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		encoded, err := json.Marshal(schema)
		if err != nil {
			return false
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return false
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	switch typ := obj["type"].(type) {
	case string:
		return strings.EqualFold(typ, "object")
	case []any:
		for _, item := range typ {
			if s, ok := item.(string); ok && strings.EqualFold(s, "object") {
				return true
			}
		}
	}
	return false
}

// DecodeArguments decodes tool call arguments. Missing arguments decode as
// an empty object; anything other than a JSON object is rejected.
func DecodeArguments(raw json.RawMessage) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, domain.E(domain.CodeInvalidArgument, "decode arguments", "tool arguments must be a JSON object", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// EnvelopeResult renders a JSON object payload as both text and structured
// content.
func EnvelopeResult(payload map[string]any, isError bool) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(raw)}},
		StructuredContent: payload,
		IsError:           isError,
	}, nil
}

// ExecutionResultToMCP renders a broker execution result. Failures set
// IsError so the model sees the message instead of a protocol error.
func ExecutionResultToMCP(result domain.ExecutionResult) (*mcp.CallToolResult, error) {
	if !result.Success {
		msg := "execution failed"
		if result.Error != nil {
			msg = result.Error.Error()
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: msg}},
			IsError: true,
		}, nil
	}
	raw, err := json.Marshal(result.Output)
	if err != nil {
		return nil, fmt.Errorf("marshal execution output: %w", err)
	}
	out := &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}}}
	if obj, ok := result.Output.(map[string]any); ok {
		out.StructuredContent = obj
	}
	return out, nil
}
