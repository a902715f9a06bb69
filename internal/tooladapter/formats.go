package tooladapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"jentic/internal/domain"
)

// ParseFormat normalizes a format name.
func ParseFormat(raw string) (domain.ToolFormat, error) {
	format := domain.ToolFormat(strings.ToLower(strings.TrimSpace(raw)))
	switch format {
	case domain.ToolFormatOpenAI, domain.ToolFormatAnthropic, domain.ToolFormatMCP, domain.ToolFormatEino:
		return format, nil
	case "claude":
		return domain.ToolFormatAnthropic, nil
	case "chatgpt":
		return domain.ToolFormatOpenAI, nil
	default:
		return "", domain.E(domain.CodeUnsupportedFormat, "generate tools", fmt.Sprintf("unsupported tool format %q", raw), nil)
	}
}

// Formats lists the supported tool formats.
func Formats() []domain.ToolFormat {
	return []domain.ToolFormat{domain.ToolFormatAnthropic, domain.ToolFormatEino, domain.ToolFormatMCP, domain.ToolFormatOpenAI}
}

type projector func(name, description string, input *domain.Schema) (any, error)

var projectors = map[domain.ToolFormat]projector{
	domain.ToolFormatOpenAI:    openAITool,
	domain.ToolFormatAnthropic: anthropicTool,
	domain.ToolFormatMCP:       func(n, d string, s *domain.Schema) (any, error) { return MCPTool(n, d, s) },
	domain.ToolFormatEino:      func(n, d string, s *domain.Schema) (any, error) { return EinoTool(n, d, s), nil },
}

func openAITool(name, description string, input *domain.Schema) (any, error) {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        name,
			"description": description,
			"parameters":  input.ToMap(),
		},
	}, nil
}

func anthropicTool(name, description string, input *domain.Schema) (any, error) {
	return map[string]any{
		"name":         name,
		"description":  description,
		"input_schema": input.ToMap(),
	}, nil
}

// MCPTool builds an MCP tool whose input schema mirrors the runtime schema.
func MCPTool(name, description string, input *domain.Schema) (*mcp.Tool, error) {
	inputSchema, err := JSONSchema(input)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
	}, nil
}

// JSONSchema converts a runtime schema into a jsonschema-go schema. Nil or
// untyped schemas become object schemas, which MCP requires for tool input.
func JSONSchema(input *domain.Schema) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(input.ToMap())
	if err != nil {
		return nil, fmt.Errorf("encode input schema: %w", err)
	}
	var out jsonschema.Schema
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	return &out, nil
}

// EinoTool builds an eino tool description from the runtime schema.
func EinoTool(name, description string, input *domain.Schema) *schema.ToolInfo {
	params := make(map[string]*schema.ParameterInfo)
	if input != nil {
		for _, prop := range input.PropertyNames() {
			info := einoParameter(input.Properties[prop])
			info.Required = input.IsRequired(prop)
			params[prop] = info
		}
	}
	return &schema.ToolInfo{
		Name:        name,
		Desc:        description,
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

func einoParameter(s *domain.Schema) *schema.ParameterInfo {
	if s == nil {
		return &schema.ParameterInfo{Type: schema.String}
	}
	info := &schema.ParameterInfo{
		Type: einoType(s.Type),
		Desc: s.Description,
	}
	for _, value := range s.Enum {
		info.Enum = append(info.Enum, fmt.Sprint(value))
	}
	switch info.Type {
	case schema.Array:
		if s.Items != nil {
			info.ElemInfo = einoParameter(s.Items)
		}
	case schema.Object:
		if len(s.Properties) > 0 {
			info.SubParams = make(map[string]*schema.ParameterInfo, len(s.Properties))
			for _, prop := range s.PropertyNames() {
				sub := einoParameter(s.Properties[prop])
				sub.Required = s.IsRequired(prop)
				info.SubParams[prop] = sub
			}
		}
	}
	return info
}

func einoType(types domain.TypeSet) schema.DataType {
	for _, typ := range types {
		switch typ {
		case domain.TypeString:
			return schema.String
		case domain.TypeInteger:
			return schema.Integer
		case domain.TypeNumber:
			return schema.Number
		case domain.TypeBoolean:
			return schema.Boolean
		case domain.TypeArray:
			return schema.Array
		case domain.TypeObject:
			return schema.Object
		}
	}
	if types.Has(domain.TypeNull) {
		return schema.Null
	}
	return schema.String
}
