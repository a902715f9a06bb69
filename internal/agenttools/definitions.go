package agenttools

import "jentic/internal/domain"

const (
	ToolSearchAPIs        = "search_apis"
	ToolLoadExecutionInfo = "load_execution_info"
	// ToolGetExecutionConfiguration is the older name of load_execution_info.
	ToolGetExecutionConfiguration = "get_execution_configuration"
	ToolExecute                   = "execute"
	ToolGenerateCodeSample        = "generate_code_sample"
)

// Definition describes one agent-facing tool.
type Definition struct {
	Name        string
	Description string
	Parameters  *domain.Schema
}

// Definitions lists the tools in the order agents are expected to use them.
// The get_execution_configuration alias is accepted by Call but not listed.
func Definitions() []Definition {
	return []Definition{
		{
			Name:        ToolSearchAPIs,
			Description: "Search for available actions or information based on what the user wants to do (e.g., 'find Discord servers', 'send a message'). Use this first to understand what's possible.",
			Parameters: &domain.Schema{
				Type: domain.TypeSet{domain.TypeObject},
				Properties: map[string]*domain.Schema{
					"capability_description": {
						Type:        domain.TypeSet{domain.TypeString},
						Description: "Natural language description of the action needed (e.g., 'send emails', 'weather forecasting')",
					},
					"keywords": {
						Type:        domain.TypeSet{domain.TypeArray},
						Description: "Optional list of specific keywords to help narrow down the search",
						Items:       &domain.Schema{Type: domain.TypeSet{domain.TypeString}},
					},
					"apis": {
						Type:        domain.TypeSet{domain.TypeArray},
						Description: "Optional list of API names to restrict the search to",
						Items:       &domain.Schema{Type: domain.TypeSet{domain.TypeString}},
					},
					"max_results": {
						Type:        domain.TypeSet{domain.TypeInteger},
						Description: "Maximum number of actions to return",
						Default:     float64(domain.DefaultSearchLimit),
					},
				},
				Required: []string{"capability_description"},
			},
		},
		{
			Name: ToolLoadExecutionInfo,
			Description: "Get more details about a specific action (like what information it needs from the user) before confirming you want to run it. " +
				"Coding agents can save the returned configuration to 'jentic.json' at the root of the project.",
			Parameters: &domain.Schema{
				Type: domain.TypeSet{domain.TypeObject},
				Properties: map[string]*domain.Schema{
					"workflow_uuids": {
						Type:        domain.TypeSet{domain.TypeArray},
						Description: "The UUIDs of the workflows to load.",
						Items:       &domain.Schema{Type: domain.TypeSet{domain.TypeString}},
					},
					"operation_uuids": {
						Type:        domain.TypeSet{domain.TypeArray},
						Description: "The UUIDs of the operations to load.",
						Items:       &domain.Schema{Type: domain.TypeSet{domain.TypeString}},
					},
				},
				Required: []string{"workflow_uuids", "operation_uuids"},
			},
		},
		{
			Name:        ToolExecute,
			Description: "Perform the chosen action for the user using the provided details (if any are needed).",
			Parameters: &domain.Schema{
				Type: domain.TypeSet{domain.TypeObject},
				Properties: map[string]*domain.Schema{
					"execution_type": {
						Type:        domain.TypeSet{domain.TypeString},
						Description: "Specify whether to execute an 'operation' or a 'workflow'.",
						Enum:        []any{string(domain.KindOperation), string(domain.KindWorkflow)},
					},
					"uuid": {
						Type:        domain.TypeSet{domain.TypeString},
						Description: "The UUID of the operation or workflow to execute.",
					},
					"inputs": {
						Type:                 domain.TypeSet{domain.TypeObject},
						Description:          "The input parameters required by the operation or workflow.",
						AdditionalProperties: boolPtr(true),
					},
				},
				Required: []string{"execution_type", "uuid", "inputs"},
			},
		},
		{
			Name:        ToolGenerateCodeSample,
			Description: "Generate a code sample showing how to give an agent the Jentic tools, for a model vendor and a programming language.",
			Parameters: &domain.Schema{
				Type: domain.TypeSet{domain.TypeObject},
				Properties: map[string]*domain.Schema{
					"format": {
						Type:        domain.TypeSet{domain.TypeString},
						Description: "Model vendor the sample targets: 'claude' (or 'anthropic') or 'chatgpt' (or 'openai').",
						Default:     "claude",
					},
					"language": {
						Type:        domain.TypeSet{domain.TypeString},
						Description: "Programming language of the sample: 'python' or 'javascript'.",
						Default:     LanguagePython,
					},
				},
			},
		},
	}
}

// Lookup returns the definition for a tool name, resolving the alias.
func Lookup(name string) (Definition, bool) {
	if name == ToolGetExecutionConfiguration {
		name = ToolLoadExecutionInfo
	}
	for _, def := range Definitions() {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}

func boolPtr(v bool) *bool { return &v }
