package restapi

import (
	"jentic/internal/agenttools"
)

// OpenAPIDocument describes the /api/<tool> endpoints.
func OpenAPIDocument(baseURL, version string) map[string]any {
	paths := map[string]any{}
	schemas := map[string]any{}

	for _, def := range agenttools.Definitions() {
		params := def.Parameters.ToMap()
		requestName := def.Name + "Request"
		responseName := def.Name + "Response"

		required := params["required"]
		if required == nil {
			required = []string{}
		}
		schemas[requestName] = map[string]any{
			"type":       "object",
			"properties": params["properties"],
			"required":   required,
		}
		schemas[responseName] = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"result": map[string]any{
					"type":        "object",
					"description": "Result of the " + def.Name + " operation",
				},
			},
		}
		paths["/api/"+def.Name] = map[string]any{
			"post": map[string]any{
				"operationId": def.Name,
				"summary":     def.Description,
				"requestBody": map[string]any{
					"required": true,
					"content": map[string]any{
						"application/json": map[string]any{
							"schema": map[string]any{"$ref": "#/components/schemas/" + requestName},
						},
					},
				},
				"responses": map[string]any{
					"200": map[string]any{
						"description": "Successful response",
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"$ref": "#/components/schemas/" + responseName},
							},
						},
					},
				},
			},
		}
	}

	return map[string]any{
		"openapi": "3.0.0",
		"info": map[string]any{
			"title":       "Jentic Agent Tools API",
			"description": "Search, load and execute API operations and workflows on behalf of an agent.",
			"version":     version,
		},
		"servers":    []any{map[string]any{"url": baseURL}},
		"paths":      paths,
		"components": map[string]any{"schemas": schemas},
	}
}

// PluginManifest is the /.well-known/ai-plugin.json document.
func PluginManifest(baseURL, version string) map[string]any {
	return map[string]any{
		"schema_version":        "v1",
		"name_for_model":        "jentic",
		"name_for_human":        "Jentic",
		"description_for_model": "Use this plugin to find APIs and workflows that can perform a task, load what they need as input, and execute them.",
		"description_for_human": "Find and run APIs from your agent.",
		"auth":                  map[string]any{"type": "none"},
		"api":                   map[string]any{"type": "openapi", "url": baseURL + "/openapi.json"},
		"version":               version,
	}
}
