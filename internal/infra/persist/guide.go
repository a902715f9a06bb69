package persist

import (
	"fmt"
	"sort"
	"strings"

	"jentic/internal/domain"
)

type guideAPI struct {
	name       string
	operations []domain.ExecutionMetadata
	auth       map[string]domain.AuthRequirement
}

// IntegrationGuide renders Markdown documentation for an exported artifact:
// the APIs it covers, the credentials each one needs and how to execute the
// entries through the agent tools.
func IntegrationGuide(artifactPath string, metas []domain.ExecutionMetadata) string {
	apis := groupByAPI(metas)

	var b strings.Builder
	b.WriteString("# Jentic API Integration Guide\n\n")
	b.WriteString("## Overview\n\n")
	if len(apis) == 0 {
		b.WriteString("The configuration does not reference any APIs yet.\n\n")
	} else {
		b.WriteString("This guide covers the authentication requirements for the following APIs:\n\n")
		for _, api := range apis {
			fmt.Fprintf(&b, "- %s (%d entries)\n", api.name, len(api.operations))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Configuration file: `%s`\n\n", artifactPath)

	b.WriteString("## Authentication\n\n")
	for _, api := range apis {
		fmt.Fprintf(&b, "### %s\n\n", api.name)
		if len(api.auth) == 0 {
			b.WriteString("No credentials are declared for this API.\n\n")
			continue
		}
		keys := make([]string, 0, len(api.auth))
		for key := range api.auth {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&b, "- %s\n", describeAuth(api.auth[key]))
		}
		b.WriteString("\nCredentials are held by the Jentic platform for your agent API key; configure them there before executing.\n\n")
	}

	b.WriteString("## Entries\n\n")
	b.WriteString("| ID | Name | Request |\n")
	b.WriteString("|----|------|---------|\n")
	for _, api := range apis {
		for _, meta := range api.operations {
			request := "workflow"
			if meta.ID.Kind == domain.KindOperation {
				request = strings.TrimSpace(meta.Method + " " + meta.Path)
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s |\n", meta.ID, meta.Name, request)
		}
	}

	b.WriteString("\n## Agent Integration\n\n")
	b.WriteString("Serve the agent tools with `jenticmcp` (MCP over stdio or streamable HTTP, or `--transport rest`).\n")
	fmt.Fprintf(&b, "Restore this configuration with `--persist file --persist-path %s` so `execute` runs without a fresh load.\n", artifactPath)
	b.WriteString("Call `generate_code_sample` for a ready-made agent loop in Python or JavaScript.\n")
	return b.String()
}

func groupByAPI(metas []domain.ExecutionMetadata) []*guideAPI {
	byName := make(map[string]*guideAPI)
	for _, meta := range metas {
		name := meta.APIName
		if name == "" {
			name = "Unknown API"
		}
		api, ok := byName[name]
		if !ok {
			api = &guideAPI{name: name, auth: make(map[string]domain.AuthRequirement)}
			byName[name] = api
		}
		api.operations = append(api.operations, meta)
		for _, auth := range meta.Auth {
			api.auth[describeAuth(auth)] = auth
		}
	}
	out := make([]*guideAPI, 0, len(byName))
	for _, api := range byName {
		sort.Slice(api.operations, func(i, j int) bool {
			return api.operations[i].ID.String() < api.operations[j].ID.String()
		})
		out = append(out, api)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func describeAuth(auth domain.AuthRequirement) string {
	var parts []string
	switch strings.ToLower(auth.Type) {
	case "apikey", "api_key":
		parts = append(parts, "API key")
		if auth.Name != "" {
			in := auth.In
			if in == "" {
				in = "header"
			}
			parts = append(parts, fmt.Sprintf("`%s` in %s", auth.Name, in))
		}
	case "http":
		scheme := auth.Scheme
		if scheme == "" {
			scheme = "basic"
		}
		parts = append(parts, fmt.Sprintf("HTTP %s authentication", scheme))
	case "oauth2", "openidconnect":
		parts = append(parts, "OAuth 2.0")
	default:
		parts = append(parts, auth.Type)
		if auth.Name != "" {
			parts = append(parts, "`"+auth.Name+"`")
		}
	}
	if len(auth.Scopes) > 0 {
		parts = append(parts, "scopes: "+strings.Join(auth.Scopes, ", "))
	}
	return strings.Join(parts, " ")
}
