package main

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"jentic/internal/domain"
)

const (
	clientClaude = "claude"
	clientCodex  = "codex"

	apiKeyPlaceholder = "<your-agent-api-key>"
)

type mcpConfigArgs struct {
	client    string
	command   string
	serverArg []string
	url       string
	mock      bool
}

func newMCPConfigCmd(_ *cliOptions) *cobra.Command {
	args := &mcpConfigArgs{
		client:  clientClaude,
		command: "jenticmcp",
	}
	cmd := &cobra.Command{
		Use:   "mcp-config",
		Short: "Print an MCP client configuration snippet for the jentic server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeMCPConfig(cmd.OutOrStdout(), *args)
		},
	}
	cmd.Flags().StringVar(&args.client, "client", args.client, "MCP client (claude or codex)")
	cmd.Flags().StringVar(&args.command, "command", args.command, "server command")
	cmd.Flags().StringArrayVar(&args.serverArg, "arg", nil, "server argument (repeatable)")
	cmd.Flags().StringVar(&args.url, "url", "", "streamable HTTP endpoint instead of a stdio command")
	cmd.Flags().BoolVar(&args.mock, "with-mock", false, "run the server in mock mode")
	return cmd
}

func serverEntry(args mcpConfigArgs) map[string]any {
	if args.url != "" {
		return map[string]any{"url": args.url}
	}
	env := map[string]any{domain.EnvAgentAPIKey: apiKeyPlaceholder}
	if args.mock {
		env = map[string]any{domain.EnvMockEnabled: "true"}
	}
	serverArgs := args.serverArg
	if serverArgs == nil {
		serverArgs = []string{}
	}
	return map[string]any{
		"command": args.command,
		"args":    serverArgs,
		"env":     env,
	}
}

func writeMCPConfig(w io.Writer, args mcpConfigArgs) error {
	entry := serverEntry(args)
	switch args.client {
	case clientClaude:
		return writeJSON(w, map[string]any{
			"mcpServers": map[string]any{"jentic": entry},
		})
	case clientCodex:
		data, err := toml.Marshal(map[string]any{
			"mcp_servers": map[string]any{"jentic": entry},
		})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported client %q (want claude or codex)", args.client)
	}
}
