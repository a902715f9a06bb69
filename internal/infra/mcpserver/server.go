package mcpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"jentic/internal/agenttools"
	"jentic/internal/broker"
	"jentic/internal/domain"
	"jentic/internal/infra/mcpcodec"
	"jentic/internal/infra/telemetry"
	"jentic/internal/tooladapter"
)

const (
	DefaultName     = "jentic"
	DefaultHTTPPath = "/mcp"
	surfaceMCP      = "mcp"
)

// LoadNotifier is implemented by the broker; the server refreshes its
// per-operation tools after every load.
type LoadNotifier interface {
	OnLoad(listener broker.LoadListener)
}

type Options struct {
	Name    string
	Version string
	Tools   *agenttools.Service
	// Adapter and Notifier enable one MCP tool per loaded operation.
	Adapter  *tooladapter.Adapter
	Notifier LoadNotifier
	Metrics  domain.Metrics
	Logger   *zap.Logger
}

// Server exposes the agent tools over MCP.
type Server struct {
	server   *mcp.Server
	tools    *agenttools.Service
	adapter  *tooladapter.Adapter
	registry *toolRegistry
	metrics  domain.Metrics
	logger   *zap.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Tools == nil {
		return nil, errors.New("mcpserver: agent tools are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    name,
			Version: version,
		}, &mcp.ServerOptions{
			HasTools: true,
		}),
		tools:   opts.Tools,
		adapter: opts.Adapter,
		metrics: metrics,
		logger:  logger.Named("mcp_server"),
	}

	reserved, err := s.registerAgentTools()
	if err != nil {
		return nil, err
	}
	if s.adapter != nil {
		s.registry = newToolRegistry(s.server, s.operationHandler, reserved, s.logger)
		if opts.Notifier != nil {
			opts.Notifier.OnLoad(func([]domain.ExecutionMetadata) {
				s.RefreshOperationTools()
			})
		}
		s.RefreshOperationTools()
	}
	return s, nil
}

// MCP returns the underlying go-sdk server.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// registerAgentTools adds search_apis, load_execution_info, its alias and
// execute, returning their names.
func (s *Server) registerAgentTools() ([]string, error) {
	defs := agenttools.Definitions()
	names := make([]string, 0, len(defs)+1)
	for _, def := range defs {
		tool, err := tooladapter.MCPTool(def.Name, def.Description, def.Parameters)
		if err != nil {
			return nil, err
		}
		s.server.AddTool(tool, s.agentHandler(def.Name))
		names = append(names, def.Name)

		if def.Name == agenttools.ToolLoadExecutionInfo {
			alias, err := tooladapter.MCPTool(agenttools.ToolGetExecutionConfiguration, def.Description, def.Parameters)
			if err != nil {
				return nil, err
			}
			s.server.AddTool(alias, s.agentHandler(agenttools.ToolGetExecutionConfiguration))
			names = append(names, agenttools.ToolGetExecutionConfiguration)
		}
	}
	return names, nil
}

func (s *Server) agentHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, _ = telemetry.EnsureRequestMeta(ctx, "")
		args, err := mcpcodec.DecodeArguments(req.Params.Arguments)
		if err != nil {
			return errorResult(err), nil
		}
		env, err := s.tools.Call(ctx, name, args)
		if err != nil {
			return errorResult(err), nil
		}
		return mcpcodec.EnvelopeResult(env, false)
	}
}

func (s *Server) operationHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, _ = telemetry.EnsureRequestMeta(ctx, "")
		start := time.Now()
		result, err := s.adapter.RunToolJSON(ctx, name, req.Params.Arguments)
		if err != nil {
			s.metrics.ObserveToolCall(surfaceMCP, name, time.Since(start), false)
			return errorResult(err), nil
		}
		s.metrics.ObserveToolCall(surfaceMCP, name, time.Since(start), result.Success)
		telemetry.LoggerWithRequest(ctx, s.logger).Debug("operation tool called",
			telemetry.ToolField(name),
			zap.Bool("success", result.Success),
		)
		return mcpcodec.ExecutionResultToMCP(result)
	}
}

// RefreshOperationTools regenerates the per-operation tools from the
// broker's cache. It is a no-op when per-operation tools are disabled.
func (s *Server) RefreshOperationTools() {
	if s.adapter == nil || s.registry == nil {
		return
	}
	defs, err := s.adapter.GenerateToolDefinitions(domain.ToolFormatMCP)
	if err != nil {
		s.logger.Warn("generate operation tools failed", zap.Error(err))
		return
	}
	tools := make([]*mcp.Tool, 0, len(defs))
	for _, def := range defs {
		tool, err := mcpcodec.ToolFromDefinition(def)
		if err != nil {
			s.logger.Warn("encode operation tool failed", telemetry.ToolField(def.Name), zap.Error(err))
			continue
		}
		tools = append(tools, tool)
	}
	if s.registry.Apply(tools) {
		s.logger.Info("operation tools updated", zap.Int("count", len(tools)))
	}
}

// OperationTools lists the registered per-operation tool names.
func (s *Server) OperationTools() []string {
	if s.registry == nil {
		return nil
	}
	return s.registry.Names()
}

// RunStdio serves MCP over stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("mcp server starting (stdio transport)")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})
}

// RunStreamableHTTP serves MCP on addr under path until ctx is done.
func (s *Server) RunStreamableHTTP(ctx context.Context, addr, path string) error {
	if path == "" {
		path = DefaultHTTPPath
	}
	mux := http.NewServeMux()
	mux.Handle(path, s.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server starting (streamable http)", zap.String("addr", addr), zap.String("path", path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("mcp http shutdown failed", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		IsError: true,
	}
}
