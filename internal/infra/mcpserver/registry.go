package mcpserver

import (
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"jentic/internal/infra/mcpcodec"
)

// toolRegistry keeps the per-operation tools registered on the server in
// step with the latest generation. A generation whose etag matches the
// previous one is ignored.
type toolRegistry struct {
	server     *mcp.Server
	handler    func(name string) mcp.ToolHandler
	reserved   map[string]struct{}
	logger     *zap.Logger
	mu         sync.Mutex
	etag       string
	registered map[string]struct{}
}

func newToolRegistry(server *mcp.Server, handler func(name string) mcp.ToolHandler, reserved []string, logger *zap.Logger) *toolRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	names := make(map[string]struct{}, len(reserved))
	for _, name := range reserved {
		names[name] = struct{}{}
	}
	return &toolRegistry{
		server:     server,
		handler:    handler,
		reserved:   names,
		logger:     logger.Named("tool_registry"),
		registered: make(map[string]struct{}),
	}
}

// Apply registers tools and removes the ones missing from the list. It
// reports whether the registered set changed.
func (r *toolRegistry) Apply(tools []*mcp.Tool) bool {
	etag, err := mcpcodec.HashTools(tools)
	if err != nil {
		r.logger.Warn("hash tools failed", zap.Error(err))
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if etag == r.etag {
		return false
	}

	next := make(map[string]struct{}, len(tools))
	for _, tool := range tools {
		if tool == nil || tool.Name == "" {
			continue
		}
		if _, ok := r.reserved[tool.Name]; ok {
			r.logger.Warn("skip tool shadowing a built-in tool", zap.String("tool", tool.Name))
			continue
		}
		if !mcpcodec.IsObjectSchema(tool.InputSchema) {
			r.logger.Warn("skip tool with invalid input schema", zap.String("tool", tool.Name))
			continue
		}
		r.server.AddTool(tool, r.handler(tool.Name))
		next[tool.Name] = struct{}{}
	}

	var remove []string
	for name := range r.registered {
		if _, ok := next[name]; !ok {
			remove = append(remove, name)
		}
	}
	if len(remove) > 0 {
		r.server.RemoveTools(remove...)
	}

	r.registered = next
	r.etag = etag
	r.logger.Debug("tools applied", zap.Int("registered", len(next)), zap.Int("removed", len(remove)))
	return true
}

// Names returns the registered tool names sorted.
func (r *toolRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.registered))
	for name := range r.registered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Etag returns the hash of the last applied generation.
func (r *toolRegistry) Etag() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.etag
}
