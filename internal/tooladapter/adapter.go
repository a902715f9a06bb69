package tooladapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"jentic/internal/domain"
)

// Broker is the part of the execution broker the adapter depends on.
type Broker interface {
	Snapshot() []domain.ExecutionMetadata
	Execute(ctx context.Context, req domain.ExecutionRequest) domain.ExecutionResult
}

// Adapter projects cached execution metadata into LLM tool definitions and
// routes tool calls back through the broker. It keeps only the name index of
// the most recent generation and never writes to the broker's cache.
type Adapter struct {
	broker Broker
	logger *zap.Logger

	mu    sync.RWMutex
	index map[string]domain.OperationID
}

// New constructs an adapter over a broker.
func New(broker Broker, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		broker: broker,
		logger: logger.Named("tooladapter"),
		index:  make(map[string]domain.OperationID),
	}
}

// GenerateToolDefinitions returns one definition per cached entry, sorted by
// tool name. Output depends only on the cache contents and the format.
func (a *Adapter) GenerateToolDefinitions(format domain.ToolFormat) ([]domain.ToolDefinition, error) {
	project, ok := projectors[format]
	if !ok {
		return nil, domain.E(domain.CodeUnsupportedFormat, "generate tools", fmt.Sprintf("unsupported tool format %q", format), nil)
	}

	named := assignNames(a.broker.Snapshot())
	defs := make([]domain.ToolDefinition, 0, len(named))
	index := make(map[string]domain.OperationID, len(named))
	for _, entry := range named {
		description := describe(entry.meta)
		spec, err := project(entry.name, description, entry.meta.InputSchema)
		if err != nil {
			return nil, domain.Wrap(domain.CodeInternal, "generate tools", err)
		}
		defs = append(defs, domain.ToolDefinition{
			Name:        entry.name,
			Description: description,
			Format:      format,
			ID:          entry.meta.ID,
			InputSchema: entry.meta.InputSchema.Clone(),
			Spec:        spec,
		})
		index[entry.name] = entry.meta.ID
	}

	a.mu.Lock()
	a.index = index
	a.mu.Unlock()

	a.logger.Debug("generated tool definitions", zap.String("format", string(format)), zap.Int("count", len(defs)))
	return defs, nil
}

// Resolve maps a generated tool name back to its identifier.
func (a *Adapter) Resolve(name string) (domain.OperationID, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.index[name]
	return id, ok
}

// RunTool executes the operation behind a generated tool name. Execution
// failures are reported in the result; the error is only for names that were
// never generated.
func (a *Adapter) RunTool(ctx context.Context, name string, arguments map[string]any) (domain.ExecutionResult, error) {
	id, ok := a.Resolve(name)
	if !ok {
		return domain.ExecutionResult{}, domain.E(domain.CodeUnknownTool, "run tool", fmt.Sprintf("tool %q was not generated", name), nil)
	}
	if arguments == nil {
		arguments = map[string]any{}
	}
	return a.broker.Execute(ctx, domain.ExecutionRequest{ID: id, Inputs: arguments}), nil
}

// RunToolJSON is RunTool for arguments still encoded as a JSON object, as
// LLM tool calls deliver them.
func (a *Adapter) RunToolJSON(ctx context.Context, name string, raw []byte) (domain.ExecutionResult, error) {
	arguments := map[string]any{}
	if trimmed := strings.TrimSpace(string(raw)); trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal([]byte(trimmed), &arguments); err != nil {
			if _, ok := a.Resolve(name); !ok {
				return domain.ExecutionResult{}, domain.E(domain.CodeUnknownTool, "run tool", fmt.Sprintf("tool %q was not generated", name), nil)
			}
			return domain.Failed(domain.CodeInvalidArgument, "tool arguments must be a JSON object: "+err.Error()), nil
		}
	}
	return a.RunTool(ctx, name, arguments)
}

func describe(meta domain.ExecutionMetadata) string {
	description := strings.TrimSpace(meta.Description)
	if description == "" {
		description = strings.TrimSpace(meta.Name)
	}
	if description == "" {
		description = "Execute " + meta.ID.String()
	}
	if meta.APIName != "" {
		description = fmt.Sprintf("%s (API: %s)", description, meta.APIName)
	}
	return description
}
