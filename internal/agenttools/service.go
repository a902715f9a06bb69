package agenttools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"jentic/internal/domain"
	"jentic/internal/infra/telemetry"
)

// Broker is the part of the execution broker the agent tools drive.
type Broker interface {
	Search(ctx context.Context, query domain.SearchQuery) (domain.SearchResult, error)
	Load(ctx context.Context, ids []domain.OperationID) (domain.LoadResult, error)
	Execute(ctx context.Context, req domain.ExecutionRequest) domain.ExecutionResult
}

// Envelope is the JSON object a tool call returns, always shaped as
// {"result": {...}}.
type Envelope map[string]any

// Result returns the inner result object.
func (e Envelope) Result() map[string]any {
	inner, _ := e["result"].(map[string]any)
	return inner
}

// Succeeded reports whether the envelope does not carry "success": false.
func (e Envelope) Succeeded() bool {
	inner := e.Result()
	if inner == nil {
		return false
	}
	success, ok := inner["success"].(bool)
	return !ok || success
}

// Service answers the agent tools on behalf of one surface (mcp, rest, cli).
type Service struct {
	broker  Broker
	surface string
	metrics domain.Metrics
	logger  *zap.Logger
}

type Options struct {
	Broker  Broker
	Surface string
	Metrics domain.Metrics
	Logger  *zap.Logger
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	surface := opts.Surface
	if surface == "" {
		surface = "local"
	}
	return &Service{
		broker:  opts.Broker,
		surface: surface,
		metrics: metrics,
		logger:  logger.Named("agent_tools"),
	}
}

// Call dispatches a tool by name. Failures the agent can act on are reported
// inside the envelope; the error return is kept for unknown tools and
// malformed arguments.
func (s *Service) Call(ctx context.Context, name string, args map[string]any) (Envelope, error) {
	start := time.Now()
	var (
		env Envelope
		err error
	)
	switch name {
	case ToolSearchAPIs:
		env, err = s.SearchAPIs(ctx, args)
	case ToolLoadExecutionInfo, ToolGetExecutionConfiguration:
		env, err = s.LoadExecutionInfo(ctx, args)
	case ToolExecute:
		env, err = s.Execute(ctx, args)
	case ToolGenerateCodeSample:
		env, err = s.GenerateCodeSample(ctx, args)
	default:
		err = domain.E(domain.CodeUnknownTool, "call tool", fmt.Sprintf("tool %q is not available", name), nil)
	}
	duration := time.Since(start)
	success := err == nil && env.Succeeded()
	s.metrics.ObserveToolCall(s.surface, name, duration, success)

	logger := telemetry.LoggerWithRequest(ctx, s.logger)
	fields := []zap.Field{
		telemetry.EventField(telemetry.EventToolCall),
		telemetry.ToolField(name),
		telemetry.DurationField(duration),
		zap.Bool("success", success),
	}
	if err != nil {
		logger.Warn("tool call failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	logger.Debug("tool call completed", fields...)
	return env, nil
}

// CallJSON decodes raw JSON arguments before dispatching.
func (s *Service) CallJSON(ctx context.Context, name string, raw []byte) (Envelope, error) {
	args := map[string]any{}
	if trimmed := strings.TrimSpace(string(raw)); trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return nil, domain.E(domain.CodeInvalidArgument, "call tool", "tool arguments must be a JSON object", err)
		}
		if args == nil {
			args = map[string]any{}
		}
	}
	return s.Call(ctx, name, args)
}

type searchArgs struct {
	CapabilityDescription string   `mapstructure:"capability_description"`
	Keywords              []string `mapstructure:"keywords"`
	APIs                  []string `mapstructure:"apis"`
	MaxResults            int      `mapstructure:"max_results"`
}

type loadArgs struct {
	WorkflowUUIDs  []string `mapstructure:"workflow_uuids"`
	OperationUUIDs []string `mapstructure:"operation_uuids"`
}

type executeArgs struct {
	ExecutionType string `mapstructure:"execution_type"`
	UUID          string `mapstructure:"uuid"`
	Inputs        any    `mapstructure:"inputs"`
}

// SearchAPIs runs search_apis and groups the ranked hits into workflows and
// operations, each keeping platform order.
func (s *Service) SearchAPIs(ctx context.Context, args map[string]any) (Envelope, error) {
	var in searchArgs
	if err := decodeArgs(ToolSearchAPIs, args, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.CapabilityDescription) == "" {
		return nil, domain.E(domain.CodeInvalidArgument, ToolSearchAPIs, "capability_description is required", nil)
	}
	limit := in.MaxResults
	if limit <= 0 {
		limit = domain.DefaultSearchLimit
	}
	if limit > domain.MaxSearchLimit {
		limit = domain.MaxSearchLimit
	}

	result, err := s.broker.Search(ctx, domain.SearchQuery{
		Text:     in.CapabilityDescription,
		Keywords: in.Keywords,
		APIs:     in.APIs,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}

	workflows := make([]any, 0)
	operations := make([]any, 0)
	for _, hit := range result.Hits {
		item := map[string]any{
			"id":          hit.ID.String(),
			"uuid":        hit.ID.UUID,
			"summary":     hit.Name,
			"description": hit.Description,
			"api_name":    hit.APIName,
			"match_score": hit.MatchScore,
		}
		if hit.ID.Kind == domain.KindWorkflow {
			workflows = append(workflows, item)
			continue
		}
		item["method"] = hit.Method
		item["path"] = hit.Path
		operations = append(operations, item)
	}
	return Envelope{"result": map[string]any{
		"matches": map[string]any{
			"workflows":  workflows,
			"operations": operations,
		},
		"query":         result.Query,
		"total_matches": len(result.Hits),
	}}, nil
}

// LoadExecutionInfo runs load_execution_info. Metadata is returned keyed by
// identifier under config.operations and config.workflows, ready to be
// saved as jentic.json by a coding agent.
func (s *Service) LoadExecutionInfo(ctx context.Context, args map[string]any) (Envelope, error) {
	var in loadArgs
	if err := decodeArgs(ToolLoadExecutionInfo, args, &in); err != nil {
		return nil, err
	}
	requested := map[string]any{
		"operation_uuids": nonNil(in.OperationUUIDs),
		"workflow_uuids":  nonNil(in.WorkflowUUIDs),
	}

	ids, err := parseKindIDs(in.OperationUUIDs, in.WorkflowUUIDs)
	if err == nil && len(ids) == 0 {
		err = domain.E(domain.CodeInvalidArgument, ToolLoadExecutionInfo, "at least one operation or workflow uuid is required", nil)
	}
	if err != nil {
		return loadFailure(requested, err.Error()), nil
	}

	loaded, err := s.broker.Load(ctx, ids)
	if err != nil {
		return loadFailure(requested, err.Error()), nil
	}

	operations := map[string]any{}
	workflows := map[string]any{}
	failures := map[string]any{}
	for _, id := range ids {
		outcome := loaded[id]
		if outcome.Err != nil || outcome.Metadata == nil {
			msg := "not found"
			if outcome.Err != nil {
				msg = outcome.Err.Error()
			}
			failures[id.String()] = msg
			continue
		}
		value, err := toJSONValue(outcome.Metadata)
		if err != nil {
			return nil, err
		}
		if id.Kind == domain.KindWorkflow {
			workflows[id.String()] = value
		} else {
			operations[id.String()] = value
		}
	}
	if len(operations) == 0 && len(workflows) == 0 {
		return loadFailure(requested, "no execution info could be loaded: "+joinFailures(failures)), nil
	}

	inner := map[string]any{
		"success": true,
		"config": map[string]any{
			"operations": operations,
			"workflows":  workflows,
		},
	}
	for key, value := range requested {
		inner[key] = value
	}
	if len(failures) > 0 {
		inner["failures"] = failures
	}
	return Envelope{"result": inner}, nil
}

// Execute runs execute. Argument problems the agent can fix are reported
// as an unsuccessful result rather than an error.
func (s *Service) Execute(ctx context.Context, args map[string]any) (Envelope, error) {
	var in executeArgs
	if err := decodeArgs(ToolExecute, args, &in); err != nil {
		return nil, err
	}
	kind := strings.ToLower(strings.TrimSpace(in.ExecutionType))
	if kind != string(domain.KindOperation) && kind != string(domain.KindWorkflow) {
		return executeFailure(domain.CodeInvalidArgument, fmt.Sprintf("Invalid execution_type: %q. Must be 'operation' or 'workflow'.", in.ExecutionType)), nil
	}
	if strings.TrimSpace(in.UUID) == "" {
		return executeFailure(domain.CodeInvalidArgument, "Missing required parameter: uuid"), nil
	}
	var inputs map[string]any
	switch v := in.Inputs.(type) {
	case nil:
		inputs = map[string]any{}
	case map[string]any:
		inputs = v
	default:
		return executeFailure(domain.CodeInvalidArgument, "Invalid inputs: must be an object"), nil
	}
	id, err := domain.ParseKindID(kind, in.UUID)
	if err != nil {
		return executeFailure(domain.CodeInvalidArgument, err.Error()), nil
	}

	result := s.broker.Execute(ctx, domain.ExecutionRequest{ID: id, Inputs: inputs})
	if !result.Success {
		code, msg := domain.CodeExecutionFailed, "execution failed"
		if result.Error != nil {
			code, msg = result.Error.Code, result.Error.Error()
		}
		return executeFailure(code, msg), nil
	}
	inner := map[string]any{
		"success": true,
		"output":  result.Output,
	}
	if len(result.StepResults) > 0 {
		inner["step_results"] = result.StepResults
	}
	return Envelope{"result": inner}, nil
}

func decodeArgs(tool string, args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return domain.E(domain.CodeInvalidArgument, tool, "invalid arguments", err)
	}
	return nil
}

func parseKindIDs(operations, workflows []string) ([]domain.OperationID, error) {
	ids := make([]domain.OperationID, 0, len(operations)+len(workflows))
	seen := make(map[domain.OperationID]struct{})
	add := func(kind domain.IDKind, raw []string) error {
		for _, value := range raw {
			id, err := domain.ParseKindID(string(kind), value)
			if err != nil {
				return err
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return nil
	}
	if err := add(domain.KindOperation, operations); err != nil {
		return nil, err
	}
	if err := add(domain.KindWorkflow, workflows); err != nil {
		return nil, err
	}
	return ids, nil
}

func loadFailure(requested map[string]any, message string) Envelope {
	inner := map[string]any{
		"success": false,
		"message": message,
		"config":  map[string]any{},
	}
	for key, value := range requested {
		inner[key] = value
	}
	return Envelope{"result": inner}
}

func executeFailure(code domain.ErrorCode, message string) Envelope {
	return Envelope{"result": map[string]any{
		"success": false,
		"code":    string(code),
		"message": message,
	}}
}

func joinFailures(failures map[string]any) string {
	keys := make([]string, 0, len(failures))
	for key := range failures {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", key, failures[key]))
	}
	return strings.Join(parts, "; ")
}

// toJSONValue converts a typed value into its plain JSON form so envelopes
// only hold maps, slices and scalars.
func toJSONValue(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
