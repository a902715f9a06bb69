package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"jentic/internal/agenttools"
	"jentic/internal/domain"
	"jentic/internal/infra/telemetry"
	"jentic/internal/tooladapter"
)

// ErrStepLimit reports a run that used every step without a final answer.
var ErrStepLimit = errors.New("agent step limit reached")

// Step records one tool call made during a run.
type Step struct {
	Tool      string
	Arguments string
	Output    string
	Duration  time.Duration
}

// Result is the outcome of Run.
type Result struct {
	Answer string
	Steps  []Step
}

type Options struct {
	Model   model.ToolCallingChatModel
	Tools   *agenttools.Service
	Adapter *tooladapter.Adapter
	Config  domain.AgentConfig
	Logger  *zap.Logger
}

// Runner drives a tool-calling model through search, load and execute.
// Operations loaded during a run become directly callable tools on the
// next step.
type Runner struct {
	model     model.ToolCallingChatModel
	tools     *agenttools.Service
	adapter   *tooladapter.Adapter
	maxSteps  int
	loadLimit int
	logger    *zap.Logger
}

func New(opts Options) (*Runner, error) {
	if opts.Model == nil {
		return nil, domain.E(domain.CodeInvalidArgument, "agent runner", "chat model is required", nil)
	}
	if opts.Tools == nil {
		return nil, domain.E(domain.CodeInvalidArgument, "agent runner", "agent tools are required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxSteps := opts.Config.MaxSteps
	if maxSteps <= 0 {
		maxSteps = domain.DefaultAgentMaxSteps
	}
	return &Runner{
		model:     opts.Model,
		tools:     opts.Tools,
		adapter:   opts.Adapter,
		maxSteps:  maxSteps,
		loadLimit: opts.Config.LoadLimit,
		logger:    logger.Named("agent"),
	}, nil
}

// Run answers task, calling tools until the model replies without tool calls.
func (r *Runner) Run(ctx context.Context, task string) (Result, error) {
	ctx, _ = telemetry.EnsureRequestMeta(ctx, "")
	logger := telemetry.LoggerWithRequest(ctx, r.logger)

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(task),
	}
	var result Result

	for step := 0; step < r.maxSteps; step++ {
		infos, err := r.toolInfos()
		if err != nil {
			return result, err
		}
		bound, err := r.model.WithTools(infos)
		if err != nil {
			return result, fmt.Errorf("bind tools: %w", err)
		}
		reply, err := bound.Generate(ctx, messages)
		if err != nil {
			return result, fmt.Errorf("generate: %w", err)
		}
		if reply == nil {
			return result, errors.New("generate: empty reply")
		}
		messages = append(messages, reply)

		if len(reply.ToolCalls) == 0 {
			result.Answer = reply.Content
			logger.Debug("agent finished", zap.Int("steps", len(result.Steps)))
			return result, nil
		}

		for _, call := range reply.ToolCalls {
			started := time.Now()
			output := r.dispatch(ctx, call.Function.Name, call.Function.Arguments)
			duration := time.Since(started)
			logger.Debug("agent tool call",
				telemetry.EventField(telemetry.EventToolCall),
				telemetry.ToolField(call.Function.Name),
				telemetry.DurationField(duration),
			)
			result.Steps = append(result.Steps, Step{
				Tool:      call.Function.Name,
				Arguments: call.Function.Arguments,
				Output:    output,
				Duration:  duration,
			})
			messages = append(messages, schema.ToolMessage(output, call.ID))
		}
	}
	return result, fmt.Errorf("%w after %d steps", ErrStepLimit, r.maxSteps)
}

func (r *Runner) toolInfos() ([]*schema.ToolInfo, error) {
	defs := agenttools.Definitions()
	infos := make([]*schema.ToolInfo, 0, len(defs))
	reserved := make(map[string]struct{}, len(defs)+1)
	for _, def := range defs {
		infos = append(infos, tooladapter.EinoTool(def.Name, def.Description, def.Parameters))
		reserved[def.Name] = struct{}{}
	}
	reserved[agenttools.ToolGetExecutionConfiguration] = struct{}{}
	if r.adapter == nil {
		return infos, nil
	}

	generated, err := r.adapter.GenerateToolDefinitions(domain.ToolFormatEino)
	if err != nil {
		return nil, err
	}
	for _, def := range generated {
		if _, ok := reserved[def.Name]; ok {
			continue
		}
		info, ok := def.Spec.(*schema.ToolInfo)
		if !ok {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// dispatch runs one tool call and renders its outcome for the model. Tool
// errors are reported back as content so the model can correct itself.
func (r *Runner) dispatch(ctx context.Context, name, arguments string) string {
	if def, ok := agenttools.Lookup(name); ok {
		raw := []byte(arguments)
		if def.Name == agenttools.ToolLoadExecutionInfo {
			raw = limitLoad(raw, r.loadLimit)
		}
		env, err := r.tools.CallJSON(ctx, name, raw)
		if err != nil {
			return errorContent(err)
		}
		return encode(env)
	}

	if r.adapter == nil {
		return errorContent(domain.E(domain.CodeUnknownTool, "agent tool", fmt.Sprintf("unknown tool %q", name), nil))
	}
	result, err := r.adapter.RunToolJSON(ctx, name, []byte(arguments))
	if err != nil {
		return errorContent(err)
	}
	return encode(result)
}

// limitLoad trims the identifiers of a load call to at most limit entries,
// operations first.
func limitLoad(raw []byte, limit int) []byte {
	if limit <= 0 {
		return raw
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil || args == nil {
		return raw
	}
	remaining := limit
	changed := false
	for _, key := range []string{"operation_uuids", "workflow_uuids"} {
		ids, ok := args[key].([]any)
		if !ok {
			continue
		}
		if len(ids) > remaining {
			args[key] = ids[:remaining]
			changed = true
			remaining = 0
			continue
		}
		remaining -= len(ids)
	}
	if !changed {
		return raw
	}
	out, err := json.Marshal(args)
	if err != nil {
		return raw
	}
	return out
}

func encode(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return errorContent(err)
	}
	return string(data)
}

func errorContent(err error) string {
	data, _ := json.Marshal(map[string]any{"error": err.Error()})
	return string(data)
}

const systemPrompt = `You are an agent that completes tasks by calling third-party APIs through Jentic.

1. Call search_apis with a short capability description to find operations and workflows.
2. Call load_execution_info with the ids you want to use to learn their inputs.
3. Call execute (or the generated tool for a loaded operation) with inputs that match the loaded schema.

Only execute ids you have loaded. Answer the user once you have the data you need.`
