package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jentic/internal/agenttools"
	"jentic/internal/broker"
	"jentic/internal/domain"
	"jentic/internal/infra/transport"
	"jentic/internal/tooladapter"
)

// scriptedModel replays one reply per Generate call and records the tools
// bound before each call.
type scriptedModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	calls   int
	bound   [][]string
	seen    [][]*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, messages []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, append([]*schema.Message(nil), messages...))
	if m.calls >= len(m.replies) {
		return nil, errors.New("script exhausted")
	}
	reply := m.replies[m.calls]
	m.calls++
	return reply, nil
}

func (m *scriptedModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	m.bound = append(m.bound, names)
	return m, nil
}

func toolCall(id, name string, args any) schema.ToolCall {
	data, _ := json.Marshal(args)
	return schema.ToolCall{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: string(data)},
	}
}

func newRunner(t *testing.T, m *scriptedModel, cfg domain.AgentConfig) (*Runner, *broker.Broker) {
	t.Helper()
	tr, err := transport.NewMockTransport(transport.MockOptions{})
	require.NoError(t, err)
	b, err := broker.New(broker.Options{Transport: tr, Policy: domain.LoadPolicyExplicit})
	require.NoError(t, err)
	runner, err := New(Options{
		Model:   m,
		Tools:   agenttools.NewService(agenttools.Options{Broker: b, Surface: "agent"}),
		Adapter: tooladapter.New(b, nil),
		Config:  cfg,
	})
	require.NoError(t, err)
	return runner, b
}

func TestRun_SearchLoadExecute(t *testing.T) {
	m := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{
			toolCall("c1", agenttools.ToolSearchAPIs, map[string]any{"capability_description": "current weather", "keywords": []string{"weather"}}),
		}),
		schema.AssistantMessage("", []schema.ToolCall{
			toolCall("c2", agenttools.ToolLoadExecutionInfo, map[string]any{
				"operation_uuids": []string{transport.CurrentWeatherID, transport.XKCDComicID},
				"workflow_uuids":  []string{},
			}),
		}),
		schema.AssistantMessage("", []schema.ToolCall{
			toolCall("c3", "Get_current_weather", map[string]any{"city": "Dublin"}),
		}),
		schema.AssistantMessage("It is 14.2 degrees with light rain in Dublin.", nil),
	}}
	runner, b := newRunner(t, m, domain.AgentConfig{MaxSteps: 5, LoadLimit: 1})

	result, err := runner.Run(context.Background(), "What's the weather in Dublin?")
	require.NoError(t, err)
	assert.Equal(t, "It is 14.2 degrees with light rain in Dublin.", result.Answer)
	require.Len(t, result.Steps, 3)
	assert.Contains(t, result.Steps[0].Output, transport.CurrentWeatherID)
	assert.Contains(t, result.Steps[2].Output, "light rain")

	weather, err := domain.ParseOperationID(transport.CurrentWeatherID)
	require.NoError(t, err)
	comic, err := domain.ParseOperationID(transport.XKCDComicID)
	require.NoError(t, err)
	_, ok := b.Cached(weather)
	assert.True(t, ok)
	_, ok = b.Cached(comic)
	assert.False(t, ok)

	require.Len(t, m.bound, 4)
	assert.NotContains(t, m.bound[1], "Get_current_weather")
	assert.Contains(t, m.bound[1], agenttools.ToolExecute)
	assert.Contains(t, m.bound[2], "Get_current_weather")
	assert.NotContains(t, m.bound[2], "Get_current_comic")

	last := m.seen[3]
	tool := last[len(last)-1]
	assert.Equal(t, schema.Tool, tool.Role)
	assert.Equal(t, "c3", tool.ToolCallID)
}

func TestRun_ToolErrorsAreReturnedToModel(t *testing.T) {
	m := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{
			toolCall("c1", agenttools.ToolSearchAPIs, map[string]any{}),
			toolCall("c2", "not_a_tool", map[string]any{}),
		}),
		schema.AssistantMessage("I could not help.", nil),
	}}
	runner, _ := newRunner(t, m, domain.AgentConfig{MaxSteps: 3})

	result, err := runner.Run(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, result.Steps, 2)
	assert.Contains(t, result.Steps[0].Output, `"error"`)
	assert.Contains(t, result.Steps[1].Output, "UNKNOWN_TOOL")
}

func TestRun_StepLimit(t *testing.T) {
	call := schema.AssistantMessage("", []schema.ToolCall{
		toolCall("c1", agenttools.ToolSearchAPIs, map[string]any{"capability_description": "comics"}),
	})
	m := &scriptedModel{replies: []*schema.Message{call, call}}
	runner, _ := newRunner(t, m, domain.AgentConfig{MaxSteps: 2})

	result, err := runner.Run(context.Background(), "loop forever")
	require.ErrorIs(t, err, ErrStepLimit)
	assert.Len(t, result.Steps, 2)
}

func TestNew_RequiresModelAndTools(t *testing.T) {
	_, err := New(Options{})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestLimitLoad(t *testing.T) {
	out := limitLoad([]byte(`{"operation_uuids":["a","b"],"workflow_uuids":["c"]}`), 2)
	assert.JSONEq(t, `{"operation_uuids":["a","b"],"workflow_uuids":[]}`, string(out))

	out = limitLoad([]byte(`{"operation_uuids":["a"],"workflow_uuids":["c"]}`), 3)
	assert.JSONEq(t, `{"operation_uuids":["a"],"workflow_uuids":["c"]}`, string(out))

	raw := []byte(`not json`)
	assert.Equal(t, raw, limitLoad(raw, 1))
}

func TestNewChatModel_Errors(t *testing.T) {
	_, err := NewChatModel(context.Background(), domain.AgentConfig{})
	require.Error(t, err)

	t.Setenv("TEST_AGENT_KEY", "")
	_, err = NewChatModel(context.Background(), domain.AgentConfig{APIKeyEnvVar: "TEST_AGENT_KEY"})
	require.Error(t, err)

	_, err = NewChatModel(context.Background(), domain.AgentConfig{APIKey: "sk-test", Provider: "llama"})
	require.ErrorIs(t, err, domain.ErrValidation)
}
