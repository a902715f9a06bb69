package agenttools

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jentic/internal/broker"
	"jentic/internal/domain"
	"jentic/internal/infra/transport"
)

type recordedCall struct {
	surface string
	tool    string
	success bool
}

type recordingMetrics struct {
	domain.NoopMetrics
	mu    sync.Mutex
	calls []recordedCall
}

func (m *recordingMetrics) ObserveToolCall(surface string, tool string, _ time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, recordedCall{surface: surface, tool: tool, success: success})
}

func newService(t *testing.T, policy domain.LoadPolicy) (*Service, *recordingMetrics) {
	t.Helper()
	tr, err := transport.NewMockTransport(transport.MockOptions{})
	require.NoError(t, err)
	b, err := broker.New(broker.Options{Transport: tr, Policy: policy})
	require.NoError(t, err)
	metrics := &recordingMetrics{}
	return NewService(Options{Broker: b, Surface: "mcp", Metrics: metrics}), metrics
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
		require.True(t, def.Parameters.Type.Has(domain.TypeObject))
	}
	if diff := cmp.Diff([]string{ToolSearchAPIs, ToolLoadExecutionInfo, ToolExecute, ToolGenerateCodeSample}, names); diff != "" {
		t.Fatalf("tool names mismatch (-want +got):\n%s", diff)
	}

	def, ok := Lookup(ToolGetExecutionConfiguration)
	require.True(t, ok)
	assert.Equal(t, ToolLoadExecutionInfo, def.Name)
	assert.True(t, def.Parameters.IsRequired("workflow_uuids"))

	def, ok = Lookup(ToolExecute)
	require.True(t, ok)
	assert.Equal(t, []any{"operation", "workflow"}, def.Parameters.Properties["execution_type"].Enum)

	_, ok = Lookup("delete_everything")
	assert.False(t, ok)
}

func TestSearchAPIsGroupsHits(t *testing.T) {
	svc, metrics := newService(t, domain.LoadPolicyImplicit)

	env, err := svc.Call(context.Background(), ToolSearchAPIs, map[string]any{
		"capability_description": "find restaurants in Dublin",
		"keywords":               []any{"restaurant"},
		"max_results":            float64(3),
	})
	require.NoError(t, err)
	result := env.Result()
	require.NotNil(t, result)

	matches := result["matches"].(map[string]any)
	operations := matches["operations"].([]any)
	require.NotEmpty(t, operations)
	first := operations[0].(map[string]any)
	assert.Equal(t, transport.RestaurantSearchID, first["id"])
	assert.Equal(t, "find restaurants in Dublin", result["query"])
	assert.LessOrEqual(t, result["total_matches"].(int), 3)

	require.Len(t, metrics.calls, 1)
	assert.Equal(t, recordedCall{surface: "mcp", tool: ToolSearchAPIs, success: true}, metrics.calls[0])
}

func TestSearchAPIsSplitsWorkflows(t *testing.T) {
	svc, _ := newService(t, domain.LoadPolicyImplicit)

	env, err := svc.SearchAPIs(context.Background(), map[string]any{
		"capability_description": "discord",
		"apis":                   []any{"discord"},
	})
	require.NoError(t, err)
	matches := env.Result()["matches"].(map[string]any)
	workflows := matches["workflows"].([]any)
	require.Len(t, workflows, 1)
	assert.Equal(t, transport.DailyDigestID, workflows[0].(map[string]any)["id"])
	assert.Len(t, matches["operations"].([]any), 1)
}

func TestSearchAPIsRejectsBadArguments(t *testing.T) {
	svc, metrics := newService(t, domain.LoadPolicyImplicit)

	_, err := svc.Call(context.Background(), ToolSearchAPIs, map[string]any{})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Call(context.Background(), ToolSearchAPIs, map[string]any{
		"capability_description": "weather",
		"keywords":               "not-a-list",
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	require.Len(t, metrics.calls, 2)
	assert.False(t, metrics.calls[0].success)
}

func TestLoadExecutionInfo(t *testing.T) {
	svc, _ := newService(t, domain.LoadPolicyExplicit)

	env, err := svc.Call(context.Background(), ToolLoadExecutionInfo, map[string]any{
		"operation_uuids": []any{transport.RestaurantSearchID},
		"workflow_uuids":  []any{"d3b07384-d113-4ec6-a5f9-12c1f8e0b7a2"},
	})
	require.NoError(t, err)
	require.True(t, env.Succeeded())

	result := env.Result()
	config := result["config"].(map[string]any)
	operations := config["operations"].(map[string]any)
	workflows := config["workflows"].(map[string]any)
	require.Contains(t, operations, transport.RestaurantSearchID)
	require.Contains(t, workflows, transport.DailyDigestID)

	restaurant := operations[transport.RestaurantSearchID].(map[string]any)
	assert.Equal(t, "Search restaurants", restaurant["name"])
	assert.NotContains(t, result, "failures")
}

func TestLoadExecutionInfoAliasAndPartialFailure(t *testing.T) {
	svc, _ := newService(t, domain.LoadPolicyImplicit)

	env, err := svc.Call(context.Background(), ToolGetExecutionConfiguration, map[string]any{
		"operation_uuids": []any{transport.CurrentWeatherID, "op_00000000-0000-0000-0000-000000000000"},
		"workflow_uuids":  []any{},
	})
	require.NoError(t, err)
	require.True(t, env.Succeeded())
	failures := env.Result()["failures"].(map[string]any)
	assert.Contains(t, failures, "op_00000000-0000-0000-0000-000000000000")
}

func TestLoadExecutionInfoFailures(t *testing.T) {
	svc, _ := newService(t, domain.LoadPolicyImplicit)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"nothing requested", map[string]any{"operation_uuids": []any{}, "workflow_uuids": []any{}}},
		{"unknown identifier", map[string]any{"operation_uuids": []any{"00000000-0000-0000-0000-000000000000"}}},
		{"kind mismatch", map[string]any{"operation_uuids": []any{transport.DailyDigestID}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := svc.LoadExecutionInfo(context.Background(), tt.args)
			require.NoError(t, err)
			require.False(t, env.Succeeded())
			result := env.Result()
			assert.NotEmpty(t, result["message"])
			assert.Equal(t, map[string]any{}, result["config"])
			assert.Contains(t, result, "operation_uuids")
			assert.Contains(t, result, "workflow_uuids")
		})
	}
}

func TestExecuteOperationAndWorkflow(t *testing.T) {
	svc, _ := newService(t, domain.LoadPolicyImplicit)
	ctx := context.Background()

	env, err := svc.Call(ctx, ToolExecute, map[string]any{
		"execution_type": "operation",
		"uuid":           "5b1f3c1e-8d2a-4e0b-9c47-2f6a1d9e7a10",
		"inputs":         map[string]any{"area": "Dublin", "cuisine": "italian"},
	})
	require.NoError(t, err)
	require.True(t, env.Succeeded())
	output := env.Result()["output"].(map[string]any)
	assert.Contains(t, output, "businesses")
	assert.NotContains(t, env.Result(), "step_results")

	env, err = svc.Call(ctx, ToolExecute, map[string]any{
		"execution_type": "workflow",
		"uuid":           transport.DailyDigestID,
		"inputs":         map[string]any{"city": "Dublin", "channel_id": "42"},
	})
	require.NoError(t, err)
	require.True(t, env.Succeeded())
	assert.Len(t, env.Result()["step_results"], 3)
}

func TestExecuteReportsFailuresInEnvelope(t *testing.T) {
	svc, metrics := newService(t, domain.LoadPolicyImplicit)

	tests := []struct {
		name    string
		args    map[string]any
		message string
	}{
		{
			name:    "invalid execution type",
			args:    map[string]any{"execution_type": "job", "uuid": "x", "inputs": map[string]any{}},
			message: "Invalid execution_type",
		},
		{
			name:    "missing uuid",
			args:    map[string]any{"execution_type": "operation", "inputs": map[string]any{}},
			message: "uuid",
		},
		{
			name:    "inputs not an object",
			args:    map[string]any{"execution_type": "operation", "uuid": transport.RestaurantSearchID, "inputs": "Dublin"},
			message: "must be an object",
		},
		{
			name:    "schema violation",
			args:    map[string]any{"execution_type": "operation", "uuid": transport.RestaurantSearchID, "inputs": map[string]any{}},
			message: "INVALID_ARGUMENT",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := svc.Call(context.Background(), ToolExecute, tt.args)
			require.NoError(t, err)
			require.False(t, env.Succeeded())
			assert.Contains(t, env.Result()["message"], tt.message)
			assert.Equal(t, string(domain.CodeInvalidArgument), env.Result()["code"])
		})
	}
	for _, call := range metrics.calls {
		assert.False(t, call.success)
	}
}

func TestExplicitPolicyExecuteNotLoaded(t *testing.T) {
	svc, _ := newService(t, domain.LoadPolicyExplicit)

	env, err := svc.Execute(context.Background(), map[string]any{
		"execution_type": "operation",
		"uuid":           transport.XKCDComicID,
	})
	require.NoError(t, err)
	require.False(t, env.Succeeded())
	assert.Contains(t, env.Result()["message"], "NOT_LOADED")
	assert.Equal(t, string(domain.CodeNotLoaded), env.Result()["code"])
}

func TestCallUnknownToolAndBadJSON(t *testing.T) {
	svc, _ := newService(t, domain.LoadPolicyImplicit)

	_, err := svc.Call(context.Background(), "drop_tables", nil)
	require.ErrorIs(t, err, domain.ErrUnknownTool)

	_, err = svc.CallJSON(context.Background(), ToolSearchAPIs, []byte(`["weather"]`))
	require.ErrorIs(t, err, domain.ErrValidation)

	env, err := svc.CallJSON(context.Background(), ToolSearchAPIs, []byte(`{"capability_description":"weather"}`))
	require.NoError(t, err)
	assert.True(t, env.Succeeded())
}

func TestGenerateCodeSample(t *testing.T) {
	svc, metrics := newService(t, domain.LoadPolicyImplicit)
	ctx := context.Background()

	tests := []struct {
		name     string
		args     map[string]any
		contains []string
	}{
		{name: "defaults to claude python", args: map[string]any{}, contains: []string{"```python", "import anthropic", "input_schema"}},
		{name: "chatgpt python", args: map[string]any{"format": "chatgpt", "language": "python"}, contains: []string{"import openai", `"type": "function"`}},
		{name: "openai alias", args: map[string]any{"format": "openai", "language": "Python"}, contains: []string{"import openai"}},
		{name: "anthropic javascript", args: map[string]any{"format": "anthropic", "language": "javascript"}, contains: []string{"```javascript", "@anthropic-ai/sdk"}},
		{name: "chatgpt javascript", args: map[string]any{"format": "chatgpt", "language": "javascript"}, contains: []string{`from "openai"`, "tool_call_id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := svc.Call(ctx, ToolGenerateCodeSample, tt.args)
			require.NoError(t, err)
			require.True(t, env.Succeeded())
			code, ok := env.Result()["code"].(string)
			require.True(t, ok)
			for _, want := range tt.contains {
				assert.Contains(t, code, want)
			}
			assert.Contains(t, code, "/openapi.json")
		})
	}
	assert.Len(t, metrics.calls, len(tests))
}

func TestGenerateCodeSampleUnavailable(t *testing.T) {
	svc, _ := newService(t, domain.LoadPolicyImplicit)
	ctx := context.Background()

	env, err := svc.Call(ctx, ToolGenerateCodeSample, map[string]any{"format": "gemini"})
	require.NoError(t, err)
	require.False(t, env.Succeeded())
	assert.Equal(t, string(domain.CodeUnsupportedFormat), env.Result()["error_code"])

	env, err = svc.Call(ctx, ToolGenerateCodeSample, map[string]any{"format": "mcp"})
	require.NoError(t, err)
	require.False(t, env.Succeeded())
	assert.Contains(t, env.Result()["message"], "claude, chatgpt")

	env, err = svc.Call(ctx, ToolGenerateCodeSample, map[string]any{"language": "cobol"})
	require.NoError(t, err)
	require.False(t, env.Succeeded())
	assert.Equal(t, string(domain.CodeInvalidArgument), env.Result()["error_code"])
	assert.Contains(t, env.Result()["message"], "javascript, python")
	assert.NotContains(t, env.Result(), "code")

	_, err = svc.Call(ctx, ToolGenerateCodeSample, map[string]any{"language": []any{"go"}})
	require.ErrorIs(t, err, domain.ErrValidation)
}
