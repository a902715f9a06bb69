package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jentic/internal/domain"
	"jentic/internal/infra/telemetry"
)

func newTestHTTPTransport(t *testing.T, handler http.HandlerFunc, opts HTTPOptions) *HTTPTransport {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL + "/api/v1"
	if opts.APIKey == "" {
		opts.APIKey = "ak_test"
	}
	tr, err := NewHTTPTransport(opts)
	require.NoError(t, err)
	return tr
}

func TestNewHTTPTransportValidation(t *testing.T) {
	_, err := NewHTTPTransport(HTTPOptions{})
	require.ErrorIs(t, err, domain.ErrMissingAPIKey)

	_, err = NewHTTPTransport(HTTPOptions{APIKey: "k", BaseURL: "ftp://example.com"})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestHTTPTransportSearch(t *testing.T) {
	var got searchRequest
	tr := newTestHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/agents/search", r.URL.Path)
		assert.Equal(t, "ak_test", r.Header.Get(domain.APIKeyHeader))
		assert.Equal(t, domain.DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get(telemetry.RequestIDHeader))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"workflows": []any{
				map[string]any{"id": "wf-1", "name": "Daily digest", "api_name": "Discord", "distance": 0.9},
			},
			"operations": []any{
				map[string]any{"id": "op-1", "summary": "Search restaurants", "path": "/businesses/search", "method": "get", "api_name": "Yelp", "distance": 0.7},
				map[string]any{"id": "op-2", "path": "/weather", "method": "get", "distance": 0.95},
			},
		})
	}, HTTPOptions{})

	res, err := tr.Search(context.Background(), domain.SearchQuery{Text: "restaurants", Keywords: []string{"dublin"}, Limit: 5})
	require.NoError(t, err)

	want := searchRequest{Query: "restaurants", Limit: 5, Keywords: []string{"dublin"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}

	// platform order is kept: workflows first, then operations, no re-sorting
	require.Equal(t, []domain.OperationID{
		domain.NewWorkflowID("wf-1"),
		domain.NewOperationID("op-1"),
		domain.NewOperationID("op-2"),
	}, res.IDs())
	require.Equal(t, "Search restaurants", res.Hits[1].Name)
	require.Equal(t, "GET", res.Hits[1].Method)
	require.Equal(t, "GET /weather", res.Hits[2].Name)
	require.Equal(t, 3, res.TotalCount)
}

func TestHTTPTransportSearchUnifiedResults(t *testing.T) {
	tr := newTestHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []any{
				map[string]any{"id": "op_b", "entity_type": "operation", "summary": "B", "match_score": 0.4},
				map[string]any{"id": "a", "entity_type": "workflow", "name": "A", "distance": 0.9},
			},
		})
	}, HTTPOptions{})

	res, err := tr.Search(context.Background(), domain.SearchQuery{Text: "x"})
	require.NoError(t, err)
	require.Equal(t, []domain.OperationID{domain.NewOperationID("b"), domain.NewWorkflowID("a")}, res.IDs())
	require.InDelta(t, 0.4, res.Hits[0].MatchScore, 1e-9)
}

func TestHTTPTransportLoad(t *testing.T) {
	var got loadRequest
	tr := newTestHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/agents/load", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"files": map[string]any{},
			"operations": map[string]any{
				"op-1": map[string]any{
					"id":      "op-1",
					"summary": "Search restaurants",
					"path":    "/businesses/search",
					"method":  "get",
					"inputs": map[string]any{
						"type":       "object",
						"properties": map[string]any{"area": map[string]any{"type": "string"}},
						"required":   []any{"area"},
					},
					"security": []any{map[string]any{"type": "apiKey", "name": "Authorization", "in": "header"}},
				},
			},
			"workflows": map[string]any{
				"wf-1": map[string]any{"workflow_id": "dailyDigest", "workflow_uuid": "wf-1", "api_names": []any{"Discord", "xkcd"}},
			},
		})
	}, HTTPOptions{})

	ids := []domain.OperationID{domain.NewOperationID("op-1"), domain.NewWorkflowID("wf-1"), domain.NewOperationID("missing")}
	resp, err := tr.Load(context.Background(), ids)
	require.NoError(t, err)

	if diff := cmp.Diff(loadRequest{OperationUUIDs: []string{"op-1", "missing"}, WorkflowUUIDs: []string{"wf-1"}}, got); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, resp.Metadata, 2)

	op := resp.Metadata[domain.NewOperationID("op-1")]
	require.Equal(t, "Search restaurants", op.Name)
	require.Equal(t, "GET", op.Method)
	require.True(t, op.InputSchema.IsRequired("area"))
	require.Len(t, op.Auth, 1)
	require.Equal(t, "apiKey", op.Auth[0].Type)

	wf := resp.Metadata[domain.NewWorkflowID("wf-1")]
	require.Equal(t, "dailyDigest", wf.Name)
	require.Equal(t, "Discord, xkcd", wf.APIName)
	require.NotNil(t, wf.InputSchema)
}

func TestHTTPTransportExecute(t *testing.T) {
	var got executeRequest
	tr := newTestHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.UUID == "bad" {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "upstream returned 422"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"output":       map[string]any{"posted": true},
			"step_results": map[string]any{"fetch_weather": map[string]any{"status": "ok"}},
		})
	}, HTTPOptions{})

	res, err := tr.Execute(context.Background(), domain.ExecutionRequest{ID: domain.NewWorkflowID("wf-1"), Inputs: map[string]any{"city": "Dublin"}})
	require.NoError(t, err)
	require.Equal(t, executeRequest{ExecutionType: "workflow", UUID: "wf-1", Inputs: map[string]any{"city": "Dublin"}}, got)
	require.True(t, res.Success)
	require.Nil(t, res.Error)
	require.Equal(t, map[string]any{"posted": true}, res.Output)
	require.Contains(t, res.StepResults, "fetch_weather")

	res, err = tr.Execute(context.Background(), domain.ExecutionRequest{ID: domain.NewOperationID("bad")})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, domain.CodeExecutionFailed, res.Error.Code)
	require.Equal(t, "upstream returned 422", res.Error.Message)
	require.Equal(t, map[string]any{}, got.Inputs)
}

func TestHTTPTransportListAPIs(t *testing.T) {
	tr := newTestHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/agents/apis", r.URL.Path)
		_, _ = w.Write([]byte(`[{"api_vendor":"discord.com","api_name":"Discord","api_version":"10"}]`))
	}, HTTPOptions{})

	apis, err := tr.ListAPIs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.APIIdentifier{{Vendor: "discord.com", Name: "Discord", Version: "10"}}, apis)
}

func TestHTTPTransportStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		code   domain.ErrorCode
	}{
		{http.StatusUnauthorized, domain.CodeUnauthenticated},
		{http.StatusForbidden, domain.CodePermissionDenied},
		{http.StatusNotFound, domain.CodeNotFound},
		{http.StatusRequestTimeout, domain.CodeDeadlineExceeded},
		{http.StatusGatewayTimeout, domain.CodeDeadlineExceeded},
		{http.StatusTooManyRequests, domain.CodeUnavailable},
		{http.StatusBadGateway, domain.CodeUnavailable},
		{http.StatusUnprocessableEntity, domain.CodeRejected},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			tr := newTestHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"detail":"nope"}`))
			}, HTTPOptions{})

			_, err := tr.Search(context.Background(), domain.SearchQuery{Text: "x"})
			require.Error(t, err)
			code, ok := domain.CodeFrom(err)
			require.True(t, ok)
			require.Equal(t, tc.code, code)
			require.Contains(t, err.Error(), "nope")
		})
	}
}

func TestHTTPTransportRemoteRejectionIsTransportError(t *testing.T) {
	tr := newTestHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"upstream rejected"}`))
	}, HTTPOptions{})

	_, err := tr.Search(context.Background(), domain.SearchQuery{Text: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.False(t, errors.Is(err, domain.ErrValidation))
	assert.Contains(t, err.Error(), "upstream rejected")

	_, err = tr.Execute(context.Background(), domain.ExecutionRequest{ID: domain.NewOperationID("op-1"), Inputs: map[string]any{}})
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeRejected, code)
	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.False(t, errors.Is(err, domain.ErrValidation))
}

func TestHTTPTransportContextDeadline(t *testing.T) {
	release := make(chan struct{})
	tr := newTestHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, HTTPOptions{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tr.Load(ctx, []domain.OperationID{domain.NewOperationID("a")})
	require.Error(t, err)
	code, _ := domain.CodeFrom(err)
	require.Equal(t, domain.CodeDeadlineExceeded, code)
	require.True(t, errors.Is(err, domain.ErrTransport))
}

func TestHTTPTransportMaxConnections(t *testing.T) {
	var current, peak atomic.Int32
	tr := newTestHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
		_, _ = w.Write([]byte(`[]`))
	}, HTTPOptions{MaxConnections: 2})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.ListAPIs(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestHTTPTransportPropagatesRequestID(t *testing.T) {
	var seen string
	tr := newTestHTTPTransport(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(telemetry.RequestIDHeader)
		_, _ = w.Write([]byte(`[]`))
	}, HTTPOptions{})

	ctx := telemetry.WithRequestMeta(context.Background(), telemetry.RequestMeta{RequestID: "req-42"})
	_, err := tr.ListAPIs(ctx)
	require.NoError(t, err)
	require.Equal(t, "req-42", seen)
}
