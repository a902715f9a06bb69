package domain

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// LoadPolicy decides what Execute does when metadata for an id is not cached.
type LoadPolicy string

const (
	// LoadPolicyImplicit loads missing metadata before validating and dispatching.
	LoadPolicyImplicit LoadPolicy = "implicit"
	// LoadPolicyExplicit fails with ErrNotLoaded when metadata is missing.
	LoadPolicyExplicit LoadPolicy = "explicit"
)

// ParseLoadPolicy normalizes a configured policy name.
func ParseLoadPolicy(raw string) (LoadPolicy, error) {
	switch LoadPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", LoadPolicyImplicit:
		return LoadPolicyImplicit, nil
	case LoadPolicyExplicit:
		return LoadPolicyExplicit, nil
	default:
		return "", E(CodeInvalidArgument, "parse load policy", "load policy must be 'implicit' or 'explicit', got "+raw, nil)
	}
}

// APIIdentifier names an API the agent has access to.
type APIIdentifier struct {
	Vendor  string `json:"api_vendor"`
	Name    string `json:"api_name"`
	Version string `json:"api_version,omitempty"`
}

// SearchQuery is a free-text search with optional structured filters.
type SearchQuery struct {
	Text                string   `json:"query"`
	APIs                []string `json:"apis,omitempty"`
	Keywords            []string `json:"keywords,omitempty"`
	Limit               int      `json:"limit,omitempty"`
	FilterByCredentials bool     `json:"filter_by_credentials,omitempty"`
}

// HasFilters reports whether any structured filter is set.
func (q SearchQuery) HasFilters() bool {
	return len(q.APIs) > 0 || len(q.Keywords) > 0 || q.FilterByCredentials
}

// Normalized returns the query with trimmed text and the default limit applied.
func (q SearchQuery) Normalized() SearchQuery {
	out := q
	out.Text = strings.TrimSpace(q.Text)
	out.APIs = trimAll(q.APIs)
	out.Keywords = trimAll(q.Keywords)
	if out.Limit == 0 {
		out.Limit = DefaultSearchLimit
	}
	return out
}

// Validate reports structurally invalid queries.
func (q SearchQuery) Validate() error {
	if strings.TrimSpace(q.Text) == "" && !q.HasFilters() {
		return E(CodeInvalidArgument, "search", "query text is empty and no filters are set", nil)
	}
	if q.Limit < 0 || q.Limit > MaxSearchLimit {
		return E(CodeInvalidArgument, "search", "limit must be between 1 and 50", nil)
	}
	return nil
}

// SearchHit is one ranked candidate returned by a search.
type SearchHit struct {
	ID          OperationID `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	APIName     string      `json:"api_name,omitempty"`
	Method      string      `json:"method,omitempty"`
	Path        string      `json:"path,omitempty"`
	MatchScore  float64     `json:"match_score"`
}

// SearchResult keeps hits in platform relevance order.
type SearchResult struct {
	Query      string      `json:"query"`
	Hits       []SearchHit `json:"results"`
	TotalCount int         `json:"total_count"`
}

// IDs returns the hit identifiers in rank order.
func (r SearchResult) IDs() []OperationID {
	ids := make([]OperationID, 0, len(r.Hits))
	for _, hit := range r.Hits {
		ids = append(ids, hit.ID)
	}
	return ids
}

// AuthRequirement describes one credential the target API expects.
type AuthRequirement struct {
	Type   string   `json:"type"`
	Name   string   `json:"name,omitempty"`
	In     string   `json:"in,omitempty"`
	Scheme string   `json:"scheme,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

// ExecutionMetadata is what Load produces for one identifier.
type ExecutionMetadata struct {
	ID           OperationID       `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	APIName      string            `json:"api_name,omitempty"`
	Method       string            `json:"method,omitempty"`
	Path         string            `json:"path,omitempty"`
	InputSchema  *Schema           `json:"input_schema,omitempty"`
	OutputSchema *Schema           `json:"output_schema,omitempty"`
	Auth         []AuthRequirement `json:"auth,omitempty"`
	LoadedAt     time.Time         `json:"loaded_at"`
}

// Clone returns a deep copy so cache entries are never shared with callers.
func (m ExecutionMetadata) Clone() ExecutionMetadata {
	out := m
	out.InputSchema = m.InputSchema.Clone()
	out.OutputSchema = m.OutputSchema.Clone()
	if m.Auth != nil {
		out.Auth = make([]AuthRequirement, len(m.Auth))
		for i, auth := range m.Auth {
			auth.Scopes = append([]string(nil), auth.Scopes...)
			out.Auth[i] = auth
		}
	}
	return out
}

// ExecutionRequest asks the broker to run one operation or workflow.
type ExecutionRequest struct {
	ID     OperationID    `json:"id"`
	Inputs map[string]any `json:"inputs"`
}

// ExecutionError carries a failed execution's message and machine-readable code.
type ExecutionError struct {
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message"`
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	return string(e.Code) + ": " + e.Message
}

// Is lets errors.Is match a failed result against the domain sentinels.
func (e *ExecutionError) Is(target error) bool {
	if e == nil {
		return false
	}
	sentinel := sentinelFor(e.Code)
	return sentinel != nil && sentinel == target
}

// ExecutionResult is a tagged success/error value. Exactly one of Output
// (with Success) or Error is meaningful.
type ExecutionResult struct {
	Success     bool            `json:"success"`
	Output      any             `json:"output,omitempty"`
	Error       *ExecutionError `json:"error,omitempty"`
	StepResults map[string]any  `json:"step_results,omitempty"`
}

// Succeeded builds a success result.
func Succeeded(output any) ExecutionResult {
	return ExecutionResult{Success: true, Output: output}
}

// Failed builds an error result.
func Failed(code ErrorCode, message string) ExecutionResult {
	if code == "" {
		code = CodeExecutionFailed
	}
	return ExecutionResult{Error: &ExecutionError{Code: code, Message: message}}
}

// FailedFrom builds an error result from an error value, keeping its code.
// The message is the error's own text without the op and code prefix.
func FailedFrom(err error, fallback ErrorCode) ExecutionResult {
	if err == nil {
		return Failed(fallback, "unknown error")
	}
	code, ok := CodeFrom(err)
	if !ok {
		code = fallback
	}
	message := err.Error()
	var domainErr *Error
	if errors.As(err, &domainErr) {
		switch {
		case domainErr.Message != "":
			message = domainErr.Message
		case domainErr.Cause != nil:
			message = domainErr.Cause.Error()
		}
	}
	return Failed(code, message)
}

// Err returns the failure as an error, or nil for a success.
func (r ExecutionResult) Err() error {
	if r.Success || r.Error == nil {
		return nil
	}
	return r.Error
}

// ToolFormat names a vendor calling convention for tool definitions.
type ToolFormat string

const (
	ToolFormatOpenAI    ToolFormat = "openai"
	ToolFormatAnthropic ToolFormat = "anthropic"
	ToolFormatMCP       ToolFormat = "mcp"
	ToolFormatEino      ToolFormat = "eino"
)

// ToolDefinition is a read-only projection of ExecutionMetadata. Spec holds
// the vendor-specific body; its concrete type depends on Format.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Format      ToolFormat  `json:"format"`
	ID          OperationID `json:"id"`
	InputSchema *Schema     `json:"input_schema,omitempty"`
	Spec        any         `json:"spec"`
}

// LoadOutcome is the per-identifier result of a Load.
type LoadOutcome struct {
	Metadata *ExecutionMetadata
	Err      error
	Cached   bool
}

// LoadResult maps every requested identifier to its outcome.
type LoadResult map[OperationID]LoadOutcome

// Loaded returns the successfully loaded metadata sorted by identifier.
func (r LoadResult) Loaded() []ExecutionMetadata {
	out := make([]ExecutionMetadata, 0, len(r))
	for _, outcome := range r {
		if outcome.Err == nil && outcome.Metadata != nil {
			out = append(out, *outcome.Metadata)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// Failures returns the per-identifier errors.
func (r LoadResult) Failures() map[OperationID]error {
	out := make(map[OperationID]error)
	for id, outcome := range r {
		if outcome.Err != nil {
			out[id] = outcome.Err
		}
	}
	return out
}

// LoadResponse is what the transport returns for a batched load. Identifiers
// missing from Metadata are reported as not found by the broker.
type LoadResponse struct {
	Metadata map[OperationID]ExecutionMetadata
}

// Transport is the broker's only path to the remote platform.
type Transport interface {
	Search(ctx context.Context, query SearchQuery) (SearchResult, error)
	Load(ctx context.Context, ids []OperationID) (LoadResponse, error)
	Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
	ListAPIs(ctx context.Context) ([]APIIdentifier, error)
}

// CloneJSONValue deep-copies values decoded from JSON.
func CloneJSONValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = CloneJSONValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = CloneJSONValue(item)
		}
		return out
	default:
		return v
	}
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
