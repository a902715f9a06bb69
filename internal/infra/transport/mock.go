package transport

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"jentic/internal/domain"
	"jentic/internal/infra/telemetry"
)

// CatalogEntry describes one operation or workflow served by the mock transport.
type CatalogEntry struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	APIVendor   string         `yaml:"api_vendor" json:"api_vendor"`
	APIName     string         `yaml:"api_name" json:"api_name"`
	Method      string         `yaml:"method" json:"method"`
	Path        string         `yaml:"path" json:"path"`
	Keywords    []string       `yaml:"keywords" json:"keywords"`
	Inputs      map[string]any `yaml:"inputs" json:"inputs"`
	Output      any            `yaml:"output" json:"output"`
	Steps       []string       `yaml:"steps" json:"steps"`
	Fail        string         `yaml:"fail" json:"fail"`
}

type catalogFile struct {
	Entries []CatalogEntry `yaml:"entries" json:"entries"`
}

type mockEntry struct {
	id   domain.OperationID
	raw  CatalogEntry
	meta domain.ExecutionMetadata
}

type MockOptions struct {
	Entries []CatalogEntry
	// Latency delays every call, honoring cancellation.
	Latency time.Duration
	Logger  *zap.Logger
}

// MockTransport serves a static catalog in process. Search ranks entries by
// keyword overlap the way the platform's demo mode does.
type MockTransport struct {
	entries []mockEntry
	latency time.Duration
	logger  *zap.Logger

	searchCalls  atomic.Int64
	loadCalls    atomic.Int64
	executeCalls atomic.Int64
}

func NewMockTransport(opts MockOptions) (*MockTransport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	raw := opts.Entries
	if raw == nil {
		raw = DefaultCatalog()
	}
	entries, err := buildEntries(raw)
	if err != nil {
		return nil, err
	}
	return &MockTransport{
		entries: entries,
		latency: opts.Latency,
		logger:  logger.Named("mock_transport"),
	}, nil
}

// LoadCatalogFile reads catalog entries from a YAML or JSON file.
func LoadCatalogFile(path string) ([]CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(file.Entries) == 0 {
		return nil, fmt.Errorf("catalog %s has no entries", path)
	}
	return file.Entries, nil
}

func buildEntries(raw []CatalogEntry) ([]mockEntry, error) {
	seen := make(map[domain.OperationID]struct{}, len(raw))
	out := make([]mockEntry, 0, len(raw))
	for _, entry := range raw {
		id, err := domain.ParseOperationID(entry.ID)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", entry.ID, err)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("catalog entry %q is duplicated", entry.ID)
		}
		seen[id] = struct{}{}

		input := domain.ObjectSchema()
		if len(entry.Inputs) > 0 {
			input, err = domain.SchemaFromValue(entry.Inputs)
			if err != nil {
				return nil, fmt.Errorf("catalog entry %q inputs: %w", entry.ID, err)
			}
		}
		out = append(out, mockEntry{
			id:  id,
			raw: entry,
			meta: domain.ExecutionMetadata{
				ID:          id,
				Name:        entry.Name,
				Description: entry.Description,
				APIName:     entry.APIName,
				Method:      strings.ToUpper(entry.Method),
				Path:        entry.Path,
				InputSchema: input,
			},
		})
	}
	return out, nil
}

func (m *MockTransport) SearchCalls() int64  { return m.searchCalls.Load() }
func (m *MockTransport) LoadCalls() int64    { return m.loadCalls.Load() }
func (m *MockTransport) ExecuteCalls() int64 { return m.executeCalls.Load() }

func (m *MockTransport) ListAPIs(ctx context.Context) ([]domain.APIIdentifier, error) {
	if err := m.wait(ctx, domain.RemoteOpListAPIs); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var apis []domain.APIIdentifier
	for _, entry := range m.entries {
		key := entry.raw.APIVendor + "/" + entry.raw.APIName
		if _, ok := seen[key]; ok || entry.raw.APIName == "" {
			continue
		}
		seen[key] = struct{}{}
		apis = append(apis, domain.APIIdentifier{Vendor: entry.raw.APIVendor, Name: entry.raw.APIName, Version: "1.0"})
	}
	sort.Slice(apis, func(i, j int) bool { return apis[i].Name < apis[j].Name })
	return apis, nil
}

func (m *MockTransport) Search(ctx context.Context, query domain.SearchQuery) (domain.SearchResult, error) {
	m.searchCalls.Add(1)
	if err := m.wait(ctx, domain.RemoteOpSearch); err != nil {
		return domain.SearchResult{}, err
	}
	type scored struct {
		hit   domain.SearchHit
		score float64
	}
	var matches []scored
	for _, entry := range m.entries {
		if !matchesAPIs(entry.raw, query.APIs) {
			continue
		}
		score := scoreEntry(entry.raw, query.Text, query.Keywords)
		if score <= 0 && (query.Text != "" || len(query.Keywords) > 0) {
			continue
		}
		matches = append(matches, scored{
			score: score,
			hit: domain.SearchHit{
				ID:          entry.id,
				Name:        entry.meta.Name,
				Description: entry.meta.Description,
				APIName:     entry.meta.APIName,
				Method:      entry.meta.Method,
				Path:        entry.meta.Path,
				MatchScore:  score,
			},
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	limit := query.Limit
	if limit <= 0 {
		limit = domain.DefaultSearchLimit
	}
	total := len(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	hits := make([]domain.SearchHit, 0, len(matches))
	for _, match := range matches {
		hits = append(hits, match.hit)
	}
	return domain.SearchResult{Query: query.Text, Hits: hits, TotalCount: total}, nil
}

func (m *MockTransport) Load(ctx context.Context, ids []domain.OperationID) (domain.LoadResponse, error) {
	m.loadCalls.Add(1)
	if err := m.wait(ctx, domain.RemoteOpLoad); err != nil {
		return domain.LoadResponse{}, err
	}
	out := domain.LoadResponse{Metadata: make(map[domain.OperationID]domain.ExecutionMetadata, len(ids))}
	for _, id := range ids {
		if entry, ok := m.lookup(id); ok {
			out.Metadata[id] = entry.meta.Clone()
		}
	}
	return out, nil
}

func (m *MockTransport) Execute(ctx context.Context, req domain.ExecutionRequest) (domain.ExecutionResult, error) {
	m.executeCalls.Add(1)
	if err := m.wait(ctx, domain.RemoteOpExecute); err != nil {
		return domain.ExecutionResult{}, err
	}
	entry, ok := m.lookup(req.ID)
	if !ok {
		return domain.Failed(domain.CodeNotFound, fmt.Sprintf("%s is not in the catalog", req.ID)), nil
	}
	if entry.raw.Fail != "" {
		return domain.Failed(domain.CodeExecutionFailed, entry.raw.Fail), nil
	}

	output := domain.CloneJSONValue(entry.raw.Output)
	if output == nil {
		output = map[string]any{"echo": domain.CloneJSONValue(map[string]any(req.Inputs))}
	}
	result := domain.Succeeded(output)
	if req.ID.Kind == domain.KindWorkflow && len(entry.raw.Steps) > 0 {
		result.StepResults = make(map[string]any, len(entry.raw.Steps))
		for _, step := range entry.raw.Steps {
			result.StepResults[step] = map[string]any{"status": "completed"}
		}
	}
	m.logger.Debug("mock execution", telemetry.OperationField(req.ID.String()))
	return result, nil
}

func (m *MockTransport) lookup(id domain.OperationID) (mockEntry, bool) {
	for _, entry := range m.entries {
		if entry.id == id {
			return entry, true
		}
	}
	return mockEntry{}, false
}

func (m *MockTransport) wait(ctx context.Context, op domain.RemoteOp) error {
	if m.latency <= 0 {
		if err := ctx.Err(); err != nil {
			return contextError(string(op), err)
		}
		return nil
	}
	timer := time.NewTimer(m.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return contextError(string(op), ctx.Err())
	case <-timer.C:
		return nil
	}
}

func matchesAPIs(entry CatalogEntry, apis []string) bool {
	if len(apis) == 0 {
		return true
	}
	name := strings.ToLower(entry.APIName)
	vendor := strings.ToLower(entry.APIVendor)
	for _, api := range apis {
		want := strings.ToLower(strings.TrimSpace(api))
		if want == "" {
			continue
		}
		if want == vendor || strings.Contains(name, want) {
			return true
		}
	}
	return false
}

// scoreEntry mirrors the demo matcher: id hits weigh most, then whole-query
// matches on the summary and description, then per-keyword and per-word hits.
func scoreEntry(entry CatalogEntry, query string, keywords []string) float64 {
	id := strings.ToLower(entry.ID)
	summary := strings.ToLower(entry.Name)
	description := strings.ToLower(entry.Description)
	tags := strings.ToLower(strings.Join(entry.Keywords, " "))
	q := strings.ToLower(strings.TrimSpace(query))

	score := 0.0
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(id, kw) {
			score += 0.8
			break
		}
	}
	if q != "" {
		if strings.Contains(q, id) {
			score += 0.9
		}
		if strings.Contains(summary, q) {
			score += 0.7
		}
		if strings.Contains(description, q) {
			score += 0.5
		}
	}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(summary, kw) || strings.Contains(tags, kw) {
			score += 0.3
		}
		if strings.Contains(description, kw) {
			score += 0.2
		}
	}
	for _, word := range strings.Fields(q) {
		if len(word) < 4 {
			continue
		}
		word = strings.TrimRight(word, "s")
		if strings.Contains(summary, word) || strings.Contains(tags, word) || strings.Contains(description, word) {
			score += 0.1
		}
	}
	return score
}

var _ domain.Transport = (*MockTransport)(nil)
