package transport

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"jentic/internal/domain"
	"jentic/internal/infra/telemetry"
)

type searchRequest struct {
	Query               string   `json:"query"`
	Limit               int      `json:"limit"`
	APIs                []string `json:"apis,omitempty"`
	Keywords            []string `json:"keywords,omitempty"`
	FilterByCredentials bool     `json:"filter_by_credentials,omitempty"`
}

type workflowHit struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Summary     string  `json:"summary"`
	Description string  `json:"description"`
	APIName     string  `json:"api_name"`
	Distance    float64 `json:"distance"`
}

type operationHit struct {
	ID          string  `json:"id"`
	Summary     string  `json:"summary"`
	Description string  `json:"description"`
	Path        string  `json:"path"`
	Method      string  `json:"method"`
	APIName     string  `json:"api_name"`
	Distance    float64 `json:"distance"`
}

// rankedHit is the unified form some platform versions return under
// "results", already in relevance order across kinds.
type rankedHit struct {
	ID          string   `json:"id"`
	EntityType  string   `json:"entity_type"`
	Name        string   `json:"name"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Path        string   `json:"path"`
	Method      string   `json:"method"`
	APIName     string   `json:"api_name"`
	Distance    float64  `json:"distance"`
	MatchScore  *float64 `json:"match_score"`
}

type searchResponse struct {
	Results    []rankedHit    `json:"results"`
	Workflows  []workflowHit  `json:"workflows"`
	Operations []operationHit `json:"operations"`
}

// hits keeps platform order: the unified list when present, otherwise
// workflows followed by operations.
func (r searchResponse) hits() ([]domain.SearchHit, error) {
	if len(r.Results) > 0 {
		out := make([]domain.SearchHit, 0, len(r.Results))
		for _, hit := range r.Results {
			id, err := domain.ParseKindID(hit.EntityType, hit.ID)
			if err != nil {
				return nil, err
			}
			score := hit.Distance
			if hit.MatchScore != nil {
				score = *hit.MatchScore
			}
			out = append(out, domain.SearchHit{
				ID:          id,
				Name:        firstNonEmpty(hit.Name, hit.Summary, hit.ID),
				Description: hit.Description,
				APIName:     hit.APIName,
				Method:      strings.ToUpper(hit.Method),
				Path:        hit.Path,
				MatchScore:  score,
			})
		}
		return out, nil
	}

	out := make([]domain.SearchHit, 0, len(r.Workflows)+len(r.Operations))
	for _, hit := range r.Workflows {
		id, err := domain.ParseKindID(string(domain.KindWorkflow), hit.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.SearchHit{
			ID:          id,
			Name:        firstNonEmpty(hit.Name, hit.Summary, hit.ID),
			Description: hit.Description,
			APIName:     hit.APIName,
			MatchScore:  hit.Distance,
		})
	}
	for _, hit := range r.Operations {
		id, err := domain.ParseKindID(string(domain.KindOperation), hit.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.SearchHit{
			ID:          id,
			Name:        firstNonEmpty(hit.Summary, strings.TrimSpace(strings.ToUpper(hit.Method)+" "+hit.Path), hit.ID),
			Description: hit.Description,
			APIName:     hit.APIName,
			Method:      strings.ToUpper(hit.Method),
			Path:        hit.Path,
			MatchScore:  hit.Distance,
		})
	}
	return out, nil
}

type loadRequest struct {
	WorkflowUUIDs  []string `json:"workflow_uuids"`
	OperationUUIDs []string `json:"operation_uuids"`
}

type workflowEntry struct {
	WorkflowID   string          `json:"workflow_id"`
	WorkflowUUID string          `json:"workflow_uuid"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	APIName      string          `json:"api_name"`
	APINames     []string        `json:"api_names"`
	Inputs       json.RawMessage `json:"inputs"`
	Outputs      json.RawMessage `json:"outputs"`
	Security     json.RawMessage `json:"security"`
}

type operationEntry struct {
	ID          string          `json:"id"`
	OperationID string          `json:"operation_id"`
	APIName     string          `json:"api_name"`
	Path        string          `json:"path"`
	Method      string          `json:"method"`
	Summary     string          `json:"summary"`
	Description string          `json:"description"`
	Inputs      json.RawMessage `json:"inputs"`
	Outputs     json.RawMessage `json:"outputs"`
	Security    json.RawMessage `json:"security"`
}

type loadResponse struct {
	Workflows  map[string]workflowEntry  `json:"workflows"`
	Operations map[string]operationEntry `json:"operations"`
}

// toDomain converts the entries the platform returned. Entries whose schema
// cannot be decoded are dropped and surface as not found in the broker.
func (r loadResponse) toDomain(logger *zap.Logger) domain.LoadResponse {
	out := domain.LoadResponse{Metadata: make(map[domain.OperationID]domain.ExecutionMetadata, len(r.Workflows)+len(r.Operations))}

	for uuid, entry := range r.Workflows {
		id := domain.NewWorkflowID(firstNonEmpty(uuid, entry.WorkflowUUID))
		meta, err := buildMetadata(id, entry.Inputs, entry.Outputs, entry.Security)
		if err != nil {
			logger.Warn("dropping workflow with malformed schema", telemetry.OperationField(id.String()), zap.Error(err))
			continue
		}
		meta.Name = firstNonEmpty(entry.Name, entry.WorkflowID, uuid)
		meta.Description = entry.Description
		meta.APIName = entry.APIName
		if meta.APIName == "" && len(entry.APINames) > 0 {
			meta.APIName = strings.Join(entry.APINames, ", ")
		}
		out.Metadata[id] = meta
	}

	for uuid, entry := range r.Operations {
		id := domain.NewOperationID(firstNonEmpty(uuid, entry.ID))
		meta, err := buildMetadata(id, entry.Inputs, entry.Outputs, entry.Security)
		if err != nil {
			logger.Warn("dropping operation with malformed schema", telemetry.OperationField(id.String()), zap.Error(err))
			continue
		}
		meta.Name = firstNonEmpty(entry.Summary, entry.OperationID, strings.TrimSpace(strings.ToUpper(entry.Method)+" "+entry.Path), uuid)
		meta.Description = entry.Description
		meta.APIName = entry.APIName
		meta.Method = strings.ToUpper(entry.Method)
		meta.Path = entry.Path
		out.Metadata[id] = meta
	}
	return out
}

func buildMetadata(id domain.OperationID, inputs, outputs, security json.RawMessage) (domain.ExecutionMetadata, error) {
	meta := domain.ExecutionMetadata{ID: id}
	input, err := decodeSchema(inputs)
	if err != nil {
		return meta, fmt.Errorf("inputs: %w", err)
	}
	if input == nil {
		input = domain.ObjectSchema()
	}
	meta.InputSchema = input
	output, err := decodeSchema(outputs)
	if err != nil {
		return meta, fmt.Errorf("outputs: %w", err)
	}
	meta.OutputSchema = output
	if len(security) > 0 && string(security) != "null" {
		var auth []domain.AuthRequirement
		if err := json.Unmarshal(security, &auth); err == nil {
			meta.Auth = auth
		}
	}
	return meta, nil
}

func decodeSchema(raw json.RawMessage) (*domain.Schema, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var schema domain.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

type executeRequest struct {
	ExecutionType string         `json:"execution_type"`
	UUID          string         `json:"uuid"`
	Inputs        map[string]any `json:"inputs"`
}

type executeResponse struct {
	Success     bool           `json:"success"`
	Output      any            `json:"output"`
	Error       *string        `json:"error"`
	StepResults map[string]any `json:"step_results"`
}

func (r executeResponse) toDomain() domain.ExecutionResult {
	var result domain.ExecutionResult
	if r.Success {
		result = domain.Succeeded(r.Output)
	} else {
		msg := "execution failed"
		if r.Error != nil && strings.TrimSpace(*r.Error) != "" {
			msg = *r.Error
		}
		result = domain.Failed(domain.CodeExecutionFailed, msg)
	}
	result.StepResults = r.StepResults
	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
