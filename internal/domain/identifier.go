package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// IDKind distinguishes single operations from multi-step workflows.
type IDKind string

const (
	KindOperation IDKind = "operation"
	KindWorkflow  IDKind = "workflow"
)

const (
	operationPrefix = "op_"
	workflowPrefix  = "wf_"
)

// OperationID addresses an operation or workflow on the platform. It is a
// comparable value type and is safe to use as a map key.
type OperationID struct {
	Kind IDKind
	UUID string
}

// NewOperationID builds an identifier of the operation kind.
func NewOperationID(uuid string) OperationID {
	return OperationID{Kind: KindOperation, UUID: strings.TrimSpace(uuid)}
}

// NewWorkflowID builds an identifier of the workflow kind.
func NewWorkflowID(uuid string) OperationID {
	return OperationID{Kind: KindWorkflow, UUID: strings.TrimSpace(uuid)}
}

// ParseOperationID parses the prefixed form ("op_<uuid>" or "wf_<uuid>").
func ParseOperationID(raw string) (OperationID, error) {
	value := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(value, operationPrefix):
		id := NewOperationID(strings.TrimPrefix(value, operationPrefix))
		return id, id.Validate()
	case strings.HasPrefix(value, workflowPrefix):
		id := NewWorkflowID(strings.TrimPrefix(value, workflowPrefix))
		return id, id.Validate()
	default:
		return OperationID{}, E(CodeInvalidArgument, "parse identifier", fmt.Sprintf("identifier %q must start with %q or %q", raw, operationPrefix, workflowPrefix), nil)
	}
}

// ParseKindID builds an identifier from an explicit kind and a bare uuid.
// A prefixed uuid is accepted as long as the prefix agrees with the kind.
func ParseKindID(kind string, uuid string) (OperationID, error) {
	trimmed := strings.TrimSpace(uuid)
	if strings.HasPrefix(trimmed, operationPrefix) || strings.HasPrefix(trimmed, workflowPrefix) {
		id, err := ParseOperationID(trimmed)
		if err != nil {
			return OperationID{}, err
		}
		if kind != "" && string(id.Kind) != kind {
			return OperationID{}, E(CodeInvalidArgument, "parse identifier", fmt.Sprintf("identifier %q is not a %s", uuid, kind), nil)
		}
		return id, nil
	}
	var id OperationID
	switch IDKind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindOperation:
		id = NewOperationID(trimmed)
	case KindWorkflow:
		id = NewWorkflowID(trimmed)
	default:
		return OperationID{}, E(CodeInvalidArgument, "parse identifier", fmt.Sprintf("invalid execution type %q, must be 'operation' or 'workflow'", kind), nil)
	}
	return id, id.Validate()
}

// Validate reports whether the identifier is structurally usable.
func (id OperationID) Validate() error {
	if id.Kind != KindOperation && id.Kind != KindWorkflow {
		return E(CodeInvalidArgument, "validate identifier", fmt.Sprintf("unknown identifier kind %q", id.Kind), nil)
	}
	if id.UUID == "" {
		return E(CodeInvalidArgument, "validate identifier", "identifier uuid is empty", nil)
	}
	if strings.ContainsAny(id.UUID, " \t\n/") {
		return E(CodeInvalidArgument, "validate identifier", fmt.Sprintf("identifier uuid %q contains invalid characters", id.UUID), nil)
	}
	return nil
}

// IsZero reports whether the identifier is unset.
func (id OperationID) IsZero() bool {
	return id.Kind == "" && id.UUID == ""
}

func (id OperationID) String() string {
	switch id.Kind {
	case KindOperation:
		return operationPrefix + id.UUID
	case KindWorkflow:
		return workflowPrefix + id.UUID
	default:
		return id.UUID
	}
}

func (id OperationID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *OperationID) UnmarshalText(text []byte) error {
	parsed, err := ParseOperationID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id OperationID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *OperationID) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return id.UnmarshalText([]byte(raw))
}

// SplitIDs partitions identifiers into operation and workflow uuids, in input order.
func SplitIDs(ids []OperationID) (operations []string, workflows []string) {
	for _, id := range ids {
		switch id.Kind {
		case KindOperation:
			operations = append(operations, id.UUID)
		case KindWorkflow:
			workflows = append(workflows, id.UUID)
		}
	}
	return operations, workflows
}
