package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Schema types understood by the validator.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeNull    = "null"
)

// TypeSet holds the "type" keyword, which may be a single name or a list.
type TypeSet []string

func (t TypeSet) MarshalJSON() ([]byte, error) {
	switch len(t) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(t[0])
	default:
		return json.Marshal([]string(t))
	}
}

func (t *TypeSet) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*t = nil
			return nil
		}
		*t = TypeSet{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("schema type must be a string or list of strings: %w", err)
	}
	*t = TypeSet(many)
	return nil
}

// Has reports whether the set contains the given type name.
func (t TypeSet) Has(name string) bool {
	for _, v := range t {
		if v == name {
			return true
		}
	}
	return false
}

// Schema is a runtime JSON-schema subset discovered from a Load. It is the
// only description of operation inputs the client ever has.
type Schema struct {
	Type                 TypeSet            `json:"type,omitempty"`
	Title                string             `json:"title,omitempty"`
	Description          string             `json:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Enum                 []any              `json:"enum,omitempty"`
	Default              any                `json:"default,omitempty"`
	Format               string             `json:"format,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
}

// ObjectSchema returns an empty object schema.
func ObjectSchema() *Schema {
	return &Schema{Type: TypeSet{TypeObject}, Properties: map[string]*Schema{}}
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	out := *s
	out.Type = append(TypeSet(nil), s.Type...)
	out.Required = append([]string(nil), s.Required...)
	if s.Properties != nil {
		out.Properties = make(map[string]*Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = prop.Clone()
		}
	}
	out.Items = s.Items.Clone()
	if s.Enum != nil {
		out.Enum = make([]any, len(s.Enum))
		for i, v := range s.Enum {
			out.Enum[i] = CloneJSONValue(v)
		}
	}
	out.Default = CloneJSONValue(s.Default)
	if s.AdditionalProperties != nil {
		val := *s.AdditionalProperties
		out.AdditionalProperties = &val
	}
	return &out
}

// PropertyNames returns the property names in sorted order.
func (s *Schema) PropertyNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRequired reports whether the named property is required.
func (s *Schema) IsRequired(name string) bool {
	if s == nil {
		return false
	}
	for _, req := range s.Required {
		if req == name {
			return true
		}
	}
	return false
}

// ToMap renders the schema as a generic JSON object. A nil schema renders as
// an empty object schema so vendor formats always receive an object.
func (s *Schema) ToMap() map[string]any {
	if s == nil {
		return map[string]any{"type": TypeObject, "properties": map[string]any{}}
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": TypeObject}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": TypeObject}
	}
	if _, ok := out["type"]; !ok {
		out["type"] = TypeObject
	}
	if out["type"] == TypeObject {
		if _, ok := out["properties"]; !ok {
			out["properties"] = map[string]any{}
		}
	}
	return out
}

// SchemaFromValue decodes a generic JSON value (usually map[string]any) into a Schema.
func SchemaFromValue(value any) (*Schema, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var schema Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return &schema, nil
}

// Violation describes one input that does not conform to the schema.
type Violation struct {
	Path    string
	Message string
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// ValidateInputs checks inputs against the schema and returns every violation
// found. A nil schema accepts anything.
func ValidateInputs(schema *Schema, inputs map[string]any) []Violation {
	if schema == nil {
		return nil
	}
	var out []Violation
	validateObject(schema, inputs, "", &out)
	return out
}

// ViolationsError folds violations into a single validation error.
func ViolationsError(op string, violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.String())
	}
	return E(CodeInvalidArgument, op, "invalid inputs: "+strings.Join(parts, "; "), nil)
}

func validateObject(schema *Schema, value map[string]any, path string, out *[]Violation) {
	for _, name := range schema.Required {
		v, ok := value[name]
		if !ok || (v == nil && !allowsNull(schema.Properties[name])) {
			*out = append(*out, Violation{Path: joinPath(path, name), Message: "required field is missing"})
		}
	}
	keys := make([]string, 0, len(value))
	for key := range value {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		prop, ok := schema.Properties[key]
		if !ok {
			if schema.AdditionalProperties != nil && !*schema.AdditionalProperties {
				*out = append(*out, Violation{Path: joinPath(path, key), Message: "unknown field"})
			}
			continue
		}
		// a required null was already reported as missing
		if value[key] == nil && schema.IsRequired(key) && !allowsNull(prop) {
			continue
		}
		validateValue(prop, value[key], joinPath(path, key), out)
	}
}

func validateValue(schema *Schema, value any, path string, out *[]Violation) {
	if schema == nil {
		return
	}
	if len(schema.Type) > 0 {
		matched := false
		for _, typ := range schema.Type {
			if conforms(typ, value) {
				matched = true
				break
			}
		}
		if !matched {
			*out = append(*out, Violation{Path: path, Message: fmt.Sprintf("expected %s, got %s", strings.Join(schema.Type, "|"), describe(value))})
			return
		}
	}
	if len(schema.Enum) > 0 && !inEnum(schema.Enum, value) {
		*out = append(*out, Violation{Path: path, Message: fmt.Sprintf("value %v is not one of the allowed values", value)})
	}
	switch typed := value.(type) {
	case map[string]any:
		if schema.Properties != nil || len(schema.Required) > 0 {
			validateObject(schema, typed, path, out)
		}
	case []any:
		if schema.Items != nil {
			for i, item := range typed {
				validateValue(schema.Items, item, fmt.Sprintf("%s[%d]", path, i), out)
			}
		}
	default:
		if schema.Items == nil || value == nil {
			return
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return
		}
		for i := 0; i < rv.Len(); i++ {
			validateValue(schema.Items, rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i), out)
		}
	}
}

func conforms(typ string, value any) bool {
	switch typ {
	case TypeNull:
		return value == nil
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeNumber:
		_, ok := toFloat(value)
		return ok
	case TypeInteger:
		f, ok := toFloat(value)
		return ok && f == math.Trunc(f)
	case TypeArray:
		_, ok := value.([]any)
		if ok {
			return true
		}
		if value == nil {
			return false
		}
		kind := reflect.TypeOf(value).Kind()
		return kind == reflect.Slice || kind == reflect.Array
	case TypeObject:
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func inEnum(enum []any, value any) bool {
	for _, candidate := range enum {
		if reflect.DeepEqual(candidate, value) {
			return true
		}
		cf, cok := toFloat(candidate)
		vf, vok := toFloat(value)
		if cok && vok && cf == vf {
			return true
		}
	}
	return false
}

func allowsNull(schema *Schema) bool {
	return schema != nil && schema.Type.Has(TypeNull)
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return TypeNull
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case map[string]any:
		return TypeObject
	case []any:
		return TypeArray
	}
	if _, ok := toFloat(value); ok {
		return TypeNumber
	}
	return fmt.Sprintf("%T", value)
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}
