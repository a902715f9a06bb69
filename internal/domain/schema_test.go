package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func restaurantSchema() *Schema {
	closed := false
	return &Schema{
		Type: TypeSet{TypeObject},
		Properties: map[string]*Schema{
			"area":    {Type: TypeSet{TypeString}},
			"limit":   {Type: TypeSet{TypeInteger}},
			"cuisine": {Type: TypeSet{TypeString}, Enum: []any{"irish", "italian"}},
			"filters": {
				Type:       TypeSet{TypeObject},
				Properties: map[string]*Schema{"open_now": {Type: TypeSet{TypeBoolean}}},
				Required:   []string{"open_now"},
			},
			"tags": {Type: TypeSet{TypeArray}, Items: &Schema{Type: TypeSet{TypeString}}},
			"note": {Type: TypeSet{TypeString, TypeNull}},
		},
		Required:             []string{"area"},
		AdditionalProperties: &closed,
	}
}

func TestValidateInputs(t *testing.T) {
	tests := []struct {
		name   string
		inputs map[string]any
		want   []string
	}{
		{name: "valid", inputs: map[string]any{"area": "D2"}},
		{name: "missing required", inputs: map[string]any{}, want: []string{"area"}},
		{name: "wrong type", inputs: map[string]any{"area": 2.0}, want: []string{"area"}},
		{name: "integer accepts whole float", inputs: map[string]any{"area": "D2", "limit": 3.0}},
		{name: "integer rejects fraction", inputs: map[string]any{"area": "D2", "limit": 3.5}, want: []string{"limit"}},
		{name: "enum", inputs: map[string]any{"area": "D2", "cuisine": "thai"}, want: []string{"cuisine"}},
		{name: "nested required", inputs: map[string]any{"area": "D2", "filters": map[string]any{}}, want: []string{"filters.open_now"}},
		{name: "array items", inputs: map[string]any{"area": "D2", "tags": []any{"a", 1.0}}, want: []string{"tags[1]"}},
		{name: "nullable", inputs: map[string]any{"area": "D2", "note": nil}},
		{name: "null optional without null type", inputs: map[string]any{"area": "D2", "limit": nil}, want: []string{"limit"}},
		{name: "required null reported once", inputs: map[string]any{"area": nil}, want: []string{"area"}},
		{name: "small go integers", inputs: map[string]any{"area": "D2", "limit": int8(3)}},
		{name: "unsigned go integers", inputs: map[string]any{"area": "D2", "limit": uint16(3)}},
		{name: "typed slice", inputs: map[string]any{"area": "D2", "tags": []string{"a", "b"}}},
		{name: "typed slice items", inputs: map[string]any{"area": "D2", "tags": []int{1}}, want: []string{"tags[0]"}},
		{name: "unknown field", inputs: map[string]any{"area": "D2", "zone": "x"}, want: []string{"zone"}},
		{name: "several violations", inputs: map[string]any{"limit": "x"}, want: []string{"area", "limit"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := ValidateInputs(restaurantSchema(), tt.inputs)
			var paths []string
			for _, v := range violations {
				paths = append(paths, v.Path)
			}
			if diff := cmp.Diff(tt.want, paths); diff != "" {
				t.Fatalf("violations mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateInputs_NilSchemaAcceptsAnything(t *testing.T) {
	require.Empty(t, ValidateInputs(nil, map[string]any{"x": 1}))
}

func TestViolationsError(t *testing.T) {
	require.NoError(t, ViolationsError("execute", nil))

	err := ViolationsError("execute", []Violation{{Path: "area", Message: "required field is missing"}})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "area: required field is missing")
}

func TestSchema_JSONTypeForms(t *testing.T) {
	var schema Schema
	require.NoError(t, json.Unmarshal([]byte(`{"type":["string","null"],"properties":{"a":{"type":"integer"}}}`), &schema))
	require.Equal(t, TypeSet{TypeString, TypeNull}, schema.Type)
	require.Equal(t, TypeSet{TypeInteger}, schema.Properties["a"].Type)

	raw, err := json.Marshal(schema.Properties["a"])
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"integer"}`, string(raw))
}

func TestSchema_ToMap(t *testing.T) {
	var nilSchema *Schema
	require.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, nilSchema.ToMap())

	out := (&Schema{Properties: map[string]*Schema{"area": {Type: TypeSet{TypeString}}}}).ToMap()
	require.Equal(t, "object", out["type"])
	require.Contains(t, out["properties"], "area")
}

func TestSchemaFromValue(t *testing.T) {
	schema, err := SchemaFromValue(map[string]any{
		"type":       "object",
		"properties": map[string]any{"area": map[string]any{"type": "string"}},
		"required":   []any{"area"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"area"}, schema.PropertyNames())
	require.True(t, schema.IsRequired("area"))

	none, err := SchemaFromValue(nil)
	require.NoError(t, err)
	require.Nil(t, none)
}
