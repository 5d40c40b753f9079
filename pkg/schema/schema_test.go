package schema_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/troupe/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTypes(t *testing.T) {
	tests := []struct {
		typ   schema.Type
		name  string
		valid []any
		bad   []any
	}{
		{schema.String(), "string", []any{"", "x"}, []any{1, nil}},
		{schema.Int(), "int", []any{1, int64(2), uint8(3), float64(4)}, []any{1.5, "1"}},
		{schema.Float(), "float", []any{1.5, 2}, []any{"1.5"}},
		{schema.Bool(), "bool", []any{true}, []any{"true"}},
		{schema.Map(), "map", []any{map[string]any{}}, []any{[]any{}}},
		{schema.Any(), "any", []any{nil, 1, "x"}, nil},
		{schema.Slice(schema.Int()), "[int]", []any{[]any{1, 2}, []int{3}}, []any{[]any{"x"}, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.typ.Name())
			for _, v := range tt.valid {
				assert.NoError(t, tt.typ.Validate(v), "%v", v)
			}
			for _, v := range tt.bad {
				assert.Error(t, tt.typ.Validate(v), "%v", v)
			}
		})
	}
}

func TestCustomType(t *testing.T) {
	positive := schema.Custom("positive", func(v any) error {
		if n, ok := v.(int); !ok || n <= 0 {
			return fmt.Errorf("must be a positive int")
		}
		return nil
	})
	assert.Equal(t, "positive", positive.Name())
	assert.NoError(t, positive.Validate(3))
	assert.Error(t, positive.Validate(-1))
}

func TestParseType(t *testing.T) {
	typ, err := schema.ParseType("[[string]]")
	require.NoError(t, err)
	assert.Equal(t, "[[string]]", typ.Name())

	_, err = schema.ParseType("decimal")
	assert.Error(t, err)

	_, err = schema.ParseTypeMap(map[string]string{"a": "int", "b": "nope"})
	assert.ErrorContains(t, err, "field b")
}

func TestValidate_ReportsEveryFieldInKeyOrder(t *testing.T) {
	s := schema.Schema{"name": schema.String(), "count": schema.Int(), "tags": schema.Slice(schema.String())}

	assert.NoError(t, schema.Validate(s, map[string]any{"name": "a", "count": 1, "tags": []any{"x"}, "extra": true}))

	err := schema.Validate(s, map[string]any{"count": "one", "tags": []any{"x"}})
	require.Error(t, err)
	errs := schema.ValidationErrors(err)
	require.Len(t, errs, 2)

	var first, second *schema.ValidationError
	require.True(t, errors.As(errs[0], &first))
	require.True(t, errors.As(errs[1], &second))
	assert.Equal(t, "count", first.Key)
	assert.Equal(t, "name", second.Key)
	assert.Equal(t, "required", second.Reason)
}

func TestValidate_EmptySchema(t *testing.T) {
	assert.NoError(t, schema.Validate(nil, nil))
	assert.NoError(t, schema.Validate(schema.Schema{}, map[string]any{"a": 1}))
}

func TestValidateFields(t *testing.T) {
	s := schema.Schema{"a": schema.Int(), "b": schema.String()}

	assert.NoError(t, schema.ValidateFields(s, map[string]any{"a": 1}, "a"))
	err := schema.ValidateFields(s, map[string]any{"a": 1}, "a", "z")
	assert.ErrorContains(t, err, `"z": not defined in schema`)
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `"api_key": required`, (&schema.ValidationError{Key: "api_key", Reason: "required"}).Error())
	assert.Equal(t, `"n": expected int (got string)`,
		(&schema.ValidationError{Key: "n", Reason: "expected int", Value: "x"}).Error())

	aggr := &schema.AggregateError{Errors: []error{
		&schema.ValidationError{Key: "a", Reason: "required"},
		&schema.ValidationError{Key: "b", Reason: "required"},
	}}
	assert.Contains(t, aggr.Error(), "2 validation errors")

	wrapped := fmt.Errorf("compile: %w", aggr)
	assert.Len(t, schema.ValidationErrors(wrapped), 2)
	assert.Nil(t, schema.ValidationErrors(errors.New("plain")))
}

func TestSchemaEncoding(t *testing.T) {
	var fromYAML schema.Schema
	require.NoError(t, yaml.Unmarshal([]byte("count: int\ntags: \"[string]\"\n"), &fromYAML))
	assert.Equal(t, "int", fromYAML["count"].Name())
	assert.Equal(t, "[string]", fromYAML["tags"].Name())

	data, err := json.Marshal(fromYAML)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":"int","tags":"[string]"}`, string(data))

	var fromJSON schema.Schema
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.Equal(t, fromYAML.Keys(), fromJSON.Keys())

	out, err := yaml.Marshal(fromJSON)
	require.NoError(t, err)
	assert.Contains(t, string(out), "count: int")

	assert.Error(t, yaml.Unmarshal([]byte("count: decimal\n"), &fromYAML))
}
