package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type validates one context value.
type Type interface {
	Name() string
	Validate(value any) error
}

// named is a Type backed by a check function.
type named struct {
	name  string
	check func(any) error
}

func (t named) Name() string             { return t.name }
func (t named) Validate(value any) error { return t.check(value) }

func expect[T any](name string) Type {
	return named{name: name, check: func(v any) error {
		if _, ok := v.(T); !ok {
			return fmt.Errorf("expected %s, got %T", name, v)
		}
		return nil
	}}
}

// String accepts strings.
func String() Type { return expect[string]("string") }

// Bool accepts booleans.
func Bool() Type { return expect[bool]("bool") }

// Map accepts string keyed maps, as decoded from YAML or JSON objects.
func Map() Type { return expect[map[string]any]("map") }

// Any accepts every value, including nil.
func Any() Type { return named{name: "any", check: func(any) error { return nil }} }

// Int accepts Go integers and whole float64 values, which is how JSON
// decodes numbers.
func Int() Type {
	return named{name: "int", check: func(v any) error {
		rv := reflect.ValueOf(v)
		switch {
		case rv.CanInt(), rv.CanUint():
			return nil
		case rv.Kind() == reflect.Float64 || rv.Kind() == reflect.Float32:
			if f := rv.Float(); f == float64(int64(f)) {
				return nil
			}
			return fmt.Errorf("expected int, got fractional number %v", v)
		}
		return fmt.Errorf("expected int, got %T", v)
	}}
}

// Float accepts any number.
func Float() Type {
	return named{name: "float", check: func(v any) error {
		rv := reflect.ValueOf(v)
		if rv.CanFloat() || rv.CanInt() || rv.CanUint() {
			return nil
		}
		return fmt.Errorf("expected float, got %T", v)
	}}
}

// Slice accepts slices and arrays whose elements all satisfy elem.
func Slice(elem Type) Type {
	name := "[" + elem.Name() + "]"
	return named{name: name, check: func(v any) error {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return fmt.Errorf("expected %s, got %T", name, v)
		}
		for i := range rv.Len() {
			if err := elem.Validate(rv.Index(i).Interface()); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	}}
}

// Custom names a user supplied check.
func Custom(name string, validate func(any) error) Type {
	return named{name: name, check: validate}
}

var builtins = map[string]func() Type{
	"string": String,
	"int":    Int,
	"float":  Float,
	"bool":   Bool,
	"any":    Any,
	"map":    Map,
}

// ParseType resolves a type name: string, int, float, bool, any, map, or
// "[T]" for a slice of T.
func ParseType(name string) (Type, error) {
	if inner, ok := strings.CutPrefix(name, "["); ok && strings.HasSuffix(inner, "]") && len(inner) > 1 {
		elem, err := ParseType(strings.TrimSuffix(inner, "]"))
		if err != nil {
			return nil, err
		}
		return Slice(elem), nil
	}
	if mk, ok := builtins[name]; ok {
		return mk(), nil
	}
	return nil, fmt.Errorf("unsupported type: %s", name)
}

// ParseTypeMap builds a Schema from key to type name pairs, such as
// {"retries": "int", "tags": "[string]"}.
func ParseTypeMap(types map[string]string) (Schema, error) {
	out := make(Schema, len(types))
	for key, name := range types {
		t, err := ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		out[key] = t
	}
	return out, nil
}
