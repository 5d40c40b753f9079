package schema

import "slices"

// Schema maps context keys to their expected types.
type Schema map[string]Type

// Keys returns the declared keys, sorted.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Validate checks that data holds every declared key with the declared type.
// Keys not declared in the schema are ignored. Failures are reported in key
// order as an *AggregateError.
func Validate(schema Schema, data map[string]any) error {
	return ValidateFields(schema, data, schema.Keys()...)
}

// ValidateFields validates only the given keys.
func ValidateFields(schema Schema, data map[string]any, fields ...string) error {
	var errs []error
	for _, key := range fields {
		typ, declared := schema[key]
		if !declared {
			errs = append(errs, &ValidationError{Key: key, Reason: "not defined in schema"})
			continue
		}
		value, present := data[key]
		if !present {
			errs = append(errs, &ValidationError{Key: key, Reason: "required"})
			continue
		}
		if err := typ.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: key, Reason: err.Error(), Value: value})
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
