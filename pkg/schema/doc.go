// Package schema describes and validates the shape of a machine context.
//
// A Schema maps context keys to types. It can be written in Go or decoded
// from the "schema" key of a YAML or JSON machine description, where every
// type is a name:
//
//	schema:
//	  count: int
//	  name: string
//	  tags: "[string]"
//	  meta: map
//
// The same ValidationError and AggregateError types report definition
// problems found while compiling machines, so callers can list every issue
// with ValidationErrors.
package schema
