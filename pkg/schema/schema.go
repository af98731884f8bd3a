// Package schema declares stream record schemas, validates records against
// them and renders them as Singer JSON Schema.
//
// Schemas are built from openapi3 schema objects. Every property is
// nullable since the Admin API omits or nulls most fields depending on the
// store's setup; top-level records are not.
package schema

import (
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// Schema is a record or property schema.
type Schema = openapi3.Schema

// Properties maps property names to schemas.
type Properties map[string]*Schema

// String returns a nullable string property.
func String() *Schema { return openapi3.NewStringSchema().WithNullable() }

// Integer returns a nullable integer property.
func Integer() *Schema { return typed(openapi3.TypeInteger).WithNullable() }

// Number returns a nullable number property.
func Number() *Schema { return typed(openapi3.TypeNumber).WithNullable() }

// Boolean returns a nullable boolean property.
func Boolean() *Schema { return openapi3.NewBoolSchema().WithNullable() }

// DateTime returns a nullable date-time string property.
func DateTime() *Schema { return openapi3.NewDateTimeSchema().WithNullable() }

// Any returns a property that accepts any JSON value.
func Any() *Schema { return &openapi3.Schema{} }

// ArrayOf returns a nullable array property of items.
func ArrayOf(items *Schema) *Schema {
	return openapi3.NewArraySchema().WithItems(items).WithNullable()
}

// Object returns a nullable object property with the given properties.
func Object(props Properties) *Schema {
	return withProperties(openapi3.NewObjectSchema(), props).WithNullable()
}

// Record returns a top-level record schema with the given properties.
func Record(props Properties) *Schema {
	return withProperties(openapi3.NewObjectSchema(), props)
}

func typed(t string) *Schema {
	return &openapi3.Schema{Type: &openapi3.Types{t}}
}

func withProperties(s *Schema, props Properties) *Schema {
	for _, name := range sortedKeys(props) {
		s.WithProperty(name, props[name])
	}
	return s
}

// Merge returns a copy of base with extra properties added or replaced.
func Merge(base, extra Properties) Properties {
	out := make(Properties, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// PropertyNames returns the top-level property names of s in sorted order.
func PropertyNames(s *Schema) []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasProperty reports whether s declares a top-level property name.
func HasProperty(s *Schema, name string) bool {
	_, ok := s.Properties[name]
	return ok
}

func sortedKeys(props Properties) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
