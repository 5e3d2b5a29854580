package tools

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Small builders for the hand-written parameter schemas.

func object(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func str(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func email(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Format: "email", Description: desc}
}

func integer(desc string, min, max *float64) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: desc, Minimum: min, Maximum: max}
}

func number(desc string, min, max *float64) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number", Description: desc, Minimum: min, Maximum: max}
}

func enum(desc string, def any, values ...any) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "string", Description: desc, Enum: values}
	if def != nil {
		s.Default = mustRaw(def)
	}
	return s
}

func nullable(typ string) *jsonschema.Schema {
	return &jsonschema.Schema{Types: []string{typ, "null"}}
}

func withDefault(s *jsonschema.Schema, def any) *jsonschema.Schema {
	s.Default = mustRaw(def)
	return s
}

func bound(v float64) *float64 {
	return &v
}

func count(v int) *int {
	return &v
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("tools: marshal schema default: %v", err))
	}
	return b
}

// carCardSchema accepts a search result record. Only trim_id is required;
// every other field may be null or absent.
func carCardSchema() *jsonschema.Schema {
	props := map[string]*jsonschema.Schema{
		"trim_id": integer("Trim identifier from searchToyotaTrims", bound(1), nil),
	}
	for _, name := range []string{"make", "model", "submodel", "trim", "description", "body_type", "drive_type", "transmission", "engine_type", "fuel_type", "image_url"} {
		props[name] = nullable("string")
	}
	for _, name := range []string{"model_year", "body_seats", "cylinders", "horsepower_hp", "torque_ft_lbs"} {
		props[name] = nullable("integer")
	}
	for _, name := range []string{"msrp", "invoice", "city_mpg", "highway_mpg", "combined_mpg"} {
		props[name] = nullable("number")
	}
	return object([]string{"trim_id"}, props)
}
