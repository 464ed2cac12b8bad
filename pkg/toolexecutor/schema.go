package toolexecutor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is the JSON-schema subset tools use to describe their input
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Format      string             `json:"format,omitempty"`
	Enum        []interface{}      `json:"enum,omitempty"`
	Default     interface{}        `json:"default,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Object returns an object schema with the given required fields and properties
func Object(required []string, properties map[string]*Schema) *Schema {
	if properties == nil {
		properties = map[string]*Schema{}
	}
	return &Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// String returns a string schema
func String(description string) *Schema {
	return &Schema{Type: "string", Description: description}
}

// Number returns a number schema
func Number(description string) *Schema {
	return &Schema{Type: "number", Description: description}
}

// Integer returns an integer schema
func Integer(description string) *Schema {
	return &Schema{Type: "integer", Description: description}
}

// Boolean returns a boolean schema
func Boolean(description string) *Schema {
	return &Schema{Type: "boolean", Description: description}
}

// Array returns an array schema whose elements match items
func Array(description string, items *Schema) *Schema {
	return &Schema{Type: "array", Description: description, Items: items}
}

// Date returns a string schema with the "date" format (YYYY-MM-DD)
func Date(description string) *Schema {
	return &Schema{Type: "string", Format: "date", Description: description}
}

// WithEnum restricts the schema to the given values
func (s *Schema) WithEnum(values ...string) *Schema {
	s.Enum = make([]interface{}, len(values))
	for i, v := range values {
		s.Enum[i] = v
	}
	return s
}

// WithDefault sets the value applied when the argument is absent
func (s *Schema) WithDefault(value interface{}) *Schema {
	s.Default = value
	return s
}

// WithFormat sets the string format
func (s *Schema) WithFormat(format string) *Schema {
	s.Format = format
	return s
}

// JSON returns the schema encoded as JSON
func (s *Schema) JSON() (json.RawMessage, error) {
	return json.Marshal(s)
}

// validTypes are the JSON-schema primitive types accepted in tool schemas
var validTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"object": true, "array": true, "integer": true,
}

// check walks the schema tree and rejects unknown types and dangling required fields
func (s *Schema) check(path string) error {
	if s == nil {
		return fmt.Errorf("%s: schema is nil", path)
	}
	if !validTypes[s.Type] {
		return fmt.Errorf("%s: invalid type %q", path, s.Type)
	}
	for _, name := range s.Required {
		if _, ok := s.Properties[name]; !ok {
			return fmt.Errorf("%s: required field %q is not declared", path, name)
		}
	}
	for name, prop := range s.Properties {
		if err := prop.check(path + "." + name); err != nil {
			return err
		}
	}
	if s.Type == "array" && s.Items != nil {
		if err := s.Items.check(path + "[]"); err != nil {
			return err
		}
	}
	return nil
}

// compileSchema compiles an input schema for argument validation
func compileSchema(s *Schema) (*gojsonschema.Schema, error) {
	if s == nil {
		s = Object(nil, nil)
	}
	if s.Type != "object" {
		return nil, fmt.Errorf("input schema must be of type object, got %q", s.Type)
	}
	if err := s.check("input"); err != nil {
		return nil, err
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(s))
}

// validateArgs validates arguments against a compiled schema
func validateArgs(schema *gojsonschema.Schema, args Args) error {
	if schema == nil {
		return nil
	}
	if args == nil {
		args = Args{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]interface{}(args)))
	if err != nil {
		return err
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("validation errors: %s", strings.Join(problems, "; "))
	}

	return nil
}

// applyDefaults returns a copy of args with top-level schema defaults filled in
func applyDefaults(s *Schema, args Args) Args {
	out := make(Args, len(args))
	for k, v := range args {
		out[k] = v
	}
	if s == nil {
		return out
	}
	for name, prop := range s.Properties {
		if prop == nil || prop.Default == nil {
			continue
		}
		if v, ok := out[name]; !ok || v == nil {
			out[name] = prop.Default
		}
	}
	return out
}
