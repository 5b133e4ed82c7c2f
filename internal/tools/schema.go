package tools

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

// GenerateSchema derives a tool input schema from the argument struct T.
// Required properties come from `jsonschema:"required"` tags.
func GenerateSchema[T any]() json.RawMessage {
	r := jsonschema.Reflector{
		Anonymous:                  true,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	s := r.Reflect(v)
	s.Version = ""
	buf, err := json.Marshal(s)
	if err != nil {
		panic(errors.Wrap(err, "marshalling generated schema"))
	}
	return buf
}

func compileSchema(name string, schema json.RawMessage) (*validator.Schema, error) {
	c := validator.NewCompiler()
	c.Draft = validator.Draft2020
	url := "mem://tools/" + name + ".json"
	if err := c.AddResource(url, bytes.NewReader(schema)); err != nil {
		return nil, errors.Wrapf(err, "adding schema for %s", name)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling schema for %s", name)
	}
	return compiled, nil
}

// validateArgs checks raw arguments against a compiled input schema.
func validateArgs(s *validator.Schema, args json.RawMessage) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return &ArgumentError{Message: "arguments are not valid JSON: " + err.Error()}
	}
	if err := s.Validate(v); err != nil {
		var ve *validator.ValidationError
		if errors.As(err, &ve) {
			return &ArgumentError{Message: "invalid arguments: " + leafMessage(ve)}
		}
		return err
	}
	return nil
}

// leafMessage picks the most specific cause of a validation failure.
func leafMessage(ve *validator.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + ve.Message
}

// ArgumentError is an argument set rejected by a tool's input schema.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string { return e.Message }
