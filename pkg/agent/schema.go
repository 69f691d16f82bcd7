package agent

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// OutputSchema validates structured task output against a JSON Schema. Tasks
// whose output fails validation are treated the same as unparseable output.
type OutputSchema struct {
	schema *gojsonschema.Schema
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(schemaJSON string) (*OutputSchema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile output schema: %w", err)
	}

	return &OutputSchema{schema: schema}, nil
}

// MustCompileSchema compiles a schema known at build time, panicking on error.
func MustCompileSchema(schemaJSON string) *OutputSchema {
	schema, err := CompileSchema(schemaJSON)
	if err != nil {
		panic(err)
	}

	return schema
}

// Validate checks a structured output value against the schema.
func (s *OutputSchema) Validate(output map[string]any) error {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(output))
	if err != nil {
		return fmt.Errorf("validate output: %w", err)
	}

	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("output schema violation: %s", errs[0].String())
		}

		return fmt.Errorf("output schema violation")
	}

	return nil
}

// Parser returns a parse function that extracts JSON from raw response text
// and accepts it only when it conforms to the schema.
func (s *OutputSchema) Parser() func(rawText string) map[string]any {
	return func(rawText string) map[string]any {
		output := ParseJSONOutput(rawText)
		if output == nil {
			return nil
		}

		if err := s.Validate(output); err != nil {
			return nil
		}

		return output
	}
}
