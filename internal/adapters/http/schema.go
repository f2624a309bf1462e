package http

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/reading.schema.json
var readingSchemaJSON string

var readingSchema = jsonschema.MustCompileString("reading.schema.json", readingSchemaJSON)

// validateBody checks raw JSON against the reading schema and returns one
// message per violated constraint.
func validateBody(body []byte) ([]string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	err := readingSchema.Validate(doc)
	if err == nil {
		return nil, nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return nil, err
	}
	var problems []string
	for _, leaf := range leaves(verr) {
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		problems = append(problems, loc+": "+leaf.Message)
	}
	return problems, nil
}

func leaves(e *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return []*jsonschema.ValidationError{e}
	}
	var out []*jsonschema.ValidationError
	for _, c := range e.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}
