package planner

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/planner_request.schema.json
var requestSchemaJSON []byte

//go:embed schemas/planner_response.schema.json
var responseSchemaJSON []byte

// schemas holds the compiled Planner Request/Response schemas (spec
// §4.6 steps 1 and 4), grounded on the teacher's
// internal/protocol/schemas_test.go pattern of compiling
// *.schema.json documents with santhosh-tekuri/jsonschema/v5. The
// teacher compiles from a file path in its test; this package embeds
// the planner schemas from its own schemas/ directory (the repo-root
// /schemas directory holds only the wire-protocol schemas) so validation
// does not depend on the process's working directory at runtime.
type schemas struct {
	request  *jsonschema.Schema
	response *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("planner_request.schema.json", bytes.NewReader(requestSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add request schema: %w", err)
	}
	if err := compiler.AddResource("planner_response.schema.json", bytes.NewReader(responseSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add response schema: %w", err)
	}

	reqSchema, err := compiler.Compile("planner_request.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	respSchema, err := compiler.Compile("planner_response.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}

	return &schemas{request: reqSchema, response: respSchema}, nil
}

func (s *schemas) validateRequest(v any) error {
	return s.request.Validate(v)
}

func (s *schemas) validateResponse(v any) error {
	return s.response.Validate(v)
}

// decodeAny decodes raw JSON into the map[string]any/[]any shape
// jsonschema/v5's Validate expects, rather than an arbitrary Go struct.
func decodeAny(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}
