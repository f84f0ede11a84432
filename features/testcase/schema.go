package testcase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// recordSchema is the structural gate for generated records. Grounding is
// checked separately so a schema-valid record with bad citations gets a
// grounding-specific rejection reason.
const recordSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["feature", "preconditions", "scenario", "steps", "expected_result", "grounded_in", "risk", "priority"],
	"properties": {
		"test_id": {"type": "string"},
		"feature": {"type": "string", "minLength": 1},
		"preconditions": {"type": "array", "items": {"type": "string"}},
		"scenario": {"type": "string", "minLength": 1},
		"steps": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
		"expected_result": {"type": "string", "minLength": 1},
		"grounded_in": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["source_id", "chunk_id"],
				"properties": {
					"source_id": {"type": "string", "minLength": 1},
					"chunk_id": {"type": "string", "minLength": 1}
				}
			}
		},
		"risk": {"enum": ["Low", "Medium", "High"]},
		"priority": {"enum": ["P1", "P2", "P3"]}
	}
}`

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(recordSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse record schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("testcase.json", doc); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("testcase.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile record schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

func (v *Validator) Validate(raw json.RawMessage) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return v.schema.Validate(inst)
}
