package services

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// mediationSchemaJSON constrains classifier output before it is trusted.
// Anything that fails validation becomes the fallback interpretation.
// Numeric fields accept strings because models quote numbers; the flexible
// decoder normalizes them afterwards.
const mediationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["event_type", "confidence"],
  "properties": {
    "event_type": {
      "type": "string",
      "enum": [
        "note", "material_request", "alert", "calendar_event",
        "status_change", "issue", "inspection", "milestone",
        "worker_arrival", "worker_departure"
      ]
    },
    "title": {"type": "string"},
    "description": {"type": "string"},
    "confidence": {"type": ["number", "string"]},
    "material": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string"},
        "quantity": {"type": ["number", "string"]},
        "unit": {"type": "string"},
        "urgency": {"type": "string"},
        "lot_number": {"type": ["string", "number"]}
      }
    },
    "calendar": {
      "type": "object",
      "required": ["title"],
      "properties": {
        "title": {"type": "string"},
        "starts_at": {"type": "string"}
      }
    }
  }
}`

// compileMediationSchema compiles the embedded schema. Called once at
// service construction; a malformed schema is a build defect.
func compileMediationSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(mediationSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse mediation schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("mediation.json", doc); err != nil {
		return nil, fmt.Errorf("add mediation schema resource: %w", err)
	}

	schema, err := compiler.Compile("mediation.json")
	if err != nil {
		return nil, fmt.Errorf("compile mediation schema: %w", err)
	}
	return schema, nil
}

// validateMediationJSON checks one classifier response against the schema.
func validateMediationJSON(schema *jsonschema.Schema, jsonStr string) error {
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(jsonStr))
	if err != nil {
		return fmt.Errorf("parse classifier output: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("classifier output failed validation: %w", err)
	}
	return nil
}
