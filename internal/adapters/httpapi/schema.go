package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/silvernonstop/auditapi/internal/core/domain"
)

// submitEventSchema rejects malformed submissions before they reach the core:
// required fields, valid severity, object-shaped contextData. Origin-table
// and category fallbacks stay with the normalizer, which tolerates any string.
const submitEventSchema = `{
	"type": "object",
	"required": ["originTable", "eventType", "severity", "description"],
	"additionalProperties": false,
	"properties": {
		"originTable":     {"type": "string", "minLength": 1},
		"eventType":       {"type": "string", "minLength": 1},
		"severity":        {"enum": ["CRITICAL", "HIGH", "MEDIUM", "LOW", "INFO"]},
		"description":     {"type": "string", "minLength": 1},
		"affectedField":   {"type": "string"},
		"recordId":        {"type": "string"},
		"contextData":     {"type": "object"},
		"category":        {"type": "string"},
		"narrativeImpact": {"type": "string"},
		"requiredAction":  {"type": "string"}
	}
}`

func compileSubmitEventSchema() (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource("submit_event.json", bytes.NewReader([]byte(submitEventSchema))); err != nil {
		return nil, err
	}
	return compiler.Compile("submit_event.json")
}

// validateSubmitBody checks raw against the submit-event schema, returning a
// domain.ErrValidation-wrapped error with the first violation message.
func validateSubmitBody(schema *santhosh.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%w: body must be valid json", domain.ErrValidation)
	}
	if err := schema.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			msgs := collectValidationErrors(ve)
			if len(msgs) > 0 {
				return fmt.Errorf("%w: %s", domain.ErrValidation, msgs[0])
			}
		}
		return fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}
	return nil
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.Error())
	}
	return msgs
}
