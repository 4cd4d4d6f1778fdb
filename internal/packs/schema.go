// ABOUTME: JSON Schema validation of tool inputs using santhosh-tekuri/jsonschema/v6
// ABOUTME: Compiled schemas are kept in an LRU keyed by schema text

package packs

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DefaultSchemaCacheSize bounds the number of compiled schemas kept.
const DefaultSchemaCacheSize = 128

const maxValidationMessage = 200

// SchemaValidator validates tool input against a tool's input schema.
type SchemaValidator struct {
	schemas *lru.Cache[string, *jsonschema.Schema]
}

// NewSchemaValidator creates a validator caching up to size compiled schemas.
func NewSchemaValidator(size int) (*SchemaValidator, error) {
	if size <= 0 {
		size = DefaultSchemaCacheSize
	}
	c, err := lru.New[string, *jsonschema.Schema](size)
	if err != nil {
		return nil, fmt.Errorf("create schema cache: %w", err)
	}
	return &SchemaValidator{schemas: c}, nil
}

// Validate checks input against schemaJSON. An empty schema accepts anything.
// Input failures wrap ErrInvalidInput; a schema that does not compile does not.
func (v *SchemaValidator) Validate(schemaJSON string, input []byte) error {
	if strings.TrimSpace(schemaJSON) == "" {
		return nil
	}

	schema, err := v.compiled(schemaJSON)
	if err != nil {
		return err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(input))
	if err != nil {
		return fmt.Errorf("%w: input is not valid JSON: %v", ErrInvalidInput, err)
	}

	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, formatValidationError(err))
	}
	return nil
}

// Len returns the number of cached schemas.
func (v *SchemaValidator) Len() int {
	return v.schemas.Len()
}

func (v *SchemaValidator) compiled(schemaJSON string) (*jsonschema.Schema, error) {
	if s, ok := v.schemas.Get(schemaJSON); ok {
		return s, nil
	}

	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse schema JSON: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft2020)
	if err := compiler.AddResource("schema.json", parsed); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.schemas.Add(schemaJSON, s)
	return s, nil
}

// formatValidationError renders "at '$.path': message", truncating long messages.
func formatValidationError(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) == 1 {
		ve = ve.Causes[0]
	}

	path := "$"
	var parts []string
	for _, p := range ve.InstanceLocation {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		path = "$." + strings.Join(parts, ".")
	}

	msg := ve.Error()
	if len(msg) > maxValidationMessage {
		msg = msg[:maxValidationMessage] + "... (truncated)"
	}
	return fmt.Sprintf("at '%s': %s", path, msg)
}
