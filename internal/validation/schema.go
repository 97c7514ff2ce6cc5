// Package validation checks rotation events and keypair documents against
// JSON schemas before they reach the secret store.
package validation

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Validator holds the compiled schemas. It is safe for concurrent use.
type Validator struct {
	event   *gojsonschema.Schema
	keypair *gojsonschema.Schema
}

// NewValidator compiles the embedded schemas.
func NewValidator() (*Validator, error) {
	event, err := compile("schemas/rotation_event.json")
	if err != nil {
		return nil, err
	}
	keypair, err := compile("schemas/keypair.json")
	if err != nil {
		return nil, err
	}
	return &Validator{event: event, keypair: keypair}, nil
}

// MustNewValidator is NewValidator for package-level use; the schemas are
// compiled into the binary so failure is a programming error.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

func compile(name string) (*gojsonschema.Schema, error) {
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

// ValidateEvent checks a rotation event given as any JSON-marshalable value.
func (v *Validator) ValidateEvent(event interface{}) error {
	return validate(v.event, gojsonschema.NewGoLoader(event))
}

// ValidateKeypairDocument checks the JSON document stored for a keypair.
func (v *Validator) ValidateKeypairDocument(doc []byte) error {
	return validate(v.keypair, gojsonschema.NewBytesLoader(doc))
}

func validate(schema *gojsonschema.Schema, doc gojsonschema.JSONLoader) error {
	result, err := schema.Validate(doc)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return fmt.Errorf("schema validation failed: %s", strings.Join(errorMessages, "; "))
	}

	return nil
}
