// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
)

// LoadRegistry reads a manifest from disk.
func LoadRegistry(path string) (*IntentRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg IntentRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// Validator holds the compiled response schemas.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// Compile validates and compiles every intent's response schema.
func Compile(reg *IntentRegistry) (*Validator, error) {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema, len(reg.Intents))}
	for _, intent := range reg.Intents {
		if intent.ResponseSchema == nil {
			return nil, fmt.Errorf("intent %q has no response schema", intent.ID)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(intent.ResponseSchema))
		if err != nil {
			return nil, fmt.Errorf("compile schema for intent %q: %w", intent.ID, err)
		}
		v.schemas[intent.ID] = schema
	}
	return v, nil
}

// CheckHandlers verifies every manifest intent has a registered handler
// and flags handlers missing from the manifest.
func CheckHandlers(reg *IntentRegistry, registered []string) error {
	have := make(map[string]bool, len(registered))
	for _, id := range registered {
		have[id] = true
	}
	for _, intent := range reg.Intents {
		if !have[intent.ID] {
			return fmt.Errorf("manifest intent %q has no registered handler", intent.ID)
		}
	}
	known := make(map[string]bool, len(reg.Intents))
	for _, intent := range reg.Intents {
		known[intent.ID] = true
	}
	for _, id := range registered {
		if !known[id] {
			return fmt.Errorf("handler %q is not declared in the manifest", id)
		}
	}
	return nil
}

// ValidateResponse checks a serialized response against the intent's
// schema. Unknown intents validate against nothing and pass.
func (v *Validator) ValidateResponse(intent string, response interface{}) error {
	schema, ok := v.schemas[intent]
	if !ok {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(response))
	if err != nil {
		return err
	}
	if !result.Valid() {
		return fmt.Errorf("response for intent %q failed validation: %v", intent, result.Errors())
	}
	return nil
}
