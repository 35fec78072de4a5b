// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
)

func LoadRegistry(path string) (*WorkerRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg WorkerRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// FindByTaskType returns the worker entry registered for taskType.
func (r *WorkerRegistry) FindByTaskType(taskType string) (*Worker, bool) {
	for i := range r.Workers {
		if r.Workers[i].TaskType == taskType {
			return &r.Workers[i], true
		}
	}
	return nil, false
}

// ValidateInput checks a job payload against the worker's registered
// input schema. A worker without an input schema accepts everything.
func (w *Worker) ValidateInput(payload map[string]interface{}) error {
	return validateAgainstSchema(w.InputSchema, payload, "input")
}

// ValidateOutput checks produced variables against the worker's
// registered output schema.
func (w *Worker) ValidateOutput(payload map[string]interface{}) error {
	return validateAgainstSchema(w.OutputSchema, payload, "output")
}

func validateAgainstSchema(schema, payload map[string]interface{}, kind string) error {
	if len(schema) == 0 {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	documentLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("%s schema validation error: %w", kind, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("%s payload invalid: %v", kind, msgs)
	}

	return nil
}
