package params

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"animate3d/internal/services"
)

// LoadFile reads params from a YAML file. JSON is accepted too since it is a
// YAML subset. Unknown keys are rejected so typos do not silently drop options.
func LoadFile(path string) (ProcessParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ProcessParams{}, fmt.Errorf("read params file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML or JSON params.
func Parse(data []byte) (ProcessParams, error) {
	var p ProcessParams
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return ProcessParams{}, services.Wrap(services.ErrValidation, "params", "parse", "invalid params document", err)
	}
	return p, nil
}
