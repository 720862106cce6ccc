package bus

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// LoadDefinition reads a bus definition file. YAML and JSON are both accepted.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bus definition: %w", err)
	}

	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("bus definition %s: %w", path, err)
	}
	return def, nil
}

// ParseDefinition decodes and canonicalizes a bus definition document.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse bus definition: %w", err)
	}

	if err := def.canonicalize(); err != nil {
		return nil, err
	}
	return &def, nil
}
