package cli

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("%w: %q", errInvalidFormat, format)
	}
}

// encode renders v in format. JSON is indented with two spaces and ends
// with a newline, like YAML output.
func encode(format string, v any) ([]byte, error) {
	switch format {
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}

		return data, nil
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}

		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("%w: %q", errInvalidFormat, format)
	}
}
