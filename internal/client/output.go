package client

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the output format for CLI commands
type OutputFormat string

const (
	OutputFormatYAML OutputFormat = "yaml"
	OutputFormatJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to a format, defaulting to YAML
func ParseOutputFormat(s string) OutputFormat {
	if s == string(OutputFormatJSON) {
		return OutputFormatJSON
	}
	return OutputFormatYAML
}

// OutputTo writes data to w in the given format. YAML output keeps the
// JSON field names.
func OutputTo(w io.Writer, format OutputFormat, data any) error {
	if format == OutputFormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("failed to convert output: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}
