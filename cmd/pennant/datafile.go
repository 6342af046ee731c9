package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	pennant "github.com/pennant-io/pennant-go"
)

// loadDatafile reads a datafile from disk. YAML documents are converted
// to JSON first so the model's polymorphic decoding applies uniformly.
func loadDatafile(path string) (*pennant.DatafileContent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read datafile: %w", err)
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		raw, err = yamlToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("convert datafile: %w", err)
		}
	}

	return pennant.ParseDatafile(raw)
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var document any
	if err := yaml.Unmarshal(raw, &document); err != nil {
		return nil, err
	}
	return json.Marshal(document)
}

// parseContext decodes the --context JSON into an evaluation context.
func parseContext(contextJSON string) (pennant.Context, error) {
	var context pennant.Context
	if err := json.Unmarshal([]byte(contextJSON), &context); err != nil {
		return nil, fmt.Errorf("parse context: %w", err)
	}
	return context, nil
}
