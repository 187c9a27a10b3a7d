package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toStrictJSON returns config bytes ready for the strict JSON decoder.
// Files with a .yaml/.yml extension are converted; anything else is taken
// as JSON so both formats share one DisallowUnknownFields path.
func toStrictJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return json.Marshal(stringKeys(v))
}

// stringKeys rewrites yaml's map[any]any nodes (emitted for non-scalar
// keys) into map[string]any so the tree JSON-marshals.
func stringKeys(v any) any {
	switch node := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case map[string]any:
		for k, val := range node {
			node[k] = stringKeys(val)
		}
		return node
	case []any:
		for i, val := range node {
			node[i] = stringKeys(val)
		}
		return node
	}
	return v
}
