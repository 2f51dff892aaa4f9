package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes converts YAML config files into JSON so that a single
// strict decoder (DisallowUnknownFields) handles both formats. JSON files
// pass through untouched.
func coerceToJSONBytes(path string, b []byte) ([]byte, bool, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return b, false, nil
	}

	var raw any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, true, fmt.Errorf("parse yaml: %w", err)
	}
	norm, err := normalizeYAML(raw)
	if err != nil {
		return nil, true, err
	}
	jb, err := json.Marshal(norm)
	if err != nil {
		return nil, true, fmt.Errorf("convert yaml: %w", err)
	}
	return jb, true, nil
}

// normalizeYAML rewrites map[any]any (legacy yaml decoding) into
// map[string]any so the value round-trips through encoding/json.
func normalizeYAML(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			nv, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("yaml map key %v is not a string", k)
			}
			nv, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[ks] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			nv, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}
