package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// readFile loads a YAML config file. Nested keys are joined with underscores
// and upper-cased, so
//
//	session:
//	  backend: redis
//
// sets SESSION_BACKEND.
func readFile(path string) (lookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	values := lookup{}
	flatten(values, "", raw)
	return values, nil
}

func flatten(out lookup, prefix string, in map[string]any) {
	for k, v := range in {
		key := strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(out, key, val)
		case nil:
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
