package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseArgs builds the argument map from an optional JSON object and
// key=value pairs. Pair values are decoded as JSON when they parse
// (true, 3, {"a":1}) and kept as strings otherwise. Pairs win over the
// JSON object.
func parseArgs(raw string, pairs []string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("parse -args: %w", err)
		}
	}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", p)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			args[key] = decoded
		} else {
			args[key] = value
		}
	}
	return args, nil
}
